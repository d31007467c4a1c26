package sitesync

import (
	"context"
	"encoding/json"

	"github.com/dyluth/sitesync/pkg/chat"
	"github.com/dyluth/sitesync/pkg/projects"
	"github.com/dyluth/sitesync/pkg/realtime"
)

// eventTable builds the handlers for a project channel. Every handler closes
// over projectID, which is why the binder must release them all on switch.
func (c *Client) eventTable(projectID string) realtime.Table {
	var t realtime.Table
	t.Set(c.refresh(projectID, c.budget),
		realtime.BillCreated, realtime.BillUpdated, realtime.BillDeleted,
		realtime.BillPayment, realtime.BillApproved, realtime.BillRejected)
	t.Set(c.refresh(projectID, c.inventory),
		realtime.InventoryCreated, realtime.InventoryUpdated, realtime.InventoryDeleted,
		realtime.InventoryAdjusted, realtime.InventoryBulkCreated)
	// Documents are derived from uploads on the server.
	t.Set(c.refresh(projectID, c.uploads, c.documents), realtime.UploadCreated, realtime.UploadDeleted)
	t.Set(c.refresh(projectID, c.uploads), realtime.UploadUpdated, realtime.UploadCommentAdded)
	t.Set(c.refresh(projectID, c.schedule),
		realtime.StageCreated, realtime.StageUpdated, realtime.StageDeleted,
		realtime.StageTasksUpdated, realtime.StageChecklistUpdated,
		realtime.StageNotesUpdated, realtime.StageReordered)
	t.Set(c.refresh(projectID, c.team), realtime.TeamUpdated)
	t.Set(c.handle(c.applyProject), realtime.ProjectUpdated)
	t.Set(c.handle(func(ctx context.Context, ev realtime.Event) { c.appendMessage(ctx, projectID, ev) }), realtime.ChatMessage)
	return t
}

// userTable builds the handlers for the user channel.
func (c *Client) userTable(string) realtime.Table {
	var t realtime.Table
	t.Set(c.handle(c.applyProject), realtime.ProjectUpdated)
	return t
}

func (c *Client) refresh(projectID string, stores ...domainStore) realtime.Handler {
	return c.handle(func(ctx context.Context, ev realtime.Event) {
		for _, s := range stores {
			if err := s.Fetch(ctx, projectID); err != nil {
				c.logger.Warn("refresh after event failed", "event", ev.Kind.String(), "store", s.Name(), "project_id", projectID, "error", err)
			}
		}
	})
}

func (c *Client) handle(fn realtime.Handler) realtime.Handler {
	return func(ctx context.Context, ev realtime.Event) {
		c.metrics.ObserveEvent(ev.Kind.String())
		fn(ctx, ev)
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Client) applyProject(ctx context.Context, ev realtime.Event) {
	var p projects.Project
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		c.logger.Warn("dropping malformed project update", "channel", ev.Channel, "error", err)
		return
	}
	if !c.projects.ApplyRemoteUpdate(ctx, p) {
		c.logger.Debug("ignoring update for unknown project", "project_id", p.ID)
	}
}

func (c *Client) appendMessage(ctx context.Context, projectID string, ev realtime.Event) {
	var m chat.Message
	if err := json.Unmarshal(ev.Data, &m); err != nil {
		c.logger.Warn("dropping malformed chat message", "channel", ev.Channel, "error", err)
		return
	}
	if m.ProjectID == "" {
		m.ProjectID = projectID
	}
	c.chat.Append(ctx, m)
}
