package realtime

import (
	"context"
	"encoding/json"
)

// EventKind is the closed set of realtime events the client understands.
type EventKind int

const (
	BillCreated EventKind = iota
	BillUpdated
	BillDeleted
	BillPayment
	BillApproved
	BillRejected

	InventoryCreated
	InventoryUpdated
	InventoryDeleted
	InventoryAdjusted
	InventoryBulkCreated

	UploadCreated
	UploadUpdated
	UploadDeleted
	UploadCommentAdded

	StageCreated
	StageUpdated
	StageDeleted
	StageTasksUpdated
	StageChecklistUpdated
	StageNotesUpdated
	StageReordered

	TeamUpdated
	ProjectUpdated
	ChatMessage

	kindCount
)

var wireNames = [kindCount]string{
	BillCreated:  "bill.created",
	BillUpdated:  "bill.updated",
	BillDeleted:  "bill.deleted",
	BillPayment:  "bill.payment",
	BillApproved: "bill.approved",
	BillRejected: "bill.rejected",

	InventoryCreated:     "inventory.created",
	InventoryUpdated:     "inventory.updated",
	InventoryDeleted:     "inventory.deleted",
	InventoryAdjusted:    "inventory.adjusted",
	InventoryBulkCreated: "inventory.bulk-created",

	UploadCreated:      "upload.created",
	UploadUpdated:      "upload.updated",
	UploadDeleted:      "upload.deleted",
	UploadCommentAdded: "upload.comment-added",

	StageCreated:          "stage.created",
	StageUpdated:          "stage.updated",
	StageDeleted:          "stage.deleted",
	StageTasksUpdated:     "stage.tasks-updated",
	StageChecklistUpdated: "stage.checklist-updated",
	StageNotesUpdated:     "stage.notes-updated",
	StageReordered:        "stage.reordered",

	TeamUpdated:    "team.updated",
	ProjectUpdated: "project.updated",
	ChatMessage:    "chat.message",
}

var byWireName = func() map[string]EventKind {
	m := make(map[string]EventKind, kindCount)
	for k, name := range wireNames {
		m[name] = EventKind(k)
	}
	return m
}()

// String returns the wire name, e.g. "bill.created".
func (k EventKind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return wireNames[k]
}

// ParseKind maps a wire name to its kind.
func ParseKind(name string) (EventKind, bool) {
	k, ok := byWireName[name]
	return k, ok
}

// Kinds returns every kind in declaration order.
func Kinds() []EventKind {
	out := make([]EventKind, kindCount)
	for i := range out {
		out[i] = EventKind(i)
	}
	return out
}

// Event is one decoded realtime message.
type Event struct {
	Kind    EventKind
	Channel string
	Data    json.RawMessage
}

// Handler reacts to an event. ctx is cancelled when the subscription closes.
type Handler func(ctx context.Context, ev Event)

// Table maps every kind to its handler. A nil entry means the kind is not
// handled on that channel.
type Table [kindCount]Handler

// Set assigns h to each of kinds.
func (t *Table) Set(h Handler, kinds ...EventKind) {
	for _, k := range kinds {
		t[k] = h
	}
}

// Missing returns the kinds without a handler.
func (t *Table) Missing() []EventKind {
	var out []EventKind
	for k, h := range t {
		if h == nil {
			out = append(out, EventKind(k))
		}
	}
	return out
}

// message is the JSON form published on a channel.
type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
