// Package sitesync composes the domain stores, the project directory, the
// sync orchestrator and the realtime binders into one Client.
//
// The Client reacts to two things: session changes made through Login and
// Logout, and project selection. Selecting a remote project while
// authenticated tears down the previous project's realtime channel, points
// every store at the new project, fans out a fetch and then binds the new
// project's channel. Local projects and anonymous sessions never open a
// channel.
package sitesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dyluth/sitesync/pkg/budget"
	"github.com/dyluth/sitesync/pkg/chat"
	"github.com/dyluth/sitesync/pkg/documents"
	"github.com/dyluth/sitesync/pkg/inventory"
	"github.com/dyluth/sitesync/pkg/metrics"
	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/projects"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/schedule"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
	"github.com/dyluth/sitesync/pkg/syncer"
	"github.com/dyluth/sitesync/pkg/team"
	"github.com/dyluth/sitesync/pkg/uploads"
)

// APIs are the remote collaborators of every store. Unset fields are built
// from Options.Remote.
type APIs struct {
	Projects  projects.API
	Budget    budget.API
	Inventory inventory.API
	Schedule  schedule.API
	Team      team.API
	Documents documents.API
	Uploads   uploads.API
	Chat      chat.API
}

func (a APIs) complete(r *remote.Client) (APIs, error) {
	if r != nil {
		if a.Projects == nil {
			a.Projects = projects.NewHTTPAPI(r)
		}
		if a.Budget == nil {
			a.Budget = budget.NewHTTPAPI(r)
		}
		if a.Inventory == nil {
			a.Inventory = inventory.NewHTTPAPI(r)
		}
		if a.Schedule == nil {
			a.Schedule = schedule.NewHTTPAPI(r)
		}
		if a.Team == nil {
			a.Team = team.NewHTTPAPI(r)
		}
		if a.Documents == nil {
			a.Documents = documents.NewHTTPAPI(r)
		}
		if a.Uploads == nil {
			a.Uploads = uploads.NewHTTPAPI(r)
		}
		if a.Chat == nil {
			a.Chat = chat.NewHTTPAPI(r)
		}
	}
	if a.Projects == nil || a.Budget == nil || a.Inventory == nil || a.Schedule == nil ||
		a.Team == nil || a.Documents == nil || a.Uploads == nil || a.Chat == nil {
		return a, errors.New("every API must be set when no remote client is given")
	}
	return a, nil
}

// Options configure a Client.
type Options struct {
	// Session is shared with every store. Defaults to a fresh anonymous state.
	Session *session.State
	// Remote backs every API not set in APIs, and token refresh.
	Remote *remote.Client
	APIs   APIs
	// Persist keeps projects and store snapshots. Nil keeps nothing.
	Persist persist.Store
	// Transport delivers realtime events. Nil disables realtime.
	Transport realtime.Transport
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Policy    store.FailurePolicy
	Clock     func() time.Time
	// OnEvent, when set, sees every realtime event after it is handled.
	OnEvent func(realtime.Event)
}

// Client is the sync engine for one user session. Safe for concurrent use.
type Client struct {
	session   *session.State
	remote    *remote.Client
	transport realtime.Transport
	logger    *slog.Logger
	metrics   *metrics.Recorder
	onEvent   func(realtime.Event)

	projects  *projects.Directory
	budget    *budget.Store
	inventory *inventory.Store
	schedule  *schedule.Store
	team      *team.Store
	documents *documents.Store
	uploads   *uploads.Store
	chat      *chat.Store

	stores  []domainStore
	syncer  *syncer.Orchestrator
	project *realtime.Binder
	user    *realtime.Binder
}

type domainStore interface {
	Name() string
	Activate(ctx context.Context, projectID string) error
	Fetch(ctx context.Context, projectID string) error
}

// New builds a Client. Call Start before use.
func New(opts Options) (*Client, error) {
	apis, err := opts.APIs.complete(opts.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if opts.Session == nil {
		opts.Session = session.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	c := &Client{
		session:   opts.Session,
		remote:    opts.Remote,
		transport: opts.Transport,
		logger:    opts.Logger.With("component", "sitesync"),
		metrics:   opts.Metrics,
		onEvent:   opts.OnEvent,
	}

	storeOpts := []store.Option{
		store.WithPersistence(opts.Persist),
		store.WithPolicy(opts.Policy),
		store.WithLogger(opts.Logger),
		store.WithMetrics(opts.Metrics),
		store.WithClock(opts.Clock),
	}
	c.budget = budget.New(apis.Budget, c.session, storeOpts...)
	c.inventory = inventory.New(apis.Inventory, c.session, storeOpts...)
	c.schedule = schedule.New(apis.Schedule, c.session, storeOpts...)
	c.team = team.New(apis.Team, c.session, storeOpts...)
	c.documents = documents.New(apis.Documents, c.session, storeOpts...)
	c.uploads = uploads.New(apis.Uploads, c.session, storeOpts...)
	c.chat = chat.New(apis.Chat, c.session, storeOpts...)
	c.stores = []domainStore{c.budget, c.inventory, c.schedule, c.team, c.documents, c.uploads, c.chat}

	fetchers := make([]syncer.Fetcher, 0, len(c.stores))
	for _, s := range c.stores {
		fetchers = append(fetchers, syncer.Fetcher{Name: s.Name(), Fetch: s.Fetch})
	}
	c.syncer = syncer.New(opts.Logger, opts.Metrics, fetchers...)

	c.project = realtime.NewBinder(opts.Transport, realtime.ProjectChannel, c.eventTable, opts.Logger)
	c.user = realtime.NewBinder(opts.Transport, realtime.UserChannel, c.userTable, opts.Logger)

	c.projects = projects.New(apis.Projects, c.session,
		projects.WithPersistence(opts.Persist),
		projects.WithSyncer(c.syncer),
		projects.WithListener(selection{c}),
		projects.WithLogger(opts.Logger),
		projects.WithClock(opts.Clock),
	)
	return c, nil
}

// Start restores the project list and selection from persistence and
// re-selects the persisted current project, which syncs it when it is remote
// and the session is authenticated.
func (c *Client) Start(ctx context.Context) error {
	restoreErr := c.projects.Restore(ctx)
	if restoreErr != nil {
		c.logger.Debug("restore incomplete", "error", restoreErr)
	}
	if c.session.Snapshot().Authenticated {
		c.bindUser(ctx)
	}
	id := c.projects.CurrentID()
	if id == "" {
		return restoreErr
	}
	if _, _, err := c.projects.Select(ctx, id); err != nil {
		return errors.Join(restoreErr, fmt.Errorf("failed to restore current project: %w", err))
	}
	return restoreErr
}

// Login authenticates the session, merges the remote project list with any
// local projects, and brings the current project back online when it is
// remote. A failed project listing is returned but does not undo the login.
func (c *Client) Login(ctx context.Context, token string, user session.User) error {
	if err := c.session.Login(token, user); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	c.logger.Info("logged in", "user_id", user.ID)
	c.bindUser(ctx)

	_, listErr := c.projects.List(ctx, true)
	if listErr != nil {
		c.logger.Warn("failed to list projects after login", "error", listErr)
	}
	if cur, ok := c.projects.Current(); ok && !cur.IsLocal() {
		if _, _, err := c.projects.Select(ctx, cur.ID); err != nil {
			return errors.Join(listErr, err)
		}
	}
	return listErr
}

// Logout releases every realtime channel, then clears the session. Store
// data stays in memory and persistence.
func (c *Client) Logout(ctx context.Context) {
	c.project.Teardown()
	c.user.Teardown()
	c.session.Logout()
	c.logger.Info("logged out")
}

// RefreshToken exchanges the current token for a new one.
func (c *Client) RefreshToken(ctx context.Context) error {
	if c.remote == nil {
		return errors.New("no remote client configured")
	}
	token, err := c.remote.RefreshToken(ctx)
	if err != nil {
		return err
	}
	return c.session.RefreshToken(token)
}

// ListProjects returns the project list for the current session.
func (c *Client) ListProjects(ctx context.Context) ([]projects.Project, error) {
	return c.projects.List(ctx, c.session.Snapshot().Authenticated)
}

// SelectProject makes id current. See projects.Directory.Select.
func (c *Client) SelectProject(ctx context.Context, id string) (projects.Project, *syncer.Report, error) {
	return c.projects.Select(ctx, id)
}

// CreateProject creates and selects a project, locally when offline.
func (c *Client) CreateProject(ctx context.Context, in projects.Input) projects.Project {
	return c.projects.Create(ctx, in)
}

// PromoteLocalProjects pushes every local project to the API. When the
// current project is among them it is re-selected under its server id.
func (c *Client) PromoteLocalProjects(ctx context.Context) ([]projects.Project, error) {
	synced, err := c.projects.SyncLocal(ctx)
	cur := c.projects.CurrentID()
	for _, p := range synced {
		if p.ID != cur {
			continue
		}
		if _, _, selErr := c.projects.Select(ctx, p.ID); selErr != nil {
			err = errors.Join(err, selErr)
		}
	}
	return synced, err
}

// Sync refreshes every store for the current project.
func (c *Client) Sync(ctx context.Context) (syncer.Report, error) {
	id := c.projects.CurrentID()
	if id == "" {
		return syncer.Report{}, projects.ErrNotFound
	}
	return c.syncer.SyncAll(ctx, id), nil
}

// Close releases realtime channels and closes the transport when it can be
// closed.
func (c *Client) Close() error {
	c.project.Teardown()
	c.user.Teardown()
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) bindUser(ctx context.Context) {
	uid := c.session.Snapshot().UserID()
	if err := c.user.Bind(ctx, uid); err != nil {
		c.logger.Warn("failed to bind user channel", "user_id", uid, "error", err)
	}
}

// RealtimeProject returns the project whose channel is bound.
func (c *Client) RealtimeProject() (string, bool) { return c.project.Active() }

// Session returns a snapshot of the current session.
func (c *Client) Session() session.Session { return c.session.Snapshot() }

// Projects returns the project directory.
func (c *Client) Projects() *projects.Directory { return c.projects }

// Budget returns the budget store.
func (c *Client) Budget() *budget.Store { return c.budget }

// Inventory returns the inventory store.
func (c *Client) Inventory() *inventory.Store { return c.inventory }

// Schedule returns the schedule store.
func (c *Client) Schedule() *schedule.Store { return c.schedule }

// Team returns the team store.
func (c *Client) Team() *team.Store { return c.team }

// Documents returns the documents store.
func (c *Client) Documents() *documents.Store { return c.documents }

// Uploads returns the uploads store.
func (c *Client) Uploads() *uploads.Store { return c.uploads }

// Chat returns the chat store.
func (c *Client) Chat() *chat.Store { return c.chat }

// selection keeps stores and the project channel in step with the directory.
type selection struct {
	c *Client
}

// ProjectSelected releases the old project's channel before any store moves,
// so no handler bound to the old project can fire during the switch.
func (s selection) ProjectSelected(ctx context.Context, p projects.Project) {
	s.c.project.Teardown()
	for _, st := range s.c.stores {
		if err := st.Activate(ctx, p.ID); err != nil {
			s.c.logger.Debug("store restore failed", "store", st.Name(), "project_id", p.ID, "error", err)
		}
	}
}

// ProjectActivated binds the channel of p while it is still the current
// remote project of an authenticated session.
func (s selection) ProjectActivated(ctx context.Context, p projects.Project) {
	if p.IsLocal() || !s.c.session.Snapshot().Authenticated || p.ID != s.c.projects.CurrentID() {
		return
	}
	if err := s.c.project.Bind(ctx, p.ID); err != nil {
		s.c.logger.Warn("failed to bind project channel", "project_id", p.ID, "error", err)
	}
}
