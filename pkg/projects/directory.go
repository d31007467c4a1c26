// Package projects is the project directory: the list of projects the client
// knows about, where each one lives (local or remote), and which one is
// selected.
//
// Local projects carry a "local-project-" id and are kept in persistence
// until they are explicitly synced. Remote failures never make Create fail;
// it falls back to a local project instead.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/syncer"
	"github.com/dyluth/sitesync/pkg/tempid"
	"github.com/google/uuid"
)

// ErrNotFound is returned for ids the directory does not hold.
var ErrNotFound = errors.New("projects: project not found")

// LocalOwnerPrefix prefixes the owner id stamped on offline projects.
const LocalOwnerPrefix = "local-user-"

// Syncer refreshes every domain store of a project.
type Syncer interface {
	SyncAll(ctx context.Context, projectID string) syncer.Report
}

// Listener is told about selection changes.
//
// ProjectSelected runs after the pointer moves and before any sync, so
// stores can switch their collections. ProjectActivated runs after the sync
// (or straight away when no sync applies), so realtime can be rebound. It is
// skipped when another selection started while the sync ran. Callbacks of
// overlapping selections never run concurrently.
type Listener interface {
	ProjectSelected(ctx context.Context, p Project)
	ProjectActivated(ctx context.Context, p Project)
}

// Option configures a Directory.
type Option func(*Directory)

// WithPersistence keeps the project list and selection in p.
func WithPersistence(p persist.Store) Option {
	return func(d *Directory) { d.persist = p }
}

// WithSyncer runs a fan-out sync whenever a remote project is selected.
func WithSyncer(s Syncer) Option {
	return func(d *Directory) { d.syncer = s }
}

// WithListener adds a selection listener.
func WithListener(l Listener) Option {
	return func(d *Directory) { d.listeners = append(d.listeners, l) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *Directory) { d.clock = clock }
}

// Directory is safe for concurrent use.
type Directory struct {
	api       API
	session   session.Source
	persist   persist.Store
	syncer    Syncer
	listeners []Listener
	logger    *slog.Logger
	clock     func() time.Time
	ids       *tempid.Source

	// selMu orders listener callbacks across selections.
	selMu      sync.Mutex
	mu         sync.RWMutex
	projects   []Project
	currentID  string
	generation uint64
	ownerID    string
}

// New creates a Directory.
func New(api API, sess session.Source, opts ...Option) *Directory {
	if sess == nil {
		sess = session.Anonymous()
	}
	d := &Directory{
		api:     api,
		session: sess,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "projects")
	d.ids = tempid.NewLocal("project", d.clock)
	return d
}

// Restore loads the persisted project list and selection. A missing or
// unreadable value is treated as nothing persisted; the error is returned
// for logging only.
func (d *Directory) Restore(ctx context.Context) error {
	list, listErr := d.loadList(ctx)
	var current string
	curErr := persist.LoadJSON(ctx, d.persist, persist.CurrentProjectKey, &current)

	d.mu.Lock()
	d.projects = list
	if curErr == nil {
		d.currentID = current
	}
	d.mu.Unlock()

	return errors.Join(ignoreNotFound(listErr), ignoreNotFound(curErr))
}

// List returns the project list.
//
// Unauthenticated callers get the persisted list. Authenticated callers get
// the remote list with every unsynced local project merged in front; the
// merged list is persisted. When the remote call fails the persisted list is
// returned together with the error.
func (d *Directory) List(ctx context.Context, authenticated bool) ([]Project, error) {
	persisted := d.persisted(ctx)
	if !authenticated {
		d.setProjects(persisted)
		return slices.Clone(persisted), nil
	}

	fetched, err := d.api.List(ctx)
	if err != nil {
		d.logger.Warn("remote project list failed, using persisted list", "error", err)
		d.setProjects(persisted)
		return slices.Clone(persisted), fmt.Errorf("failed to list projects: %w", err)
	}

	d.mu.Lock()
	seen := make(map[string]bool, len(fetched))
	for _, p := range fetched {
		seen[p.ID] = true
	}
	var local []Project
	for _, p := range slices.Concat(d.projects, persisted) {
		if p.IsLocal() && !seen[p.ID] {
			seen[p.ID] = true
			local = append(local, p)
		}
	}
	d.projects = slices.Concat(local, fetched)
	out := slices.Clone(d.projects)
	d.mu.Unlock()

	d.saveList(ctx, out)
	return out, nil
}

// persisted returns the persisted list, which is empty when nothing could be
// loaded. Without persistence configured the held list stands in for it.
func (d *Directory) persisted(ctx context.Context) []Project {
	if d.persist == nil {
		return d.Projects()
	}
	list, err := d.loadList(ctx)
	if err != nil && !persist.IsNotFound(err) {
		d.logger.Debug("failed to load project list", "error", err)
	}
	return list
}

// Select makes id the current project and persists the choice. For a remote
// project with an authenticated session the stores are synced before Select
// returns and the Report is returned; otherwise the Report is nil.
//
// When a later Select starts before this one finishes syncing, the later one
// wins: this call still returns its Report but its listeners are not told the
// project is active.
func (d *Directory) Select(ctx context.Context, id string) (Project, *syncer.Report, error) {
	d.selMu.Lock()
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		d.selMu.Unlock()
		return Project{}, nil, fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	p := d.projects[idx]
	d.currentID = id
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	if err := persist.SaveJSON(ctx, d.persist, persist.CurrentProjectKey, id); err != nil {
		d.logger.Debug("failed to persist current project", "project_id", id, "error", err)
	}
	for _, l := range d.listeners {
		l.ProjectSelected(ctx, p)
	}
	d.selMu.Unlock()

	var report *syncer.Report
	if !p.IsLocal() && d.session.Snapshot().Authenticated && d.syncer != nil {
		r := d.syncer.SyncAll(ctx, p.ID)
		report = &r
	}

	d.selMu.Lock()
	defer d.selMu.Unlock()
	if !d.isGeneration(gen) {
		d.logger.Debug("selection superseded, skipping activation", "project_id", p.ID, "current_project_id", d.CurrentID())
		return p, report, nil
	}
	for _, l := range d.listeners {
		l.ProjectActivated(ctx, p)
	}
	return p, report, nil
}

func (d *Directory) isGeneration(gen uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation == gen
}

// Create makes a new project and selects it. It tries the API first and falls
// back to a local project when the session is unauthenticated or the call
// fails, so it always returns a usable project.
func (d *Directory) Create(ctx context.Context, in Input) Project {
	now := d.clock()
	draft := Project{
		Name:        in.Name,
		Status:      StatusPlanning,
		Budget:      in.Budget,
		Location:    in.Location,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var p Project
	created, err := d.createRemote(ctx, draft)
	if err == nil {
		p = created
	} else {
		if !errors.Is(err, session.ErrNotAuthenticated) {
			d.logger.Warn("remote project create failed, creating local project", "name", in.Name, "error", err)
		}
		p = draft
		p.ID = d.ids.Next()
		p.OwnerID = d.localOwner(ctx)
	}

	d.mu.Lock()
	d.projects = append([]Project{p}, d.projects...)
	out := slices.Clone(d.projects)
	d.mu.Unlock()
	d.saveList(ctx, out)

	if _, _, err := d.Select(ctx, p.ID); err != nil {
		d.logger.Debug("failed to select new project", "project_id", p.ID, "error", err)
	}
	return p
}

func (d *Directory) createRemote(ctx context.Context, draft Project) (Project, error) {
	if !d.session.Snapshot().Authenticated {
		return Project{}, session.ErrNotAuthenticated
	}
	created, err := d.api.Create(ctx, draft)
	if err != nil {
		return Project{}, err
	}
	if created.ID == "" || tempid.Is(created.ID) {
		return Project{}, fmt.Errorf("create response carried no project id")
	}
	return created, nil
}

// Update applies p to the project with id.
//
// Remote projects are updated through the API when authenticated. When the
// project is local, the session is offline, or the API call fails, the held
// copy is changed instead; an error is returned only when there is no held
// copy to fall back to.
func (d *Directory) Update(ctx context.Context, id string, patch Patch) (Project, error) {
	local, held := d.Get(id)
	if !tempid.Is(id) && d.session.Snapshot().Authenticated {
		if !held {
			local = Project{ID: id}
		}
		next := patch.apply(local)
		next.UpdatedAt = d.clock()
		updated, err := d.api.Update(ctx, id, next)
		if err == nil {
			if updated.ID == "" {
				updated = next
			}
			d.put(ctx, updated)
			return updated, nil
		}
		if !held {
			return Project{}, fmt.Errorf("failed to update project %s: %w", id, err)
		}
		d.logger.Warn("remote project update failed, updating local copy", "project_id", id, "error", err)
	}
	if !held {
		return Project{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	next := patch.apply(local)
	next.UpdatedAt = d.clock()
	d.put(ctx, next)
	return next, nil
}

// Delete removes the project with id, following the same fallback rules as
// Update. Deleting the current project clears the selection.
func (d *Directory) Delete(ctx context.Context, id string) error {
	_, held := d.Get(id)
	if !tempid.Is(id) && d.session.Snapshot().Authenticated {
		if err := d.api.Delete(ctx, id); err != nil {
			if !held {
				return fmt.Errorf("failed to delete project %s: %w", id, err)
			}
			d.logger.Warn("remote project delete failed, removing local copy", "project_id", id, "error", err)
		}
	} else if !held {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	d.mu.Lock()
	if idx := d.indexLocked(id); idx >= 0 {
		d.projects = slices.Delete(d.projects, idx, idx+1)
	}
	cleared := d.currentID == id
	if cleared {
		d.currentID = ""
		d.generation++
	}
	out := slices.Clone(d.projects)
	d.mu.Unlock()

	d.saveList(ctx, out)
	if cleared {
		d.clearCurrent(ctx)
	}
	return nil
}

// SyncLocal creates a remote copy of every local project and retires the
// local one in its place. The selection follows a synced project. It needs an
// authenticated session; failures are collected and the remaining projects
// are still attempted.
func (d *Directory) SyncLocal(ctx context.Context) ([]Project, error) {
	if !d.session.Snapshot().Authenticated {
		return nil, session.ErrNotAuthenticated
	}
	var (
		synced []Project
		errs   []error
	)
	for _, p := range d.Projects() {
		if !p.IsLocal() {
			continue
		}
		draft := p
		draft.ID = ""
		draft.OwnerID = ""
		created, err := d.createRemote(ctx, draft)
		if err != nil {
			d.logger.Warn("failed to sync local project", "project_id", p.ID, "error", err)
			errs = append(errs, fmt.Errorf("project %s: %w", p.ID, err))
			continue
		}

		d.mu.Lock()
		if idx := d.indexLocked(p.ID); idx >= 0 {
			d.projects[idx] = created
		}
		moved := d.currentID == p.ID
		if moved {
			d.currentID = created.ID
			d.generation++
		}
		out := slices.Clone(d.projects)
		d.mu.Unlock()

		d.saveList(ctx, out)
		if moved {
			if err := persist.SaveJSON(ctx, d.persist, persist.CurrentProjectKey, created.ID); err != nil {
				d.logger.Debug("failed to persist current project", "error", err)
			}
		}
		d.logger.Info("local project synced", "local_id", p.ID, "project_id", created.ID)
		synced = append(synced, created)
	}
	return synced, errors.Join(errs...)
}

// ApplyRemoteUpdate replaces the held copy of p, as pushed by realtime.
// Unknown projects are ignored. It reports whether a copy was replaced.
func (d *Directory) ApplyRemoteUpdate(ctx context.Context, p Project) bool {
	if p.ID == "" {
		return false
	}
	if _, ok := d.Get(p.ID); !ok {
		return false
	}
	d.put(ctx, p)
	return true
}

// Current returns the selected project.
func (d *Directory) Current() (Project, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if idx := d.indexLocked(d.currentID); idx >= 0 {
		return d.projects[idx], true
	}
	return Project{}, false
}

// CurrentID returns the selected project id, which may refer to a project
// that has not been listed yet.
func (d *Directory) CurrentID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentID
}

// Get returns the held project with id.
func (d *Directory) Get(id string) (Project, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if idx := d.indexLocked(id); idx >= 0 {
		return d.projects[idx], true
	}
	return Project{}, false
}

// Projects returns the held project list.
func (d *Directory) Projects() []Project {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.projects)
}

func (d *Directory) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(d.projects, func(p Project) bool { return p.ID == id })
}

// put replaces the project with the same id or prepends it, then persists.
func (d *Directory) put(ctx context.Context, p Project) {
	d.mu.Lock()
	if idx := d.indexLocked(p.ID); idx >= 0 {
		d.projects[idx] = p
	} else {
		d.projects = append([]Project{p}, d.projects...)
	}
	out := slices.Clone(d.projects)
	d.mu.Unlock()
	d.saveList(ctx, out)
}

func (d *Directory) setProjects(list []Project) {
	d.mu.Lock()
	d.projects = slices.Clone(list)
	d.mu.Unlock()
}

func (d *Directory) loadList(ctx context.Context) ([]Project, error) {
	var list []Project
	if err := persist.LoadJSON(ctx, d.persist, persist.LocalProjectsKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *Directory) saveList(ctx context.Context, list []Project) {
	if err := persist.SaveJSON(ctx, d.persist, persist.LocalProjectsKey, list); err != nil {
		d.logger.Debug("failed to persist project list", "error", err)
	}
}

// localOwner returns the persisted local owner id, minting one on first use.
func (d *Directory) localOwner(ctx context.Context) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ownerID != "" {
		return d.ownerID
	}
	var owner string
	if err := persist.LoadJSON(ctx, d.persist, persist.OwnerKey, &owner); err == nil && owner != "" {
		d.ownerID = owner
		return owner
	}
	d.ownerID = LocalOwnerPrefix + uuid.NewString()
	if err := persist.SaveJSON(ctx, d.persist, persist.OwnerKey, d.ownerID); err != nil {
		d.logger.Debug("failed to persist local owner", "error", err)
	}
	return d.ownerID
}

func (d *Directory) clearCurrent(ctx context.Context) {
	if d.persist == nil {
		return
	}
	if err := d.persist.Delete(ctx, persist.CurrentProjectKey); err != nil && !persist.IsNotFound(err) {
		d.logger.Debug("failed to clear current project", "error", err)
	}
}

func ignoreNotFound(err error) error {
	if persist.IsNotFound(err) {
		return nil
	}
	return err
}
