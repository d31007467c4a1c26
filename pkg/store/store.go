package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/tempid"
)

// Aggregate is a denormalized view maintained alongside the collection.
// All methods are called with the store's write lock held.
type Aggregate[T any] interface {
	Add(item T)
	Remove(item T)
	Reset(items []T)
}

// StateCodec is implemented by aggregates that carry state of their own
// (for example category allocations) which must be persisted with the items.
// UnmarshalState receives nil when nothing was persisted.
type StateCodec interface {
	MarshalState() (json.RawMessage, error)
	UnmarshalState(data json.RawMessage) error
}

// Spec describes the entity type held by a Store.
type Spec[T any] struct {
	// Name is used for logs, metrics and persistence keys.
	Name string
	// Kind is the entity kind embedded in temp ids, e.g. "expense".
	Kind string
	ID   func(T) string
	// Aggregate is optional.
	Aggregate Aggregate[T]
}

// Meta is passed to a Builder when an entity is created optimistically.
type Meta struct {
	TempID    string
	ProjectID string
	Now       time.Time
}

// Store holds one entity collection for the current project.
// It is safe for concurrent use. Entities are stored by value; callers that
// change slice or map fields must copy them rather than mutate in place.
type Store[T any] struct {
	name     string
	kind     string
	id       func(T) string
	agg      Aggregate[T]
	session  session.Source
	settings Settings
	logger   *slog.Logger
	ids      *tempid.Source
	pending  *Arena

	mu         sync.RWMutex
	items      []T
	aliases    map[string]string // temp id -> server id
	projectID  string
	lastSynced time.Time
	fetchErr   string
	loading    bool
	version    uint64

	saveMu sync.Mutex
	saved  uint64
}

// New creates a Store. A nil sess behaves as an anonymous session.
func New[T any](spec Spec[T], sess session.Source, opts ...Option) *Store[T] {
	if spec.ID == nil {
		panic("store: Spec.ID is required")
	}
	if sess == nil {
		sess = session.Anonymous()
	}
	settings := Apply(opts...)
	return &Store[T]{
		name:     spec.Name,
		kind:     spec.Kind,
		id:       spec.ID,
		agg:      spec.Aggregate,
		session:  sess,
		settings: settings,
		logger:   settings.Logger.With("component", "store", "store", spec.Name),
		ids:      tempid.New(spec.Kind, settings.Clock),
		pending:  NewArena(),
		aliases:  make(map[string]string),
	}
}

// Name returns the store name.
func (s *Store[T]) Name() string { return s.name }

// Logger returns the store's tagged logger.
func (s *Store[T]) Logger() *slog.Logger { return s.logger }

// Clock returns the store's time source.
func (s *Store[T]) Clock() time.Time { return s.settings.Clock() }

// Session returns the current session snapshot.
func (s *Store[T]) Session() session.Session { return s.session.Snapshot() }

// ProjectID returns the project the collection currently belongs to.
func (s *Store[T]) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// Snapshot returns a copy of the collection in display order.
func (s *Store[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of entities.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the entity with id, following temp-id aliases.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(s.resolveLocked(id)); idx >= 0 {
		return s.items[idx], true
	}
	var zero T
	return zero, false
}

// View runs fn with the collection under the read lock. Aggregate state read
// inside fn is guaranteed consistent with items. fn must not retain items or
// call back into the store.
func (s *Store[T]) View(fn func(items []T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.items)
}

// LastSynced returns the time of the last successful fetch.
func (s *Store[T]) LastSynced() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSynced
}

// Err returns the user-visible error of the last fetch, or "".
func (s *Store[T]) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchErr
}

// Loading reports whether a fetch is in flight.
func (s *Store[T]) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Pending reports whether a mutation on id has not settled yet.
func (s *Store[T]) Pending(id string) bool {
	return s.pending.Pending(id)
}

// Resolve maps a reconciled temp id to its server id. Other ids are returned as is.
func (s *Store[T]) Resolve(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

// Activate points the store at projectID and restores the persisted snapshot
// for it, so the UI has data before the first fetch returns. Activating the
// project the store already holds is a no-op.
func (s *Store[T]) Activate(ctx context.Context, projectID string) error {
	s.mu.RLock()
	same := s.projectID == projectID
	s.mu.RUnlock()
	if same {
		return nil
	}

	var snap snapshot[T]
	var loadErr error
	if projectID != "" {
		loadErr = persist.LoadJSON(ctx, s.settings.Persist, persist.StoreKey(s.name, projectID), &snap)
		if loadErr != nil {
			snap = snapshot[T]{}
		}
	}

	s.mu.Lock()
	s.projectID = projectID
	s.items = snap.Items
	s.lastSynced = snap.LastSynced
	s.fetchErr = ""
	s.aliases = make(map[string]string)
	if codec, ok := s.agg.(StateCodec); ok {
		if err := codec.UnmarshalState(snap.State); err != nil {
			s.logger.Debug("discarding persisted aggregate state", "project_id", projectID, "error", err)
		}
	}
	if s.agg != nil {
		s.agg.Reset(s.items)
	}
	s.version++
	s.mu.Unlock()

	if loadErr != nil && !persist.IsNotFound(loadErr) {
		s.logger.Debug("restore failed", "project_id", projectID, "error", loadErr)
		return fmt.Errorf("failed to restore %s for project %s: %w", s.name, projectID, loadErr)
	}
	return nil
}

func (s *Store[T]) indexLocked(id string) int {
	for i, it := range s.items {
		if s.id(it) == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) resolveLocked(id string) string {
	if next, ok := s.aliases[id]; ok {
		return next
	}
	return id
}

// canSync reports whether a remote call for projectID is allowed.
func (s *Store[T]) canSync(projectID string) bool {
	return s.session.Snapshot().Authenticated && projectID != "" && !tempid.Is(projectID)
}

// snapshot is the persisted form of a store.
type snapshot[T any] struct {
	ProjectID  string          `json:"project_id"`
	Items      []T             `json:"items"`
	LastSynced time.Time       `json:"last_synced"`
	State      json.RawMessage `json:"state,omitempty"`
}

type pendingSave struct {
	key     string
	data    []byte
	version uint64
}

// encodeLocked bumps the version and serializes the current state.
// Must be called with s.mu held for writing.
func (s *Store[T]) encodeLocked() pendingSave {
	s.version++
	if s.settings.Persist == nil || s.projectID == "" {
		return pendingSave{}
	}
	snap := snapshot[T]{
		ProjectID:  s.projectID,
		Items:      s.items,
		LastSynced: s.lastSynced,
	}
	if codec, ok := s.agg.(StateCodec); ok {
		state, err := codec.MarshalState()
		if err != nil {
			s.logger.Debug("skipping aggregate state", "error", err)
		} else {
			snap.State = state
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Debug("failed to encode snapshot", "error", err)
		return pendingSave{}
	}
	return pendingSave{key: persist.StoreKey(s.name, s.projectID), data: data, version: s.version}
}

// save writes an encoded snapshot unless a newer one has already been written.
func (s *Store[T]) save(ctx context.Context, ps pendingSave) {
	if ps.key == "" {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if ps.version <= s.saved {
		return
	}
	if err := s.settings.Persist.Save(context.WithoutCancel(ctx), ps.key, ps.data); err != nil {
		s.logger.Debug("persist failed", "key", ps.key, "error", err)
		return
	}
	s.saved = ps.version
}

// SyncTarget returns the current project and whether remote calls for it are
// allowed (authenticated session, remote project).
func (s *Store[T]) SyncTarget() (string, bool) {
	pid := s.ProjectID()
	return pid, s.canSync(pid)
}

// UpdateState runs fn under the write lock and persists the result. It is for
// aggregate state that is not derived from the items, such as allocations.
func (s *Store[T]) UpdateState(ctx context.Context, fn func()) {
	s.mu.Lock()
	fn()
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}
