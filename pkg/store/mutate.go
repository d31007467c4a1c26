package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/dyluth/sitesync/pkg/tempid"
)

// Builder synthesizes a complete entity for an optimistic insert.
type Builder[T any] func(meta Meta) T

// CreateFunc performs the remote create and returns the server copy.
type CreateFunc[T any] func(ctx context.Context, projectID string, item T) (T, error)

// CreateManyFunc performs a remote bulk create. The result must be in input order.
type CreateManyFunc[T any] func(ctx context.Context, projectID string, items []T) ([]T, error)

// UpdateFunc pushes the merged entity and returns the server copy.
type UpdateFunc[T any] func(ctx context.Context, id string, item T) (T, error)

// DeleteFunc performs the remote delete.
type DeleteFunc func(ctx context.Context, id string) error

// Create inserts a new entity at the front of the collection, then syncs it.
//
// The entity is visible to readers before the remote call starts. When the
// session is authenticated and the store's project is remote, the entity is
// swapped in place for the server copy on success. Remote failures are
// logged and resolved by the FailurePolicy; they are never returned.
func (s *Store[T]) Create(ctx context.Context, build Builder[T], remote CreateFunc[T]) T {
	item, _ := s.create(ctx, build, remote, false)
	return item
}

// CreateRequired is Create for flows that need remote confirmation (for
// example inviting a team member). The optimistic entity is removed and the
// error returned when the remote call fails or cannot be made.
func (s *Store[T]) CreateRequired(ctx context.Context, build Builder[T], remote CreateFunc[T]) (T, error) {
	return s.create(ctx, build, remote, true)
}

func (s *Store[T]) create(ctx context.Context, build Builder[T], remote CreateFunc[T], required bool) (T, error) {
	var zero T
	tempID := s.ids.Next()
	release, err := s.pending.Acquire(ctx, tempID)
	if err != nil {
		return zero, err
	}
	defer release()

	s.mu.Lock()
	projectID := s.projectID
	item := build(Meta{TempID: tempID, ProjectID: projectID, Now: s.settings.Clock()})
	s.items = append([]T{item}, s.items...)
	if s.agg != nil {
		s.agg.Add(item)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)

	if remote == nil || !s.canSync(projectID) {
		if required {
			s.discard(ctx, tempID)
			return zero, fmt.Errorf("failed to create %s: %w", s.kind, ErrOffline)
		}
		return item, nil
	}

	created, err := remote(ctx, projectID, item)
	s.settings.Metrics.ObserveMutation(s.name, "create", err)
	if err != nil {
		s.logger.Warn("remote create failed", "op", "create", "id", tempID, "policy", s.settings.Policy.String(), "error", err)
		if required {
			s.discard(ctx, tempID)
			return zero, fmt.Errorf("failed to create %s: %w", s.kind, err)
		}
		if s.settings.Policy == RollbackOnFailure {
			s.discard(ctx, tempID)
			return zero, nil
		}
		return item, nil
	}

	if newID := s.id(created); newID == "" || tempid.Is(newID) {
		s.logger.Warn("create response carried no server id, keeping temp entity", "id", tempID)
		return item, nil
	}
	s.reconcile(ctx, tempID, created)
	return created, nil
}

// CreateMany inserts several entities as one block at the front of the
// collection and syncs them with a single bulk call. Reconciliation is by
// position; a result of the wrong length leaves every temp entity in place.
func (s *Store[T]) CreateMany(ctx context.Context, builds []Builder[T], remote CreateManyFunc[T]) []T {
	if len(builds) == 0 {
		return nil
	}
	tempIDs := make([]string, len(builds))
	for i := range builds {
		tempIDs[i] = s.ids.Next()
		release, err := s.pending.Acquire(ctx, tempIDs[i])
		if err != nil {
			return nil
		}
		defer release()
	}

	s.mu.Lock()
	projectID := s.projectID
	now := s.settings.Clock()
	items := make([]T, len(builds))
	for i, build := range builds {
		items[i] = build(Meta{TempID: tempIDs[i], ProjectID: projectID, Now: now})
		if s.agg != nil {
			s.agg.Add(items[i])
		}
	}
	s.items = append(slices.Clone(items), s.items...)
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)

	if remote == nil || !s.canSync(projectID) {
		return items
	}

	created, err := remote(ctx, projectID, items)
	s.settings.Metrics.ObserveMutation(s.name, "create_many", err)
	if err != nil {
		s.logger.Warn("remote bulk create failed", "op", "create_many", "count", len(items), "error", err)
		if s.settings.Policy == RollbackOnFailure {
			for _, id := range tempIDs {
				s.discard(ctx, id)
			}
			return nil
		}
		return items
	}
	if len(created) != len(items) {
		s.logger.Warn("bulk create response length mismatch, keeping temp entities", "sent", len(items), "received", len(created))
		return items
	}

	out := make([]T, len(items))
	for i, c := range created {
		if newID := s.id(c); newID == "" || tempid.Is(newID) {
			out[i] = items[i]
			continue
		}
		s.reconcile(ctx, tempIDs[i], c)
		out[i] = c
	}
	return out
}

// Update merges a change into the entity with id, then syncs it.
//
// apply receives the current entity and returns the new one; it runs under
// the store lock and must not call back into the store. Temp ids are never
// sent to the remote API. Remote failures are logged and resolved by the
// FailurePolicy. ErrNotFound is returned when id is unknown.
func (s *Store[T]) Update(ctx context.Context, id string, apply func(T) T, remote UpdateFunc[T]) (T, error) {
	var zero T
	id, release, err := s.acquire(ctx, id)
	if err != nil {
		return zero, err
	}
	defer release()

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return zero, fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
	}
	old := s.items[idx]
	next := apply(old)
	s.replaceAtLocked(idx, old, next)
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)

	if remote == nil || tempid.Is(id) || !s.session.Snapshot().Authenticated {
		return next, nil
	}

	updated, err := remote(ctx, id, next)
	s.settings.Metrics.ObserveMutation(s.name, "update", err)
	if err != nil {
		s.logger.Warn("remote update failed", "op", "update", "id", id, "policy", s.settings.Policy.String(), "error", err)
		if s.settings.Policy == RollbackOnFailure {
			s.swap(ctx, id, old)
			return old, nil
		}
		return next, nil
	}
	if s.id(updated) != id {
		return next, nil
	}
	s.swap(ctx, id, updated)
	return updated, nil
}

// Delete removes the entity with id, then syncs the removal.
// Remote failures are logged and resolved by the FailurePolicy.
func (s *Store[T]) Delete(ctx context.Context, id string, remote DeleteFunc) error {
	id, release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
	}
	old := s.items[idx]
	s.items = slices.Delete(s.items, idx, idx+1)
	if s.agg != nil {
		s.agg.Remove(old)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)

	if remote == nil || tempid.Is(id) || !s.session.Snapshot().Authenticated {
		return nil
	}

	err = remote(ctx, id)
	s.settings.Metrics.ObserveMutation(s.name, "delete", err)
	if err != nil {
		s.logger.Warn("remote delete failed", "op", "delete", "id", id, "policy", s.settings.Policy.String(), "error", err)
		if s.settings.Policy == RollbackOnFailure {
			s.insertAt(ctx, idx, old)
		}
	}
	return nil
}

// Upsert replaces the entity with the same id or inserts item at the front.
// It is used for pushes that carry a complete entity. Returns true on insert.
func (s *Store[T]) Upsert(ctx context.Context, item T) bool {
	id := s.id(item)
	s.mu.Lock()
	inserted := false
	if idx := s.indexLocked(id); idx >= 0 {
		s.replaceAtLocked(idx, s.items[idx], item)
	} else {
		s.items = append([]T{item}, s.items...)
		if s.agg != nil {
			s.agg.Add(item)
		}
		inserted = true
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
	return inserted
}

// Reorder moves the entities named in order to the front, in that order,
// followed by the rest in their existing order. apply is called for every
// entity with its new position.
func (s *Store[T]) Reorder(ctx context.Context, order []string, apply func(item T, position int) T) {
	s.mu.Lock()
	next := make([]T, 0, len(s.items))
	placed := make(map[string]bool, len(order))
	for _, id := range order {
		id = s.resolveLocked(id)
		if placed[id] {
			continue
		}
		if idx := s.indexLocked(id); idx >= 0 {
			next = append(next, s.items[idx])
			placed[id] = true
		}
	}
	for _, it := range s.items {
		if !placed[s.id(it)] {
			next = append(next, it)
		}
	}
	for i := range next {
		next[i] = apply(next[i], i)
	}
	s.items = next
	if s.agg != nil {
		s.agg.Reset(s.items)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}

// acquire holds id in the arena, following aliases recorded while waiting.
func (s *Store[T]) acquire(ctx context.Context, id string) (string, func(), error) {
	for {
		release, err := s.pending.Acquire(ctx, id)
		if err != nil {
			return "", nil, err
		}
		resolved := s.Resolve(id)
		if resolved == id {
			return id, release, nil
		}
		release()
		id = resolved
	}
}

// reconcile swaps the temp entity for the server copy at the same index.
// If the server copy is already present (pushed by realtime or a fetch), the
// temp entry is dropped instead so the id never appears twice.
func (s *Store[T]) reconcile(ctx context.Context, tempID string, created T) {
	newID := s.id(created)
	s.mu.Lock()
	idx := s.indexLocked(tempID)
	if idx < 0 {
		// The project was switched while the create was in flight.
		s.aliases[tempID] = newID
		s.mu.Unlock()
		return
	}
	old := s.items[idx]
	if s.indexLocked(newID) >= 0 {
		s.items = slices.Delete(s.items, idx, idx+1)
		if s.agg != nil {
			s.agg.Remove(old)
		}
	} else {
		s.replaceAtLocked(idx, old, created)
	}
	s.aliases[tempID] = newID
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}

func (s *Store[T]) replaceAtLocked(idx int, old, next T) {
	s.items[idx] = next
	if s.agg != nil {
		s.agg.Remove(old)
		s.agg.Add(next)
	}
}

func (s *Store[T]) swap(ctx context.Context, id string, item T) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.replaceAtLocked(idx, s.items[idx], item)
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}

func (s *Store[T]) discard(ctx context.Context, id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	old := s.items[idx]
	s.items = slices.Delete(s.items, idx, idx+1)
	if s.agg != nil {
		s.agg.Remove(old)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}

func (s *Store[T]) insertAt(ctx context.Context, idx int, item T) {
	s.mu.Lock()
	if s.indexLocked(s.id(item)) >= 0 {
		s.mu.Unlock()
		return
	}
	if idx > len(s.items) {
		idx = len(s.items)
	}
	s.items = slices.Insert(s.items, idx, item)
	if s.agg != nil {
		s.agg.Add(item)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
}
