package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/sitesync/pkg/tempid"
)

// Loader performs the read calls of a fetch. commit, if not nil, is run
// under the store lock after the items are installed and before the
// aggregate is reset; stores use it to install extra state read in the same
// fetch (for example budget allocations).
type Loader[T any] func(ctx context.Context) (items []T, commit func(), err error)

// Fetch reloads the collection for projectID from the remote API.
//
// It is a no-op unless the session is authenticated and projectID is remote.
// On success the collection is replaced by the server result, with unsynced
// temp entities of the same project kept in front, and LastSynced is
// recorded. On failure the error string is recorded and the existing
// entities are left exactly as they were. The returned error is informational.
//
// A fetch that settles after the store was activated for another project is
// dropped, whatever its outcome; the store keeps the newer project.
func (s *Store[T]) Fetch(ctx context.Context, projectID string, load Loader[T]) error {
	if !s.canSync(projectID) {
		s.logger.Debug("fetch skipped", "project_id", projectID, "authenticated", s.session.Snapshot().Authenticated)
		return nil
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	start := time.Now()
	items, commit, err := load(ctx)
	s.settings.Metrics.ObserveFetch(s.name, time.Since(start), err)

	s.mu.Lock()
	s.loading = false
	if s.projectID != "" && s.projectID != projectID {
		current := s.projectID
		s.mu.Unlock()
		s.logger.Debug("dropping fetch for inactive project", "project_id", projectID, "active_project_id", current)
		return nil
	}
	if err != nil {
		s.fetchErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("fetch failed, keeping existing data", "project_id", projectID, "error", err)
		return fmt.Errorf("failed to fetch %s: %w", s.name, err)
	}

	merged := make([]T, 0, len(items))
	if s.projectID == projectID {
		fresh := make(map[string]bool, len(items))
		for _, it := range items {
			fresh[s.id(it)] = true
		}
		for _, it := range s.items {
			if id := s.id(it); tempid.Is(id) && !fresh[id] {
				merged = append(merged, it)
			}
		}
	}
	merged = append(merged, items...)

	if s.projectID != projectID {
		s.aliases = make(map[string]string)
	}
	s.items = merged
	s.projectID = projectID
	s.lastSynced = s.settings.Clock()
	s.fetchErr = ""
	if commit != nil {
		commit()
	}
	if s.agg != nil {
		s.agg.Reset(s.items)
	}
	ps := s.encodeLocked()
	s.mu.Unlock()
	s.save(ctx, ps)
	return nil
}
