// Package schedule holds the build stages of a project together with their
// tasks, checklists and notes.
package schedule

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
	"github.com/dyluth/sitesync/pkg/tempid"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "schedule"

// Store is the schedule domain store.
type Store struct {
	api API
	s   *store.Store[Stage]
}

// New creates a schedule store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	return &Store{
		api: api,
		s: store.New(store.Spec[Stage]{
			Name: Name,
			Kind: "stage",
			ID:   func(s Stage) string { return s.ID },
		}, sess, opts...),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the stages of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Stage, func(), error) {
		stages, err := s.api.List(ctx, projectID)
		return stages, nil, err
	})
}

// AddStage appends a planned stage after the existing ones.
func (s *Store) AddStage(ctx context.Context, in Input) Stage {
	order := 0
	s.s.View(func(items []Stage) {
		for _, st := range items {
			if st.Order >= order {
				order = st.Order + 1
			}
		}
	})
	return s.s.Create(ctx, func(m store.Meta) Stage {
		return Stage{
			ID:          m.TempID,
			ProjectID:   m.ProjectID,
			Name:        in.Name,
			Order:       order,
			Status:      StatusPlanned,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Tasks:       slices.Clone(in.Tasks),
			Checklist:   []ChecklistItem{},
			LastUpdated: m.Now,
		}
	}, s.api.Create)
}

// UpdateStage applies p to the stage with id.
func (s *Store) UpdateStage(ctx context.Context, id string, p Patch) (Stage, error) {
	return s.update(ctx, id, p.apply)
}

// SetTasks replaces the task list of a stage.
func (s *Store) SetTasks(ctx context.Context, id string, tasks []Task) (Stage, error) {
	tasks = slices.Clone(tasks)
	return s.update(ctx, id, func(st Stage) Stage {
		st.Tasks = tasks
		return st
	})
}

// SetChecklist replaces the checklist of a stage.
func (s *Store) SetChecklist(ctx context.Context, id string, items []ChecklistItem) (Stage, error) {
	items = slices.Clone(items)
	return s.update(ctx, id, func(st Stage) Stage {
		st.Checklist = items
		return st
	})
}

// SetNotes replaces the notes of a stage.
func (s *Store) SetNotes(ctx context.Context, id, notes string) (Stage, error) {
	return s.update(ctx, id, func(st Stage) Stage {
		st.Notes = notes
		return st
	})
}

func (s *Store) update(ctx context.Context, id string, fn func(Stage) Stage) (Stage, error) {
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(st Stage) Stage {
		st = fn(st.clone())
		st.LastUpdated = now
		return st
	}, s.api.Update)
}

// DeleteStage removes the stage with id.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	return s.s.Delete(ctx, id, s.api.Delete)
}

// Reorder puts the stages named in ids first, in that order, and renumbers
// every stage. Only stages known to the server are sent in the remote call.
func (s *Store) Reorder(ctx context.Context, ids []string) {
	s.s.Reorder(ctx, ids, func(st Stage, pos int) Stage {
		st.Order = pos
		return st
	})

	pid, ok := s.s.SyncTarget()
	if !ok {
		return
	}
	var order []string
	for _, st := range s.Sorted() {
		if !tempid.Is(st.ID) {
			order = append(order, st.ID)
		}
	}
	if len(order) == 0 {
		return
	}
	if err := s.api.Reorder(ctx, pid, order); err != nil {
		s.s.Logger().Warn("remote reorder failed", "op", "reorder", "count", len(order), "error", err)
	}
}

// Stages returns the stages in collection order.
func (s *Store) Stages() []Stage { return s.s.Snapshot() }

// Get returns the stage with id.
func (s *Store) Get(id string) (Stage, bool) { return s.s.Get(id) }

// LastSynced returns when the stages were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

// Sorted returns the stages by Order.
func (s *Store) Sorted() []Stage {
	out := s.s.Snapshot()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Progress returns the fraction of tasks done across all stages, in [0,1].
func (s *Store) Progress() float64 {
	var done, total int
	s.s.View(func(items []Stage) {
		for _, st := range items {
			for _, t := range st.Tasks {
				total++
				if t.Done {
					done++
				}
			}
		}
	})
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// Current returns the first stage, by order, that is not completed.
func (s *Store) Current() (Stage, bool) {
	for _, st := range s.Sorted() {
		if st.Status != StatusCompleted {
			return st, true
		}
	}
	return Stage{}, false
}

// Overdue returns the stages whose end date is before now and are not completed.
func (s *Store) Overdue(now time.Time) []Stage {
	var out []Stage
	for _, st := range s.Sorted() {
		if st.Overdue(now) {
			out = append(out, st)
		}
	}
	return out
}
