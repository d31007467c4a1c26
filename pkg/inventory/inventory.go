// Package inventory tracks stock held for a project.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "inventory"

// ErrInsufficientStock is returned when an adjustment would take the quantity below zero.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// Store is the inventory domain store.
type Store struct {
	api API
	s   *store.Store[Item]
}

// New creates an inventory store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	return &Store{
		api: api,
		s: store.New(store.Spec[Item]{
			Name: Name,
			Kind: "item",
			ID:   func(i Item) string { return i.ID },
		}, sess, opts...),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the items of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Item, func(), error) {
		items, err := s.api.List(ctx, projectID)
		return items, nil, err
	})
}

func (s *Store) build(in Input) store.Builder[Item] {
	return func(m store.Meta) Item {
		return Item{
			ID:          m.TempID,
			ProjectID:   m.ProjectID,
			Name:        in.Name,
			SKU:         in.SKU,
			Category:    in.Category,
			Quantity:    in.Quantity,
			Unit:        in.Unit,
			MinQuantity: in.MinQuantity,
			UnitCost:    in.UnitCost,
			Location:    in.Location,
			LastUpdated: m.Now,
		}
	}
}

// AddItem adds one item.
func (s *Store) AddItem(ctx context.Context, in Input) Item {
	return s.s.Create(ctx, s.build(in), s.api.Create)
}

// BulkAdd adds several items with a single remote call.
func (s *Store) BulkAdd(ctx context.Context, in []Input) []Item {
	builds := make([]store.Builder[Item], len(in))
	for i := range in {
		builds[i] = s.build(in[i])
	}
	return s.s.CreateMany(ctx, builds, s.api.BulkCreate)
}

// UpdateItem applies p to the item with id.
func (s *Store) UpdateItem(ctx context.Context, id string, p Patch) (Item, error) {
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(i Item) Item {
		i = p.apply(i)
		i.LastUpdated = now
		return i
	}, s.api.Update)
}

// Adjust changes the quantity of the item with id by delta. The reason is
// recorded server-side with the stock movement.
func (s *Store) Adjust(ctx context.Context, id string, delta int, reason string) (Item, error) {
	if cur, ok := s.s.Get(id); ok && cur.Quantity+delta < 0 {
		return cur, fmt.Errorf("adjust %s by %d: %w", id, delta, ErrInsufficientStock)
	}
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(i Item) Item {
		i.Quantity += delta
		if i.Quantity < 0 {
			i.Quantity = 0
		}
		i.LastUpdated = now
		return i
	}, func(ctx context.Context, id string, _ Item) (Item, error) {
		return s.api.Adjust(ctx, id, delta, reason)
	})
}

// DeleteItem removes the item with id.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.s.Delete(ctx, id, s.api.Delete)
}

// Items returns the items, newest first.
func (s *Store) Items() []Item { return s.s.Snapshot() }

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool) { return s.s.Get(id) }

// LastSynced returns when the items were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

// LowStock returns the items at or below their reorder level.
func (s *Store) LowStock() []Item {
	var out []Item
	s.s.View(func(items []Item) {
		for _, it := range items {
			if it.Low() {
				out = append(out, it)
			}
		}
	})
	return out
}

// LowStockCount returns len(LowStock()).
func (s *Store) LowStockCount() int {
	n := 0
	s.s.View(func(items []Item) {
		for _, it := range items {
			if it.Low() {
				n++
			}
		}
	})
	return n
}

// TotalValue returns the value of all stock.
func (s *Store) TotalValue() int64 {
	var total int64
	s.s.View(func(items []Item) {
		for _, it := range items {
			total += it.Value()
		}
	})
	return total
}

// ByCategory groups items by category.
func (s *Store) ByCategory() map[string][]Item {
	out := make(map[string][]Item)
	s.s.View(func(items []Item) {
		for _, it := range items {
			out[it.Category] = append(out[it.Category], it)
		}
	})
	return out
}

// Categories returns the distinct categories, sorted.
func (s *Store) Categories() []string {
	groups := s.ByCategory()
	out := make([]string, 0, len(groups))
	for c := range groups {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
