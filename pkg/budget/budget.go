// Package budget holds the project's expenses and the category ledger derived
// from them. Category totals are updated in the same critical section as the
// expense list, so TotalSpent always equals the sum of the category totals
// and each category total equals the sum of its expenses.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "budget"

// Store is the budget domain store.
type Store struct {
	api    API
	ledger *ledger
	s      *store.Store[Expense]
}

// New creates a budget store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	l := newLedger()
	return &Store{
		api:    api,
		ledger: l,
		s: store.New(store.Spec[Expense]{
			Name:      Name,
			Kind:      "expense",
			ID:        func(e Expense) string { return e.ID },
			Aggregate: l,
		}, sess, opts...),
	}
}

// Name returns the store name.
func (b *Store) Name() string { return Name }

// Activate switches to projectID, restoring its persisted state.
func (b *Store) Activate(ctx context.Context, projectID string) error {
	return b.s.Activate(ctx, projectID)
}

// Fetch reloads expenses and category allocations for projectID.
func (b *Store) Fetch(ctx context.Context, projectID string) error {
	return b.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Expense, func(), error) {
		expenses, err := b.api.ListExpenses(ctx, projectID)
		if err != nil {
			return nil, nil, err
		}
		cats, err := b.api.ListCategories(ctx, projectID)
		if err != nil {
			return nil, nil, err
		}
		return expenses, func() { b.ledger.setAllocations(cats) }, nil
	})
}

// AddExpense records a new pending expense.
func (b *Store) AddExpense(ctx context.Context, in Input) Expense {
	return b.s.Create(ctx, func(m store.Meta) Expense {
		return Expense{
			ID:          m.TempID,
			ProjectID:   m.ProjectID,
			Title:       in.Title,
			Category:    normalize(in.Category),
			Amount:      in.Amount,
			Status:      StatusPending,
			Vendor:      in.Vendor,
			DueDate:     in.DueDate,
			LastUpdated: m.Now,
		}
	}, b.api.CreateExpense)
}

// UpdateExpense applies p to the expense with id.
func (b *Store) UpdateExpense(ctx context.Context, id string, p Patch) (Expense, error) {
	return b.update(ctx, id, p.apply)
}

// DeleteExpense removes the expense with id.
func (b *Store) DeleteExpense(ctx context.Context, id string) error {
	return b.s.Delete(ctx, id, b.api.DeleteExpense)
}

// RecordPayment adds amount to what has been paid. An expense paid in full
// moves to StatusPaid.
func (b *Store) RecordPayment(ctx context.Context, id string, amount int64) (Expense, error) {
	if amount <= 0 {
		return Expense{}, fmt.Errorf("payment amount must be positive, got %d", amount)
	}
	return b.update(ctx, id, func(e Expense) Expense {
		e.Paid += amount
		if e.Paid >= e.Amount {
			e.Status = StatusPaid
		}
		return e
	})
}

// Approve marks the expense approved.
func (b *Store) Approve(ctx context.Context, id string) (Expense, error) {
	return b.setStatus(ctx, id, StatusApproved)
}

// Reject marks the expense rejected.
func (b *Store) Reject(ctx context.Context, id string) (Expense, error) {
	return b.setStatus(ctx, id, StatusRejected)
}

func (b *Store) setStatus(ctx context.Context, id string, status Status) (Expense, error) {
	return b.update(ctx, id, func(e Expense) Expense {
		e.Status = status
		return e
	})
}

func (b *Store) update(ctx context.Context, id string, fn func(Expense) Expense) (Expense, error) {
	now := b.s.Clock()
	return b.s.Update(ctx, id, func(e Expense) Expense {
		e = fn(e)
		e.LastUpdated = now
		return e
	}, b.api.UpdateExpense)
}

// SetAllocation sets the budgeted amount of a category, creating it if needed.
// Remote failures are logged and the local allocation is kept.
func (b *Store) SetAllocation(ctx context.Context, category string, allocated int64) {
	category = normalize(category)
	b.s.UpdateState(ctx, func() {
		b.ledger.category(category).Allocated = allocated
	})

	pid, ok := b.s.SyncTarget()
	if !ok {
		return
	}
	if err := b.api.SetAllocation(ctx, pid, category, allocated); err != nil {
		b.s.Logger().Warn("remote allocation failed", "op", "set_allocation", "category", category, "error", err)
	}
}

// Expenses returns the expenses, newest first.
func (b *Store) Expenses() []Expense { return b.s.Snapshot() }

// Get returns the expense with id.
func (b *Store) Get(id string) (Expense, bool) { return b.s.Get(id) }

// LastSynced returns the time of the last successful fetch.
func (b *Store) LastSynced() time.Time { return b.s.LastSynced() }

// Err returns the last fetch error, or "".
func (b *Store) Err() string { return b.s.Err() }

// Loading reports whether a fetch is in flight.
func (b *Store) Loading() bool { return b.s.Loading() }

// Categories returns the category lines in first-seen order.
func (b *Store) Categories() []Category {
	var out []Category
	b.s.View(func([]Expense) { out = b.ledger.snapshot() })
	return out
}

// CategorySpent returns the total of the expenses in category.
func (b *Store) CategorySpent(category string) int64 {
	var spent int64
	b.s.View(func([]Expense) {
		if c, ok := b.ledger.cats[normalize(category)]; ok {
			spent = c.Spent
		}
	})
	return spent
}

// TotalSpent returns the sum over all categories.
func (b *Store) TotalSpent() int64 {
	var total int64
	b.s.View(func([]Expense) {
		for _, c := range b.ledger.cats {
			total += c.Spent
		}
	})
	return total
}

// TotalAllocated returns the sum of the category allocations.
func (b *Store) TotalAllocated() int64 {
	var total int64
	b.s.View(func([]Expense) {
		for _, c := range b.ledger.cats {
			total += c.Allocated
		}
	})
	return total
}

// Remaining returns allocated minus spent. It is negative when over budget.
func (b *Store) Remaining() int64 {
	var remaining int64
	b.s.View(func([]Expense) {
		for _, c := range b.ledger.cats {
			remaining += c.Allocated - c.Spent
		}
	})
	return remaining
}

// ExpensesByStatus returns the expenses with status, in display order.
func (b *Store) ExpensesByStatus(status Status) []Expense {
	var out []Expense
	b.s.View(func(items []Expense) {
		for _, e := range items {
			if e.Status == status {
				out = append(out, e)
			}
		}
	})
	return out
}

// Outstanding returns the unpaid balance of every expense that is not rejected.
func (b *Store) Outstanding() int64 {
	var total int64
	b.s.View(func(items []Expense) {
		for _, e := range items {
			if e.Status != StatusRejected {
				total += e.Balance()
			}
		}
	})
	return total
}
