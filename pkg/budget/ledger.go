package budget

import (
	"encoding/json"
	"fmt"
)

// ledger keeps per-category running totals in step with the expenses.
// It is only touched under the store lock.
type ledger struct {
	order []string
	cats  map[string]*Category
}

func newLedger() *ledger {
	return &ledger{cats: make(map[string]*Category)}
}

func (l *ledger) category(name string) *Category {
	name = normalize(name)
	c, ok := l.cats[name]
	if !ok {
		c = &Category{Name: name}
		l.cats[name] = c
		l.order = append(l.order, name)
	}
	return c
}

func (l *ledger) Add(e Expense) {
	l.category(e.Category).Spent += e.Amount
}

func (l *ledger) Remove(e Expense) {
	if c, ok := l.cats[normalize(e.Category)]; ok {
		c.Spent -= e.Amount
	}
}

func (l *ledger) Reset(items []Expense) {
	for _, c := range l.cats {
		c.Spent = 0
	}
	for _, e := range items {
		l.Add(e)
	}
}

// setAllocations installs the server's category list. Categories only known
// locally keep their allocation.
func (l *ledger) setAllocations(cats []Category) {
	for _, in := range cats {
		l.category(in.Name).Allocated = in.Allocated
	}
}

func (l *ledger) snapshot() []Category {
	out := make([]Category, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, *l.cats[name])
	}
	return out
}

func (l *ledger) MarshalState() (json.RawMessage, error) {
	allocations := make(map[string]int64, len(l.order))
	for _, name := range l.order {
		allocations[name] = l.cats[name].Allocated
	}
	return json.Marshal(struct {
		Order       []string         `json:"order"`
		Allocations map[string]int64 `json:"allocations"`
	}{l.order, allocations})
}

func (l *ledger) UnmarshalState(data json.RawMessage) error {
	l.order = nil
	l.cats = make(map[string]*Category)
	if len(data) == 0 {
		return nil
	}
	var state struct {
		Order       []string         `json:"order"`
		Allocations map[string]int64 `json:"allocations"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to decode ledger: %w", err)
	}
	for _, name := range state.Order {
		l.category(name).Allocated = state.Allocations[name]
	}
	return nil
}
