package budget

import "time"

// Status is the approval state of an expense.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// Uncategorized is used for expenses created without a category.
const Uncategorized = "Uncategorized"

// Expense is a bill against the project budget. Amounts are in minor units.
type Expense struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	Paid        int64     `json:"paid"`
	Status      Status    `json:"status"`
	Vendor      string    `json:"vendor,omitempty"`
	DueDate     time.Time `json:"dueDate,omitzero"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Balance is what is still owed on the expense.
func (e Expense) Balance() int64 {
	if e.Paid >= e.Amount {
		return 0
	}
	return e.Amount - e.Paid
}

// Category is a budget line. Spent is derived from the expenses.
type Category struct {
	Name      string `json:"name"`
	Allocated int64  `json:"allocated"`
	Spent     int64  `json:"spent"`
}

// Input describes a new expense.
type Input struct {
	Title    string
	Category string
	Amount   int64
	Vendor   string
	DueDate  time.Time
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Title    *string
	Category *string
	Amount   *int64
	Vendor   *string
	DueDate  *time.Time
}

func (p Patch) apply(e Expense) Expense {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Category != nil {
		e.Category = normalize(*p.Category)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Vendor != nil {
		e.Vendor = *p.Vendor
	}
	if p.DueDate != nil {
		e.DueDate = *p.DueDate
	}
	return e
}

func normalize(category string) string {
	if category == "" {
		return Uncategorized
	}
	return category
}
