package budget

import (
	"context"

	"github.com/dyluth/sitesync/pkg/remote"
)

// API is the remote half of the budget store.
type API interface {
	ListExpenses(ctx context.Context, projectID string) ([]Expense, error)
	ListCategories(ctx context.Context, projectID string) ([]Category, error)
	CreateExpense(ctx context.Context, projectID string, e Expense) (Expense, error)
	UpdateExpense(ctx context.Context, id string, e Expense) (Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	SetAllocation(ctx context.Context, projectID, category string, allocated int64) error
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the bills and budget endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) ListExpenses(ctx context.Context, projectID string) ([]Expense, error) {
	path, err := remote.Path("/projects/%s/bills", projectID)
	if err != nil {
		return nil, err
	}
	var out []Expense
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) ListCategories(ctx context.Context, projectID string) ([]Category, error) {
	path, err := remote.Path("/projects/%s/budget", projectID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (a *httpAPI) CreateExpense(ctx context.Context, projectID string, e Expense) (Expense, error) {
	path, err := remote.Path("/projects/%s/bills", projectID)
	if err != nil {
		return Expense{}, err
	}
	e.ID = ""
	var out Expense
	err = a.c.Post(ctx, path, e, &out)
	return out, err
}

func (a *httpAPI) UpdateExpense(ctx context.Context, id string, e Expense) (Expense, error) {
	path, err := remote.Path("/bills/%s", id)
	if err != nil {
		return Expense{}, err
	}
	var out Expense
	err = a.c.Patch(ctx, path, e, &out)
	return out, err
}

func (a *httpAPI) DeleteExpense(ctx context.Context, id string) error {
	path, err := remote.Path("/bills/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}

func (a *httpAPI) SetAllocation(ctx context.Context, projectID, category string, allocated int64) error {
	path, err := remote.Path("/projects/%s/budget/categories/%s", projectID, category)
	if err != nil {
		return err
	}
	return a.c.Put(ctx, path, map[string]int64{"allocated": allocated}, nil)
}
