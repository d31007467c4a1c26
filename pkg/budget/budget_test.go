package budget

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
	"github.com/dyluth/sitesync/pkg/tempid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("network unreachable")

type fakeAPI struct {
	mu         sync.Mutex
	expenses   []Expense
	categories []Category
	listErr    error
	createErr  error
	updateErr  error
	deleteErr  error
	allocErr   error
	paths      []string
	seq        int

	// createStarted and createRelease, when set, hold CreateExpense open.
	createStarted chan struct{}
	createRelease chan struct{}
}

func (f *fakeAPI) note(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, p)
}

func (f *fakeAPI) ListExpenses(ctx context.Context, projectID string) ([]Expense, error) {
	f.note("list:" + projectID)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Expense(nil), f.expenses...), nil
}

func (f *fakeAPI) ListCategories(ctx context.Context, projectID string) ([]Category, error) {
	return f.categories, nil
}

func (f *fakeAPI) CreateExpense(ctx context.Context, projectID string, e Expense) (Expense, error) {
	f.note("create:" + projectID)
	if f.createStarted != nil {
		close(f.createStarted)
		<-f.createRelease
	}
	if f.createErr != nil {
		return Expense{}, f.createErr
	}
	f.mu.Lock()
	f.seq++
	e.ID = "bill-" + strings.Repeat("x", f.seq)
	f.mu.Unlock()
	return e, nil
}

func (f *fakeAPI) UpdateExpense(ctx context.Context, id string, e Expense) (Expense, error) {
	f.note("update:" + id)
	if f.updateErr != nil {
		return Expense{}, f.updateErr
	}
	return e, nil
}

func (f *fakeAPI) DeleteExpense(ctx context.Context, id string) error {
	f.note("delete:" + id)
	return f.deleteErr
}

func (f *fakeAPI) SetAllocation(ctx context.Context, projectID, category string, allocated int64) error {
	f.note("alloc:" + category)
	return f.allocErr
}

func (f *fakeAPI) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func authed() session.Source {
	return session.Static(session.Session{Token: "tok", Authenticated: true})
}

func newBudget(t *testing.T, api *fakeAPI, sess session.Source, opts ...store.Option) *Store {
	t.Helper()
	b := New(api, sess, opts...)
	require.NoError(t, b.Activate(context.Background(), "p1"))
	return b
}

// assertConsistent checks the ledger invariants against the expense list.
func assertConsistent(t *testing.T, b *Store) {
	t.Helper()
	perCategory := map[string]int64{}
	var sum int64
	for _, e := range b.Expenses() {
		perCategory[e.Category] += e.Amount
		sum += e.Amount
	}
	var catSum int64
	for _, c := range b.Categories() {
		assert.Equal(t, perCategory[c.Name], c.Spent, "category %s", c.Name)
		catSum += c.Spent
	}
	assert.Equal(t, sum, b.TotalSpent())
	assert.Equal(t, catSum, b.TotalSpent())
}

func TestAddExpense_UpdatesCategoryBeforeRemoteSettles(t *testing.T) {
	api := &fakeAPI{
		expenses:      []Expense{{ID: "bill-seed", Category: "Materials", Amount: 22500, Status: StatusPaid}},
		categories:    []Category{{Name: "Materials", Allocated: 100000}},
		createErr:     errOffline,
		createStarted: make(chan struct{}),
		createRelease: make(chan struct{}),
	}
	b := newBudget(t, api, authed())
	require.NoError(t, b.Fetch(context.Background(), "p1"))
	require.Equal(t, int64(22500), b.CategorySpent("Materials"))

	done := make(chan Expense)
	go func() {
		done <- b.AddExpense(context.Background(), Input{Title: "Lumber", Category: "Materials", Amount: 12500})
	}()

	<-api.createStarted
	assert.Equal(t, int64(35000), b.CategorySpent("Materials"))
	assert.Equal(t, int64(35000), b.TotalSpent())
	assert.True(t, tempid.Is(b.Expenses()[0].ID))

	close(api.createRelease)
	got := <-done

	// The remote create failed: the expense and the total are retained.
	assert.True(t, strings.HasPrefix(got.ID, "temp-expense-"))
	assert.Equal(t, int64(35000), b.CategorySpent("Materials"))
	assert.Equal(t, int64(65000), b.Remaining())
	assertConsistent(t, b)
}

func TestAddExpense_ReconcilesInPlace(t *testing.T) {
	api := &fakeAPI{expenses: []Expense{{ID: "bill-seed", Category: "Labor", Amount: 100}}}
	b := newBudget(t, api, authed())
	require.NoError(t, b.Fetch(context.Background(), "p1"))

	got := b.AddExpense(context.Background(), Input{Title: "Crew", Category: "Labor", Amount: 400})

	assert.Equal(t, "bill-x", got.ID)
	expenses := b.Expenses()
	require.Len(t, expenses, 2)
	assert.Equal(t, "bill-x", expenses[0].ID)
	assert.Equal(t, StatusPending, expenses[0].Status)
	assert.Equal(t, "p1", expenses[0].ProjectID)
	assert.Equal(t, int64(500), b.CategorySpent("Labor"))
}

func TestAddExpense_UnknownCategoryIsCreated(t *testing.T) {
	b := newBudget(t, &fakeAPI{}, session.Anonymous())
	b.AddExpense(context.Background(), Input{Title: "Permit", Category: "Fees", Amount: 300})
	b.AddExpense(context.Background(), Input{Title: "Misc", Amount: 50})

	cats := b.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, Category{Name: "Fees", Allocated: 0, Spent: 300}, cats[0])
	assert.Equal(t, Uncategorized, cats[1].Name)
	assert.Equal(t, int64(-350), b.Remaining())
}

func TestUpdateExpense_MovesBetweenCategories(t *testing.T) {
	api := &fakeAPI{expenses: []Expense{{ID: "bill-1", Category: "Materials", Amount: 1000}}}
	b := newBudget(t, api, authed())
	require.NoError(t, b.Fetch(context.Background(), "p1"))

	labor := "Labor"
	amount := int64(1500)
	got, err := b.UpdateExpense(context.Background(), "bill-1", Patch{Category: &labor, Amount: &amount})
	require.NoError(t, err)

	assert.Equal(t, "Labor", got.Category)
	assert.Equal(t, int64(0), b.CategorySpent("Materials"))
	assert.Equal(t, int64(1500), b.CategorySpent("Labor"))
	assert.Equal(t, []string{"list:p1", "update:bill-1"}, api.Paths())
	assertConsistent(t, b)
}

func TestRollbackPolicyRestoresTotals(t *testing.T) {
	api := &fakeAPI{
		expenses:  []Expense{{ID: "bill-1", Category: "Materials", Amount: 1000}},
		updateErr: errOffline,
		deleteErr: errOffline,
		createErr: errOffline,
	}
	b := newBudget(t, api, authed(), store.WithPolicy(store.RollbackOnFailure))
	require.NoError(t, b.Fetch(context.Background(), "p1"))

	amount := int64(5000)
	_, err := b.UpdateExpense(context.Background(), "bill-1", Patch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.TotalSpent())

	require.NoError(t, b.DeleteExpense(context.Background(), "bill-1"))
	assert.Equal(t, int64(1000), b.TotalSpent())

	b.AddExpense(context.Background(), Input{Category: "Materials", Amount: 10})
	assert.Equal(t, int64(1000), b.TotalSpent())
	assert.Len(t, b.Expenses(), 1)
	assertConsistent(t, b)
}

func TestRecordPaymentAndStatus(t *testing.T) {
	api := &fakeAPI{expenses: []Expense{
		{ID: "bill-1", Category: "Materials", Amount: 1000, Status: StatusApproved},
		{ID: "bill-2", Category: "Materials", Amount: 300, Status: StatusPending},
	}}
	b := newBudget(t, api, authed())
	require.NoError(t, b.Fetch(context.Background(), "p1"))
	ctx := context.Background()

	got, err := b.RecordPayment(ctx, "bill-1", 400)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, int64(900), b.Outstanding())

	got, err = b.RecordPayment(ctx, "bill-1", 600)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)

	_, err = b.RecordPayment(ctx, "bill-1", 0)
	assert.Error(t, err)

	_, err = b.Reject(ctx, "bill-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Outstanding())
	assert.Len(t, b.ExpensesByStatus(StatusRejected), 1)

	_, err = b.Approve(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFetchFailureKeepsExpenses(t *testing.T) {
	api := &fakeAPI{
		expenses:   []Expense{{ID: "bill-1", Category: "Materials", Amount: 1000}},
		categories: []Category{{Name: "Materials", Allocated: 5000}},
	}
	b := newBudget(t, api, authed())
	require.NoError(t, b.Fetch(context.Background(), "p1"))

	api.listErr = errOffline
	err := b.Fetch(context.Background(), "p1")
	assert.ErrorIs(t, err, errOffline)
	assert.Len(t, b.Expenses(), 1)
	assert.Equal(t, int64(5000), b.TotalAllocated())
	assert.Equal(t, errOffline.Error(), b.Err())
}

func TestSetAllocation(t *testing.T) {
	api := &fakeAPI{allocErr: errOffline}
	b := newBudget(t, api, authed())

	b.SetAllocation(context.Background(), "Electrical", 2000)
	assert.Equal(t, int64(2000), b.TotalAllocated())
	assert.Equal(t, []string{"alloc:Electrical"}, api.Paths())

	anon := newBudget(t, &fakeAPI{}, session.Anonymous())
	anon.SetAllocation(context.Background(), "Electrical", 10)
	assert.Equal(t, int64(10), anon.TotalAllocated())
}

func TestAllocationsPersistAcrossActivation(t *testing.T) {
	mem := persist.NewMemory()
	api := &fakeAPI{
		expenses:   []Expense{{ID: "bill-1", Category: "Materials", Amount: 1000}},
		categories: []Category{{Name: "Materials", Allocated: 5000}},
	}
	b := newBudget(t, api, authed(), store.WithPersistence(mem))
	require.NoError(t, b.Fetch(context.Background(), "p1"))

	fresh := newBudget(t, &fakeAPI{}, authed(), store.WithPersistence(mem))
	assert.Equal(t, []Category{{Name: "Materials", Allocated: 5000, Spent: 1000}}, fresh.Categories())
	assert.Equal(t, int64(4000), fresh.Remaining())
}

func TestLedgerStaysConsistentUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	api := &fakeAPI{}
	b := newBudget(t, api, authed())
	ctx := context.Background()
	categories := []string{"Materials", "Labor", "Permits", ""}

	for i := 0; i < 200; i++ {
		expenses := b.Expenses()
		api.createErr, api.updateErr, api.deleteErr = nil, nil, nil
		if rng.Intn(3) == 0 {
			api.createErr, api.updateErr, api.deleteErr = errOffline, errOffline, errOffline
		}
		switch op := rng.Intn(4); {
		case op == 0 || len(expenses) == 0:
			b.AddExpense(ctx, Input{Category: categories[rng.Intn(len(categories))], Amount: int64(rng.Intn(10000))})
		case op == 1:
			amount := int64(rng.Intn(10000))
			cat := categories[rng.Intn(len(categories))]
			_, err := b.UpdateExpense(ctx, expenses[rng.Intn(len(expenses))].ID, Patch{Amount: &amount, Category: &cat})
			require.NoError(t, err)
		case op == 2:
			require.NoError(t, b.DeleteExpense(ctx, expenses[rng.Intn(len(expenses))].ID))
		default:
			_, err := b.RecordPayment(ctx, expenses[rng.Intn(len(expenses))].ID, 1)
			require.NoError(t, err)
		}
		assertConsistent(t, b)
	}
}
