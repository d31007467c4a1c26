package sitesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/sitesync/pkg/budget"
	"github.com/dyluth/sitesync/pkg/inventory"
	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/projects"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/tempid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// apiServer answers every endpoint the stores use. GET of an unknown
// collection is an empty list.
type apiServer struct {
	mu       sync.Mutex
	projects []projects.Project
	data     map[string]any
	requests []string
	gate     *requestGate
}

// requestGate holds every request under prefix until release is closed.
type requestGate struct {
	prefix  string
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newAPIServer(t *testing.T, list ...projects.Project) (*apiServer, string) {
	s := &apiServer{projects: list, data: map[string]any{}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *apiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g := s.gate
	s.mu.Unlock()
	if g != nil && strings.HasPrefix(r.URL.Path, g.prefix) {
		g.once.Do(func() { close(g.started) })
		<-g.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.Method + " " + r.URL.Path
	s.requests = append(s.requests, key)
	reply := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": v})
	}

	switch {
	case key == "GET /projects":
		reply(s.projects)
	case key == "POST /projects":
		var p projects.Project
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = "proj-" + strings.ToLower(p.Name)
		s.projects = append(s.projects, p)
		reply(p)
	case key == "POST /realtime/auth":
		reply(map[string]string{"auth": "sig"})
	case key == "POST /auth/refresh":
		reply(map[string]string{"token": "fresh"})
	case s.data[key] != nil:
		reply(s.data[key])
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/budget"):
		reply(map[string]any{"categories": []any{}})
	case r.Method == http.MethodGet:
		reply([]any{})
	default:
		reply(nil)
	}
}

func (s *apiServer) set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
}

func (s *apiServer) hold(prefix string) *requestGate {
	g := &requestGate{prefix: prefix, started: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.gate = g
	s.mu.Unlock()
	return g
}

func (s *apiServer) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == key {
			n++
		}
	}
	return n
}

func (s *apiServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// memChannel is a Channel whose handlers the test fires directly.
type memChannel struct {
	mu       sync.Mutex
	name     string
	handlers realtime.Table
}

func (c *memChannel) Name() string { return c.name }

func (c *memChannel) Bind(kind realtime.EventKind, h realtime.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = h
}

func (c *memChannel) Unbind(kind realtime.EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = nil
}

func (c *memChannel) Bound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers) - len(c.handlers.Missing())
}

func (c *memChannel) fire(kind realtime.EventKind, data any) bool {
	c.mu.Lock()
	h := c.handlers[kind]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	raw, _ := json.Marshal(data)
	h(context.Background(), realtime.Event{Kind: kind, Channel: c.name, Data: raw})
	return true
}

type fakeTransport struct {
	mock.Mock
	mu       sync.Mutex
	channels map[string]*memChannel
	log      []string
}

func newTransport() *fakeTransport {
	tr := &fakeTransport{channels: map[string]*memChannel{}}
	tr.On("Subscribe", mock.Anything, mock.Anything).Return(nil)
	tr.On("Unsubscribe", mock.Anything).Return(nil)
	return tr
}

func (f *fakeTransport) Subscribe(ctx context.Context, name string) (realtime.Channel, error) {
	if err := f.Called(ctx, name).Error(0); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &memChannel{name: name}
	f.channels[name] = ch
	f.log = append(f.log, "sub "+name)
	return ch, nil
}

func (f *fakeTransport) Unsubscribe(name string) error {
	err := f.Called(name).Error(0)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "unsub "+name)
	return err
}

func (f *fakeTransport) channel(name string) *memChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[name]
}

func (f *fakeTransport) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

var created = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	client *Client
	api    *apiServer
	tr     *fakeTransport
	store  *persist.Memory
	sess   *session.State
}

func newFixture(t *testing.T, list ...projects.Project) *fixture {
	api, url := newAPIServer(t, list...)
	sess := session.New()
	rc, err := remote.New(url, sess)
	require.NoError(t, err)

	f := &fixture{api: api, tr: newTransport(), store: persist.NewMemory(), sess: sess}
	f.client, err = New(Options{
		Session:   sess,
		Remote:    rc,
		Persist:   f.store,
		Transport: f.tr,
		Clock:     func() time.Time { return created },
	})
	require.NoError(t, err)
	return f
}

var alice = session.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}

func TestOfflineProjectThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Start(ctx))

	deck := f.client.CreateProject(ctx, projects.Input{Name: "Deck"})
	assert.True(t, strings.HasPrefix(deck.ID, tempid.LocalPrefix+"project-"))

	list := f.client.Projects().Projects()
	require.Len(t, list, 1)
	assert.Equal(t, "Deck", list[0].Name)
	assert.Equal(t, deck.ID, f.client.Projects().CurrentID())
	f.tr.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything)
	assert.Zero(t, f.api.total(), "offline create never reaches the API")

	require.NoError(t, f.client.Login(ctx, "tok", alice))

	list = f.client.Projects().Projects()
	require.Len(t, list, 1, "local project survives an empty remote list")
	assert.Equal(t, deck.ID, list[0].ID)
	assert.Equal(t, deck.ID, f.client.Projects().CurrentID())

	f.tr.AssertCalled(t, "Subscribe", mock.Anything, realtime.UserChannel("u1"))
	f.tr.AssertNotCalled(t, "Subscribe", mock.Anything, realtime.ProjectChannel(deck.ID))
	_, bound := f.client.RealtimeProject()
	assert.False(t, bound)
}

func TestSelectRemoteProjectSyncsThenBinds(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"}, projects.Project{ID: "B", Name: "Bravo"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))

	_, report, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Len(t, report.Results, 7)
	for _, path := range []string{"/bills", "/budget", "/inventory", "/stages", "/team", "/documents", "/uploads", "/messages"} {
		assert.Equal(t, 1, f.api.count("GET /projects/A"+path), path)
	}

	key, ok := f.client.RealtimeProject()
	require.True(t, ok)
	assert.Equal(t, "A", key)
	chA := f.tr.channel(realtime.ProjectChannel("A"))
	require.NotNil(t, chA)
	assert.Equal(t, len(realtime.Kinds()), chA.Bound())
}

func TestSwitchProjectTearsDownFirst(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"}, projects.Project{ID: "B", Name: "Bravo"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	chA := f.tr.channel(realtime.ProjectChannel("A"))

	_, _, err = f.client.SelectProject(ctx, "B")
	require.NoError(t, err)

	assert.Zero(t, chA.Bound(), "no handler for A survives the switch")
	before := f.api.count("GET /projects/A/inventory")
	assert.False(t, chA.fire(realtime.InventoryCreated, nil))
	assert.Equal(t, before, f.api.count("GET /projects/A/inventory"))

	hist := f.tr.history()
	unsubA := indexOf(hist, "unsub private-project-A")
	subB := indexOf(hist, "sub private-project-B")
	require.GreaterOrEqual(t, unsubA, 0)
	assert.Less(t, unsubA, subB, "teardown precedes the new binding: %v", hist)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestRealtimeEvents(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()
	var seen []realtime.EventKind
	f.client.onEvent = func(ev realtime.Event) { seen = append(seen, ev.Kind) }

	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	ch := f.tr.channel(realtime.ProjectChannel("A"))

	t.Run("inventory event refetches inventory", func(t *testing.T) {
		f.api.set("GET /projects/A/inventory", []inventory.Item{{ID: "i1", ProjectID: "A", Name: "Lumber", Quantity: 10}})
		require.True(t, ch.fire(realtime.InventoryCreated, map[string]string{"id": "i1"}))
		items := f.client.Inventory().Items()
		require.Len(t, items, 1)
		assert.Equal(t, "Lumber", items[0].Name)
	})

	t.Run("upload created refreshes documents too", func(t *testing.T) {
		docs := f.api.count("GET /projects/A/documents")
		ups := f.api.count("GET /projects/A/uploads")
		require.True(t, ch.fire(realtime.UploadCreated, nil))
		assert.Equal(t, docs+1, f.api.count("GET /projects/A/documents"))
		assert.Equal(t, ups+1, f.api.count("GET /projects/A/uploads"))

		require.True(t, ch.fire(realtime.UploadCommentAdded, nil))
		assert.Equal(t, docs+1, f.api.count("GET /projects/A/documents"))
	})

	t.Run("project update applies payload without fetch", func(t *testing.T) {
		listed := f.api.count("GET /projects")
		require.True(t, ch.fire(realtime.ProjectUpdated, projects.Project{ID: "A", Name: "Alpha Two"}))
		p, ok := f.client.Projects().Get("A")
		require.True(t, ok)
		assert.Equal(t, "Alpha Two", p.Name)
		assert.Equal(t, listed, f.api.count("GET /projects"))
	})

	t.Run("chat message is appended once", func(t *testing.T) {
		msgs := f.api.count("GET /projects/A/messages")
		msg := map[string]any{"id": "m1", "body": "concrete pour at 9", "sentAt": created}
		require.True(t, ch.fire(realtime.ChatMessage, msg))
		require.True(t, ch.fire(realtime.ChatMessage, msg))
		got := f.client.Chat().Messages()
		require.Len(t, got, 1)
		assert.Equal(t, "A", got[0].ProjectID)
		assert.Equal(t, msgs, f.api.count("GET /projects/A/messages"))
	})

	t.Run("malformed payloads are dropped", func(t *testing.T) {
		h := f.client.eventTable("A")[realtime.ProjectUpdated]
		h(ctx, realtime.Event{Kind: realtime.ProjectUpdated, Data: json.RawMessage(`{`)})
		p, _ := f.client.Projects().Get("A")
		assert.Equal(t, "Alpha Two", p.Name)
	})

	assert.Contains(t, seen, realtime.ChatMessage)
	assert.Contains(t, seen, realtime.InventoryCreated)
}

func TestUserChannelAppliesProjectUpdates(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))

	user := f.tr.channel(realtime.UserChannel("u1"))
	require.NotNil(t, user)
	assert.Equal(t, 1, user.Bound())
	require.True(t, user.fire(realtime.ProjectUpdated, projects.Project{ID: "A", Name: "Renamed", TeamSize: 4}))
	p, _ := f.client.Projects().Get("A")
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, 4, p.TeamSize)
}

func TestDispatchTableCoversAllKinds(t *testing.T) {
	f := newFixture(t)
	table := f.client.eventTable("A")
	assert.Empty(t, table.Missing())

	user := f.client.userTable("u1")
	assert.NotNil(t, user[realtime.ProjectUpdated])
}

func TestLogoutReleasesChannels(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)

	f.client.Logout(ctx)

	assert.False(t, f.client.Session().Authenticated)
	_, bound := f.client.RealtimeProject()
	assert.False(t, bound)
	f.tr.AssertCalled(t, "Unsubscribe", realtime.ProjectChannel("A"))
	f.tr.AssertCalled(t, "Unsubscribe", realtime.UserChannel("u1"))
	assert.Zero(t, f.tr.channel(realtime.ProjectChannel("A")).Bound())

	// Reselecting while logged out loads cached data only.
	_, report, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, report)
	_, bound = f.client.RealtimeProject()
	assert.False(t, bound)
}

func TestOverlappingSelectionsFollowTheLatest(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"}, projects.Project{ID: "B", Name: "Bravo"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))
	f.api.set("GET /projects/A/inventory", []inventory.Item{{ID: "i-a", ProjectID: "A", Name: "Rebar"}})

	gate := f.api.hold("/projects/A/")
	done := make(chan error, 1)
	go func() {
		_, _, err := f.client.SelectProject(ctx, "A")
		done <- err
	}()
	<-gate.started

	_, report, err := f.client.SelectProject(ctx, "B")
	require.NoError(t, err)
	require.NotNil(t, report)
	close(gate.release)
	require.NoError(t, <-done)

	assert.Equal(t, "B", f.client.Projects().CurrentID())
	key, ok := f.client.RealtimeProject()
	require.True(t, ok)
	assert.Equal(t, "B", key)
	assert.NotContains(t, f.tr.history(), "sub "+realtime.ProjectChannel("A"))
	assert.Empty(t, f.client.Inventory().Items(), "A's late fetch must not land on B")

	exp := f.client.Budget().AddExpense(ctx, budget.Input{Title: "Lumber", Category: "Materials", Amount: 12500})
	assert.Equal(t, "B", exp.ProjectID)
	assert.Equal(t, 1, f.api.count("POST /projects/B/bills"))
	assert.Zero(t, f.api.count("POST /projects/A/bills"))

	chB := f.tr.channel(realtime.ProjectChannel("B"))
	require.NotNil(t, chB)
	f.api.set("GET /projects/B/inventory", []inventory.Item{{ID: "i-b", ProjectID: "B", Name: "Gravel"}})
	require.True(t, chB.fire(realtime.InventoryUpdated, map[string]string{"id": "i-b"}))
	items := f.client.Inventory().Items()
	require.Len(t, items, 1)
	assert.Equal(t, "i-b", items[0].ID)
}

func TestStartRestoresSelection(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	f.api.set("GET /projects/A/inventory", []inventory.Item{{ID: "i1", ProjectID: "A", Name: "Rebar"}})
	require.NoError(t, f.client.Inventory().Fetch(ctx, "A"))

	// A second client over the same persistence, offline.
	_, url := newAPIServer(t)
	sess := session.New()
	rc, err := remote.New(url, sess)
	require.NoError(t, err)
	tr := newTransport()
	next, err := New(Options{Session: sess, Remote: rc, Persist: f.store, Transport: tr})
	require.NoError(t, err)

	require.NoError(t, next.Start(ctx))
	cur, ok := next.Projects().Current()
	require.True(t, ok)
	assert.Equal(t, "A", cur.ID)
	items := next.Inventory().Items()
	require.Len(t, items, 1, "cached snapshot restored without a fetch")
	assert.Equal(t, "Rebar", items[0].Name)
	tr.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything)
}

func TestPromoteLocalProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deck := f.client.CreateProject(ctx, projects.Input{Name: "Deck"})
	require.NoError(t, f.client.Login(ctx, "tok", alice))

	synced, err := f.client.PromoteLocalProjects(ctx)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, "proj-deck", synced[0].ID)
	assert.Equal(t, "proj-deck", f.client.Projects().CurrentID())
	_, ok := f.client.Projects().Get(deck.ID)
	assert.False(t, ok)

	key, bound := f.client.RealtimeProject()
	assert.True(t, bound)
	assert.Equal(t, "proj-deck", key)
	assert.Equal(t, 1, f.api.count("GET /projects/proj-deck/bills"))
}

func TestSync(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()

	_, err := f.client.Sync(ctx)
	assert.ErrorIs(t, err, projects.ErrNotFound)

	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err = f.client.SelectProject(ctx, "A")
	require.NoError(t, err)
	report, err := f.client.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, f.api.count("GET /projects/A/stages"))
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))

	require.NoError(t, f.client.RefreshToken(ctx))
	assert.Equal(t, "fresh", f.client.Session().Token)
}

func TestNewRequiresAPIs(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every API must be set")
}

func TestCloseReleasesChannels(t *testing.T) {
	f := newFixture(t, projects.Project{ID: "A", Name: "Alpha"})
	ctx := context.Background()
	require.NoError(t, f.client.Login(ctx, "tok", alice))
	_, _, err := f.client.SelectProject(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, f.client.Close())
	f.tr.AssertCalled(t, "Unsubscribe", realtime.ProjectChannel("A"))
}
