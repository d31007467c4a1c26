package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Subscribe(ctx context.Context, channel string) (Channel, error) {
	args := m.Called(ctx, channel)
	if ch, ok := args.Get(0).(Channel); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTransport) Unsubscribe(channel string) error {
	args := m.Called(channel)
	return args.Error(0)
}

// memChannel is an in-memory Channel that can fire events directly.
type memChannel struct {
	name     string
	handlers Table
}

func (c *memChannel) Name() string { return c.name }

func (c *memChannel) Bind(kind EventKind, h Handler) { c.handlers[kind] = h }

func (c *memChannel) Unbind(kind EventKind) { c.handlers[kind] = nil }

func (c *memChannel) Bound() int { return len(c.handlers) - len(c.handlers.Missing()) }

func (c *memChannel) fire(kind EventKind) bool {
	h := c.handlers[kind]
	if h == nil {
		return false
	}
	h(context.Background(), Event{Kind: kind, Channel: c.name})
	return true
}

func projectBinder(t Transport, hits map[string]int) *Binder {
	return NewBinder(t, ProjectChannel, func(key string) Table {
		var tbl Table
		tbl.Set(func(context.Context, Event) { hits[key]++ }, BillCreated, StageCreated)
		return tbl
	}, nil)
}

func TestBinderSwitchLeavesNoStaleHandlers(t *testing.T) {
	tr := &mockTransport{}
	chA := &memChannel{name: "private-project-A"}
	chB := &memChannel{name: "private-project-B"}
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(chA, nil).Once()
	tr.On("Subscribe", mock.Anything, "private-project-B").Return(chB, nil).Once()
	tr.On("Unsubscribe", "private-project-A").Return(nil).Once()

	hits := map[string]int{}
	b := projectBinder(tr, hits)
	ctx := context.Background()

	require.NoError(t, b.Bind(ctx, "A"))
	assert.Equal(t, 2, chA.Bound())
	assert.True(t, chA.fire(BillCreated))
	assert.Equal(t, 1, hits["A"])

	require.NoError(t, b.Bind(ctx, "B"))
	assert.Equal(t, 0, chA.Bound(), "old channel keeps no handlers")
	assert.False(t, chA.fire(BillCreated))
	assert.True(t, chB.fire(StageCreated))
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, hits)

	key, ok := b.Active()
	assert.True(t, ok)
	assert.Equal(t, "B", key)
	tr.AssertExpectations(t)
}

func TestBinderRebindSameKey(t *testing.T) {
	tr := &mockTransport{}
	first := &memChannel{name: "private-project-A"}
	second := &memChannel{name: "private-project-A"}
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(first, nil).Once()
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(second, nil).Once()
	tr.On("Unsubscribe", "private-project-A").Return(nil).Once()

	hits := map[string]int{}
	b := projectBinder(tr, hits)
	require.NoError(t, b.Bind(context.Background(), "A"))
	require.NoError(t, b.Bind(context.Background(), "A"))

	assert.Equal(t, 0, first.Bound())
	assert.Equal(t, 2, second.Bound())
	tr.AssertExpectations(t)
}

func TestBinderTeardown(t *testing.T) {
	tr := &mockTransport{}
	ch := &memChannel{name: "private-project-A"}
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(ch, nil).Once()
	tr.On("Unsubscribe", "private-project-A").Return(errors.New("gone")).Once()

	b := projectBinder(tr, map[string]int{})
	require.NoError(t, b.Bind(context.Background(), "A"))

	b.Teardown()
	b.Teardown()
	assert.Equal(t, 0, ch.Bound())
	_, ok := b.Active()
	assert.False(t, ok)
	tr.AssertExpectations(t)
}

func TestBinderEmptyKeyOnlyTearsDown(t *testing.T) {
	tr := &mockTransport{}
	ch := &memChannel{name: "private-project-A"}
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(ch, nil).Once()
	tr.On("Unsubscribe", "private-project-A").Return(nil).Once()

	b := projectBinder(tr, map[string]int{})
	require.NoError(t, b.Bind(context.Background(), "A"))
	require.NoError(t, b.Bind(context.Background(), ""))

	_, ok := b.Active()
	assert.False(t, ok)
	tr.AssertExpectations(t)
	tr.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestBinderSubscribeFailure(t *testing.T) {
	tr := &mockTransport{}
	tr.On("Subscribe", mock.Anything, "private-project-A").Return(nil, errors.New("denied")).Once()

	b := projectBinder(tr, map[string]int{})
	err := b.Bind(context.Background(), "A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	_, ok := b.Active()
	assert.False(t, ok)
}

func TestBinderDisabledTransport(t *testing.T) {
	t.Run("nil channel", func(t *testing.T) {
		tr := &mockTransport{}
		tr.On("Subscribe", mock.Anything, "private-project-A").Return(nil, nil).Once()

		b := projectBinder(tr, map[string]int{})
		require.NoError(t, b.Bind(context.Background(), "A"))
		_, ok := b.Active()
		assert.False(t, ok)
		tr.AssertNotCalled(t, "Unsubscribe", mock.Anything)
	})

	t.Run("nil client", func(t *testing.T) {
		var c *Client
		b := projectBinder(c, map[string]int{})
		require.NoError(t, b.Bind(context.Background(), "A"))
		_, ok := b.Active()
		assert.False(t, ok)
	})

	t.Run("no transport", func(t *testing.T) {
		b := projectBinder(nil, map[string]int{})
		require.NoError(t, b.Bind(context.Background(), "A"))
		b.Teardown()
	})
}

func TestBinderWithRedisClient(t *testing.T) {
	client, _ := setupTestClient(t, &fakeAuth{})
	ctx := context.Background()
	events := make(chan Event, 4)

	b := NewBinder(client, ProjectChannel, func(string) Table {
		var tbl Table
		tbl.Set(collect(events), Kinds()...)
		return tbl
	}, nil)

	require.NoError(t, b.Bind(ctx, "A"))
	require.NoError(t, b.Bind(ctx, "B"))
	assert.Equal(t, []string{"private-project-B"}, client.Channels())

	require.NoError(t, client.Publish(ctx, ProjectChannel("A"), BillCreated, nil))
	require.NoError(t, client.Publish(ctx, ProjectChannel("B"), BillUpdated, nil))

	select {
	case ev := <-events:
		assert.Equal(t, BillUpdated, ev.Kind)
		assert.Equal(t, "private-project-B", ev.Channel)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	assert.Empty(t, events)
}
