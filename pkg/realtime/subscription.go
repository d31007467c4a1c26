package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel is an open subscription that events can be bound on.
type Channel interface {
	Name() string
	Bind(kind EventKind, h Handler)
	Unbind(kind EventKind)
	Bound() int
}

// Subscription is one open Redis channel. Handlers run one at a time on the
// subscription's goroutine, in message order.
type Subscription struct {
	name   string
	pubsub *redis.PubSub
	logger *slog.Logger

	mu       sync.RWMutex
	handlers Table

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func newSubscription(ctx context.Context, name string, pubsub *redis.PubSub, logger *slog.Logger) *Subscription {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Subscription{
		name:   name,
		pubsub: pubsub,
		logger: logger.With("channel", name),
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// Name returns the logical channel name.
func (s *Subscription) Name() string { return s.name }

// Bind sets the handler for kind, replacing any previous one.
func (s *Subscription) Bind(kind EventKind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Unbind removes the handler for kind.
func (s *Subscription) Unbind(kind EventKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = nil
}

// Bound returns the number of kinds with a handler.
func (s *Subscription) Bound() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers) - len(s.handlers.Missing())
}

// Close stops delivery and waits for a running handler to return. No handler
// is called after Close returns. Safe to call multiple times. Must not be
// called from a handler.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}

func (s *Subscription) pump() {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Subscription) dispatch(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		s.logger.Warn("dropping malformed event", "error", err)
		return
	}
	kind, ok := ParseKind(m.Event)
	if !ok {
		s.logger.Debug("dropping unknown event", "event", m.Event)
		return
	}

	s.mu.RLock()
	h := s.handlers[kind]
	s.mu.RUnlock()
	if h == nil {
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	h(s.ctx, Event{Kind: kind, Channel: s.name, Data: m.Data})
}
