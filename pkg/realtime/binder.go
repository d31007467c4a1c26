package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Transport opens and closes channels. *Client implements it.
type Transport interface {
	Subscribe(ctx context.Context, channel string) (Channel, error)
	Unsubscribe(channel string) error
}

// Binder keeps at most one channel bound, derived from a key such as the
// current project id.
type Binder struct {
	transport Transport
	channel   func(key string) string
	table     func(key string) Table
	logger    *slog.Logger

	mu     sync.Mutex
	active Channel
	key    string
}

// NewBinder creates a Binder. channel maps a key to a channel name and table
// builds the handlers for that key. A nil transport disables binding.
func NewBinder(t Transport, channel func(key string) string, table func(key string) Table, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		transport: t,
		channel:   channel,
		table:     table,
		logger:    logger.With("component", "binder"),
	}
}

// Bind tears down the current binding, then subscribes to the channel for
// key and binds every handler of its table. An empty key only tears down.
// A nil channel from the transport means realtime is disabled; Bind then
// leaves nothing bound and returns nil.
func (b *Binder) Bind(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.teardownLocked()
	if key == "" || b.transport == nil {
		return nil
	}

	name := b.channel(key)
	ch, err := b.transport.Subscribe(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", name, err)
	}
	if ch == nil {
		b.logger.Debug("realtime disabled, relying on manual fetch", "channel", name)
		return nil
	}

	table := b.table(key)
	for k, h := range table {
		if h != nil {
			ch.Bind(EventKind(k), h)
		}
	}
	b.active = ch
	b.key = key
	b.logger.Info("channel bound", "channel", name, "handlers", ch.Bound())
	return nil
}

// Teardown unbinds every event and unsubscribes the current channel.
func (b *Binder) Teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *Binder) teardownLocked() {
	if b.active == nil {
		return
	}
	ch := b.active
	b.active = nil
	b.key = ""
	for _, k := range Kinds() {
		ch.Unbind(k)
	}
	if err := b.transport.Unsubscribe(ch.Name()); err != nil {
		b.logger.Debug("unsubscribe failed", "channel", ch.Name(), "error", err)
	}
	b.logger.Info("channel released", "channel", ch.Name())
}

// Active returns the key currently bound.
func (b *Binder) Active() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key, b.active != nil
}
