// Package realtime delivers server push events over Redis Pub/Sub.
//
// A Client is the transport: it authorizes private channels against the API
// and owns one Subscription per channel. A Binder ties one subscription at a
// time to a key (the current project, or the current user) and guarantees
// the previous binding is torn down completely before the next one starts.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Authorizer grants access to private channels.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, channel string) (string, error)
}

// Client is a Redis Pub/Sub transport. A nil *Client is valid and means
// realtime is disabled: Subscribe returns a nil Channel.
type Client struct {
	rdb       *redis.Client
	namespace string
	auth      Authorizer
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewClient creates a transport for the namespace.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: deployment identifier (must not be empty)
//   - auth: channel authorizer; nil skips authorization
//   - logger: may be nil
func NewClient(redisOpts *redis.Options, namespace string, auth Authorizer, logger *slog.Logger) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		auth:      auth,
		logger:    logger.With("component", "realtime"),
		subs:      make(map[string]*Subscription),
	}, nil
}

// Subscribe opens channel, authorizing it first when it is private. The
// subscription is confirmed by Redis before Subscribe returns. Subscribing
// to a channel that is already open returns the open subscription.
//
// The client lock is not held while authorizing or waiting on Redis, so a
// slow subscribe never blocks other channels.
func (c *Client) Subscribe(ctx context.Context, channel string) (Channel, error) {
	if c == nil {
		return nil, nil
	}
	if sub, ok := c.open(channel); ok {
		return sub, nil
	}

	if isPrivate(channel) && c.auth != nil {
		if _, err := c.auth.AuthorizeChannel(ctx, channel); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
	}

	pubsub := c.rdb.Subscribe(ctx, RedisChannel(c.namespace, channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.mu.Lock()
	if sub, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		pubsub.Close()
		return sub, nil
	}
	sub := newSubscription(ctx, channel, pubsub, c.logger)
	c.subs[channel] = sub
	c.mu.Unlock()
	c.logger.Debug("subscribed", "channel", channel)
	return sub, nil
}

func (c *Client) open(channel string) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[channel]
	return sub, ok
}

// Unsubscribe closes channel. It blocks until the channel's handler
// goroutine has exited. Unknown channels are ignored.
func (c *Client) Unsubscribe(channel string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	sub, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.logger.Debug("unsubscribed", "channel", channel)
	return sub.Close()
}

// Publish sends an event on channel.
func (c *Client) Publish(ctx context.Context, channel string, kind EventKind, data any) error {
	if c == nil {
		return errors.New("realtime disabled")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	payload, err := json.Marshal(message{Event: kind.String(), Data: raw})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}
	if err := c.rdb.Publish(ctx, RedisChannel(c.namespace, channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", kind, channel, err)
	}
	return nil
}

// Channels returns the open channel names.
func (c *Client) Channels() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for name := range c.subs {
		out = append(out, name)
	}
	return out
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("realtime disabled")
	}
	return c.rdb.Ping(ctx).Err()
}

// Close closes every subscription and the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, sub.Close())
	}
	errs = append(errs, c.rdb.Close())
	return errors.Join(errs...)
}
