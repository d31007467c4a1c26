// Package chat holds the project message thread. Messages arrive through
// Fetch, through Send, and through realtime pushes handed to Append.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "chat"

// ErrEmptyMessage is returned by Send for a blank body.
var ErrEmptyMessage = errors.New("chat: message body is empty")

// Message is a chat message.
type Message struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// API is the remote side of the chat store.
type API interface {
	List(ctx context.Context, projectID string) ([]Message, error)
	Send(ctx context.Context, projectID string, m Message) (Message, error)
}

// Store is the chat store.
type Store struct {
	api API
	s   *store.Store[Message]
}

// New creates a chat store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	return &Store{
		api: api,
		s: store.New(store.Spec[Message]{
			Name: Name,
			Kind: "message",
			ID:   func(m Message) string { return m.ID },
		}, sess, opts...),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the messages of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Message, func(), error) {
		msgs, err := s.api.List(ctx, projectID)
		return msgs, nil, err
	})
}

// Send posts a message from the current user. It is shown immediately and
// reconciled with the server copy.
func (s *Store) Send(ctx context.Context, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	sess := s.s.Session()
	var name string
	if sess.User != nil {
		name = sess.User.Name
	}
	return s.s.Create(ctx, func(m store.Meta) Message {
		return Message{
			ID:         m.TempID,
			ProjectID:  m.ProjectID,
			AuthorID:   sess.UserID(),
			AuthorName: name,
			Body:       body,
			SentAt:     m.Now,
		}
	}, s.api.Send), nil
}

// Append adds a pushed message unless one with the same id is already held.
// Messages for another project are ignored. It reports whether the message was new.
func (s *Store) Append(ctx context.Context, m Message) bool {
	if m.ID == "" {
		return false
	}
	if m.ProjectID != "" && m.ProjectID != s.s.ProjectID() {
		return false
	}
	if _, ok := s.s.Get(m.ID); ok {
		return false
	}
	return s.s.Upsert(ctx, m)
}

// Messages returns the thread oldest first.
func (s *Store) Messages() []Message {
	out := s.s.Snapshot()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// LastSynced returns when the messages were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the messages endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Message, error) {
	path, err := remote.Path("/projects/%s/messages", projectID)
	if err != nil {
		return nil, err
	}
	var out []Message
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Send(ctx context.Context, projectID string, m Message) (Message, error) {
	path, err := remote.Path("/projects/%s/messages", projectID)
	if err != nil {
		return Message{}, err
	}
	var out Message
	err = a.c.Post(ctx, path, map[string]string{"body": m.Body}, &out)
	return out, err
}
