// Package session holds the client's authentication state.
//
// Components never read a package-level singleton; they receive a Source and
// call Snapshot whenever they need to decide between online and local-only
// behaviour. State is the mutable implementation owned by the application,
// Static is a fixed Source for tests.
package session

import (
	"errors"
	"sync"
)

// ErrNotAuthenticated is returned by operations that require a logged-in session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// User identifies the logged-in account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is an immutable view of the authentication state.
type Session struct {
	Token         string `json:"-"`
	User          *User  `json:"user,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// UserID returns the user id, or "" when no user is attached.
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Source provides read access to the current session.
type Source interface {
	Snapshot() Session
}

// State is the process-wide session holder. It is mutated only through
// Login, Logout and RefreshToken and is safe for concurrent use.
type State struct {
	mu  sync.RWMutex
	cur Session
}

// New returns an unauthenticated State.
func New() *State {
	return &State{}
}

// Snapshot returns a copy of the current session.
func (s *State) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out
}

// Login marks the session authenticated with token and user.
func (s *State) Login(token string, user User) error {
	if token == "" {
		return errors.New("session: token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Session{Token: token, User: &user, Authenticated: true}
	return nil
}

// Logout clears the token and user.
func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Session{}
}

// RefreshToken swaps the bearer token of an authenticated session.
func (s *State) RefreshToken(token string) error {
	if token == "" {
		return errors.New("session: token cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cur.Authenticated {
		return ErrNotAuthenticated
	}
	s.cur.Token = token
	return nil
}

type static Session

func (s static) Snapshot() Session { return Session(s) }

// Static returns a Source that always reports sess.
func Static(sess Session) Source {
	return static(sess)
}

// Anonymous returns a Source for an unauthenticated client.
func Anonymous() Source {
	return static(Session{})
}
