// Package team holds the members of a project. Inviting a member needs the
// server to send the invitation, so Invite reports remote failures to the
// caller instead of keeping a local-only member.
package team

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "team"

// ErrInviteFailed wraps every Invite failure.
var ErrInviteFailed = errors.New("team: invite failed")

// Role is the permission level of a member.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleManager    Role = "manager"
	RoleContractor Role = "contractor"
	RoleViewer     Role = "viewer"
)

// Status is the invitation state of a member.
type Status string

const (
	StatusInvited Status = "invited"
	StatusActive  Status = "active"
)

// Member is a person with access to the project.
type Member struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Status      Status    `json:"status"`
	Phone       string    `json:"phone,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Invitation describes a member to invite.
type Invitation struct {
	Name  string
	Email string
	Role  Role
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name   *string
	Role   *Role
	Status *Status
	Phone  *string
}

// API is the remote half of the team store.
type API interface {
	List(ctx context.Context, projectID string) ([]Member, error)
	Invite(ctx context.Context, projectID string, m Member) (Member, error)
	Update(ctx context.Context, id string, m Member) (Member, error)
	Remove(ctx context.Context, id string) error
}

// Store is the team domain store.
type Store struct {
	api API
	s   *store.Store[Member]
}

// New creates a team store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	return &Store{
		api: api,
		s: store.New(store.Spec[Member]{
			Name: Name,
			Kind: "member",
			ID:   func(m Member) string { return m.ID },
		}, sess, opts...),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID and restores its persisted members.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the members of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Member, func(), error) {
		members, err := s.api.List(ctx, projectID)
		return members, nil, err
	})
}

// Invite adds a member in the invited state. The member is shown while the
// request is in flight and removed again when the server rejects it, is
// unreachable, or the client is offline.
func (s *Store) Invite(ctx context.Context, in Invitation) (Member, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Member{}, fmt.Errorf("%w: invalid email %q", ErrInviteFailed, in.Email)
	}
	role := in.Role
	if role == "" {
		role = RoleViewer
	}
	m, err := s.s.CreateRequired(ctx, func(meta store.Meta) Member {
		return Member{
			ID:          meta.TempID,
			ProjectID:   meta.ProjectID,
			Name:        in.Name,
			Email:       email,
			Role:        role,
			Status:      StatusInvited,
			LastUpdated: meta.Now,
		}
	}, s.api.Invite)
	if err != nil {
		return Member{}, fmt.Errorf("%w: %w", ErrInviteFailed, err)
	}
	return m, nil
}

// UpdateMember applies p to the member with id.
func (s *Store) UpdateMember(ctx context.Context, id string, p Patch) (Member, error) {
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(m Member) Member {
		if p.Name != nil {
			m.Name = *p.Name
		}
		if p.Role != nil {
			m.Role = *p.Role
		}
		if p.Status != nil {
			m.Status = *p.Status
		}
		if p.Phone != nil {
			m.Phone = *p.Phone
		}
		m.LastUpdated = now
		return m
	}, s.api.Update)
}

// RemoveMember removes the member with id.
func (s *Store) RemoveMember(ctx context.Context, id string) error {
	return s.s.Delete(ctx, id, s.api.Remove)
}

// Members returns the members in display order.
func (s *Store) Members() []Member { return s.s.Snapshot() }

// Get returns the member with id.
func (s *Store) Get(id string) (Member, bool) { return s.s.Get(id) }

// LastSynced returns when the members were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error, empty once a fetch succeeds.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

// ByRole groups members by role.
func (s *Store) ByRole() map[Role][]Member {
	out := make(map[Role][]Member)
	s.s.View(func(items []Member) {
		for _, m := range items {
			out[m.Role] = append(out[m.Role], m)
		}
	})
	return out
}

// Active returns the members who accepted their invitation.
func (s *Store) Active() []Member {
	var out []Member
	s.s.View(func(items []Member) {
		for _, m := range items {
			if m.Status == StatusActive {
				out = append(out, m)
			}
		}
	})
	return out
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the team endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Member, error) {
	path, err := remote.Path("/projects/%s/team", projectID)
	if err != nil {
		return nil, err
	}
	var out []Member
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Invite(ctx context.Context, projectID string, m Member) (Member, error) {
	path, err := remote.Path("/projects/%s/team/invite", projectID)
	if err != nil {
		return Member{}, err
	}
	body := struct {
		Name  string `json:"name,omitempty"`
		Email string `json:"email"`
		Role  Role   `json:"role"`
	}{m.Name, m.Email, m.Role}
	var out Member
	err = a.c.Post(ctx, path, body, &out)
	return out, err
}

func (a *httpAPI) Update(ctx context.Context, id string, m Member) (Member, error) {
	path, err := remote.Path("/team/%s", id)
	if err != nil {
		return Member{}, err
	}
	var out Member
	err = a.c.Patch(ctx, path, m, &out)
	return out, err
}

func (a *httpAPI) Remove(ctx context.Context, id string) error {
	path, err := remote.Path("/team/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}
