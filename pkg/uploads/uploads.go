// Package uploads holds site photos and files attached to a project, with
// their comment threads.
package uploads

import (
	"context"
	"slices"
	"time"

	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
	"github.com/dyluth/sitesync/pkg/tempid"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "uploads"

// Kind classifies an upload by media type.
type Kind string

const (
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Comment is a remark on an upload.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Upload is a file captured on site.
type Upload struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	URL         string    `json:"url"`
	StageID     string    `json:"stageId,omitempty"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	Comments    []Comment `json:"comments"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Input describes a new upload.
type Input struct {
	Name    string
	Kind    Kind
	URL     string
	StageID string
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name    *string
	StageID *string
}

// API is the remote side of the uploads store.
type API interface {
	List(ctx context.Context, projectID string) ([]Upload, error)
	Create(ctx context.Context, projectID string, u Upload) (Upload, error)
	Update(ctx context.Context, id string, u Upload) (Upload, error)
	Delete(ctx context.Context, id string) error
	AddComment(ctx context.Context, uploadID, body string) (Upload, error)
}

// Store is the uploads domain store.
type Store struct {
	api      API
	s        *store.Store[Upload]
	comments *tempid.Source
}

// New creates an uploads store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	settings := store.Apply(opts...)
	return &Store{
		api: api,
		s: store.New(store.Spec[Upload]{
			Name: Name,
			Kind: "upload",
			ID:   func(u Upload) string { return u.ID },
		}, sess, opts...),
		comments: tempid.New("comment", settings.Clock),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the uploads of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Upload, func(), error) {
		uploads, err := s.api.List(ctx, projectID)
		return uploads, nil, err
	})
}

// AddUpload registers an upload by the current user. A missing kind defaults
// to a photo.
func (s *Store) AddUpload(ctx context.Context, in Input) Upload {
	kind := in.Kind
	if kind == "" {
		kind = KindPhoto
	}
	uploadedBy := s.s.Session().UserID()
	return s.s.Create(ctx, func(m store.Meta) Upload {
		return Upload{
			ID:          m.TempID,
			ProjectID:   m.ProjectID,
			Name:        in.Name,
			Kind:        kind,
			URL:         in.URL,
			StageID:     in.StageID,
			UploadedBy:  uploadedBy,
			Comments:    []Comment{},
			LastUpdated: m.Now,
		}
	}, s.api.Create)
}

// UpdateUpload applies p to the upload with id.
func (s *Store) UpdateUpload(ctx context.Context, id string, p Patch) (Upload, error) {
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(u Upload) Upload {
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.StageID != nil {
			u.StageID = *p.StageID
		}
		u.LastUpdated = now
		return u
	}, s.api.Update)
}

// DeleteUpload removes the upload with id.
func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	return s.s.Delete(ctx, id, s.api.Delete)
}

// AddComment appends a comment to the upload's thread. The server returns the
// upload with its canonical thread, which replaces the local one.
func (s *Store) AddComment(ctx context.Context, uploadID, body string) (Upload, error) {
	c := Comment{
		ID:        s.comments.Next(),
		AuthorID:  s.s.Session().UserID(),
		Body:      body,
		CreatedAt: s.s.Clock(),
	}
	return s.s.Update(ctx, uploadID, func(u Upload) Upload {
		u.Comments = append(slices.Clone(u.Comments), c)
		u.LastUpdated = c.CreatedAt
		return u
	}, func(ctx context.Context, id string, _ Upload) (Upload, error) {
		return s.api.AddComment(ctx, id, body)
	})
}

// Uploads returns every upload in display order.
func (s *Store) Uploads() []Upload { return s.s.Snapshot() }

// Get returns the upload with id.
func (s *Store) Get(id string) (Upload, bool) { return s.s.Get(id) }

// LastSynced returns when the uploads were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

// ByStage returns the uploads attached to a schedule stage.
func (s *Store) ByStage(stageID string) []Upload {
	return s.filter(func(u Upload) bool { return u.StageID == stageID })
}

// Photos returns the photo uploads.
func (s *Store) Photos() []Upload {
	return s.filter(func(u Upload) bool { return u.Kind == KindPhoto })
}

func (s *Store) filter(keep func(Upload) bool) []Upload {
	var out []Upload
	s.s.View(func(items []Upload) {
		for _, u := range items {
			if keep(u) {
				out = append(out, u)
			}
		}
	})
	return out
}
