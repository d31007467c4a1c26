// Package documents holds the project's document register.
package documents

import (
	"context"
	"strings"
	"time"

	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/store"
)

// Name identifies the store in logs, metrics and persistence.
const Name = "documents"

// Document is a file registered against the project.
type Document struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mimeType,omitempty"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Input describes a new document.
type Input struct {
	Name     string
	Category string
	URL      string
	Size     int64
	MimeType string
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Name     *string
	Category *string
}

// API is the remote side of the documents store.
type API interface {
	List(ctx context.Context, projectID string) ([]Document, error)
	Create(ctx context.Context, projectID string, d Document) (Document, error)
	Update(ctx context.Context, id string, d Document) (Document, error)
	Delete(ctx context.Context, id string) error
}

// Store is the documents domain store.
type Store struct {
	api API
	s   *store.Store[Document]
}

// New creates a documents store.
func New(api API, sess session.Source, opts ...store.Option) *Store {
	return &Store{
		api: api,
		s: store.New(store.Spec[Document]{
			Name: Name,
			Kind: "document",
			ID:   func(d Document) string { return d.ID },
		}, sess, opts...),
	}
}

// Name returns the store name.
func (s *Store) Name() string { return Name }

// Activate switches the store to projectID.
func (s *Store) Activate(ctx context.Context, projectID string) error {
	return s.s.Activate(ctx, projectID)
}

// Fetch reloads the documents of projectID.
func (s *Store) Fetch(ctx context.Context, projectID string) error {
	return s.s.Fetch(ctx, projectID, func(ctx context.Context) ([]Document, func(), error) {
		docs, err := s.api.List(ctx, projectID)
		return docs, nil, err
	})
}

// AddDocument registers a document uploaded by the current user.
func (s *Store) AddDocument(ctx context.Context, in Input) Document {
	uploadedBy := s.s.Session().UserID()
	return s.s.Create(ctx, func(m store.Meta) Document {
		return Document{
			ID:          m.TempID,
			ProjectID:   m.ProjectID,
			Name:        in.Name,
			Category:    in.Category,
			URL:         in.URL,
			Size:        in.Size,
			MimeType:    in.MimeType,
			UploadedBy:  uploadedBy,
			LastUpdated: m.Now,
		}
	}, s.api.Create)
}

// UpdateDocument applies p to the document with id.
func (s *Store) UpdateDocument(ctx context.Context, id string, p Patch) (Document, error) {
	now := s.s.Clock()
	return s.s.Update(ctx, id, func(d Document) Document {
		if p.Name != nil {
			d.Name = *p.Name
		}
		if p.Category != nil {
			d.Category = *p.Category
		}
		d.LastUpdated = now
		return d
	}, s.api.Update)
}

// DeleteDocument removes the document with id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.s.Delete(ctx, id, s.api.Delete)
}

// Documents returns every document in display order.
func (s *Store) Documents() []Document { return s.s.Snapshot() }

// Get returns the document with id.
func (s *Store) Get(id string) (Document, bool) { return s.s.Get(id) }

// LastSynced returns when the documents were last fetched.
func (s *Store) LastSynced() time.Time { return s.s.LastSynced() }

// Err returns the last fetch error.
func (s *Store) Err() string { return s.s.Err() }

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool { return s.s.Loading() }

// ByCategory returns the documents in category. An empty category matches all.
func (s *Store) ByCategory(category string) []Document {
	return s.filter(func(d Document) bool { return category == "" || d.Category == category })
}

// Search returns documents whose name contains q, ignoring case.
func (s *Store) Search(q string) []Document {
	q = strings.ToLower(strings.TrimSpace(q))
	return s.filter(func(d Document) bool { return strings.Contains(strings.ToLower(d.Name), q) })
}

// TotalSize returns the combined size in bytes.
func (s *Store) TotalSize() int64 {
	var total int64
	s.s.View(func(items []Document) {
		for _, d := range items {
			total += d.Size
		}
	})
	return total
}

func (s *Store) filter(keep func(Document) bool) []Document {
	var out []Document
	s.s.View(func(items []Document) {
		for _, d := range items {
			if keep(d) {
				out = append(out, d)
			}
		}
	})
	return out
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the documents endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Document, error) {
	path, err := remote.Path("/projects/%s/documents", projectID)
	if err != nil {
		return nil, err
	}
	var out []Document
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Create(ctx context.Context, projectID string, d Document) (Document, error) {
	path, err := remote.Path("/projects/%s/documents", projectID)
	if err != nil {
		return Document{}, err
	}
	d.ID = ""
	var out Document
	err = a.c.Post(ctx, path, d, &out)
	return out, err
}

func (a *httpAPI) Update(ctx context.Context, id string, d Document) (Document, error) {
	path, err := remote.Path("/documents/%s", id)
	if err != nil {
		return Document{}, err
	}
	var out Document
	err = a.c.Patch(ctx, path, d, &out)
	return out, err
}

func (a *httpAPI) Delete(ctx context.Context, id string) error {
	path, err := remote.Path("/documents/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}
