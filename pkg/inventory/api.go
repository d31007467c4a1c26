package inventory

import (
	"context"

	"github.com/dyluth/sitesync/pkg/remote"
)

// API is the remote half of the inventory store.
type API interface {
	List(ctx context.Context, projectID string) ([]Item, error)
	Create(ctx context.Context, projectID string, item Item) (Item, error)
	BulkCreate(ctx context.Context, projectID string, items []Item) ([]Item, error)
	Update(ctx context.Context, id string, item Item) (Item, error)
	Adjust(ctx context.Context, id string, delta int, reason string) (Item, error)
	Delete(ctx context.Context, id string) error
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the inventory endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Item, error) {
	path, err := remote.Path("/projects/%s/inventory", projectID)
	if err != nil {
		return nil, err
	}
	var out []Item
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Create(ctx context.Context, projectID string, item Item) (Item, error) {
	path, err := remote.Path("/projects/%s/inventory", projectID)
	if err != nil {
		return Item{}, err
	}
	item.ID = ""
	var out Item
	err = a.c.Post(ctx, path, item, &out)
	return out, err
}

func (a *httpAPI) BulkCreate(ctx context.Context, projectID string, items []Item) ([]Item, error) {
	path, err := remote.Path("/projects/%s/inventory/bulk", projectID)
	if err != nil {
		return nil, err
	}
	body := make([]Item, len(items))
	for i, it := range items {
		it.ID = ""
		body[i] = it
	}
	var out []Item
	if err := a.c.Post(ctx, path, map[string][]Item{"items": body}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Update(ctx context.Context, id string, item Item) (Item, error) {
	path, err := remote.Path("/inventory/%s", id)
	if err != nil {
		return Item{}, err
	}
	var out Item
	err = a.c.Patch(ctx, path, item, &out)
	return out, err
}

func (a *httpAPI) Adjust(ctx context.Context, id string, delta int, reason string) (Item, error) {
	path, err := remote.Path("/inventory/%s/adjust", id)
	if err != nil {
		return Item{}, err
	}
	body := struct {
		Delta  int    `json:"delta"`
		Reason string `json:"reason,omitempty"`
	}{delta, reason}
	var out Item
	err = a.c.Post(ctx, path, body, &out)
	return out, err
}

func (a *httpAPI) Delete(ctx context.Context, id string) error {
	path, err := remote.Path("/inventory/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}
