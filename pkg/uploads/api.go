package uploads

import (
	"context"

	"github.com/dyluth/sitesync/pkg/remote"
)

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the uploads endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Upload, error) {
	path, err := remote.Path("/projects/%s/uploads", projectID)
	if err != nil {
		return nil, err
	}
	var out []Upload
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Create(ctx context.Context, projectID string, u Upload) (Upload, error) {
	path, err := remote.Path("/projects/%s/uploads", projectID)
	if err != nil {
		return Upload{}, err
	}
	u.ID = ""
	var out Upload
	err = a.c.Post(ctx, path, u, &out)
	return out, err
}

func (a *httpAPI) Update(ctx context.Context, id string, u Upload) (Upload, error) {
	path, err := remote.Path("/uploads/%s", id)
	if err != nil {
		return Upload{}, err
	}
	var out Upload
	err = a.c.Patch(ctx, path, u, &out)
	return out, err
}

func (a *httpAPI) Delete(ctx context.Context, id string) error {
	path, err := remote.Path("/uploads/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}

func (a *httpAPI) AddComment(ctx context.Context, uploadID, body string) (Upload, error) {
	path, err := remote.Path("/uploads/%s/comments", uploadID)
	if err != nil {
		return Upload{}, err
	}
	var out Upload
	err = a.c.Post(ctx, path, map[string]string{"body": body}, &out)
	return out, err
}
