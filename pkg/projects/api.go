package projects

import (
	"context"

	"github.com/dyluth/sitesync/pkg/remote"
)

// API is the remote half of the project directory.
type API interface {
	List(ctx context.Context) ([]Project, error)
	Create(ctx context.Context, p Project) (Project, error)
	Update(ctx context.Context, id string, p Project) (Project, error)
	Delete(ctx context.Context, id string) error
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the projects endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := a.c.Get(ctx, "/projects", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Create(ctx context.Context, p Project) (Project, error) {
	p.ID = ""
	var out Project
	err := a.c.Post(ctx, "/projects", p, &out)
	return out, err
}

func (a *httpAPI) Update(ctx context.Context, id string, p Project) (Project, error) {
	path, err := remote.Path("/projects/%s", id)
	if err != nil {
		return Project{}, err
	}
	var out Project
	err = a.c.Patch(ctx, path, p, &out)
	return out, err
}

func (a *httpAPI) Delete(ctx context.Context, id string) error {
	path, err := remote.Path("/projects/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}
