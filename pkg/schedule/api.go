package schedule

import (
	"context"

	"github.com/dyluth/sitesync/pkg/remote"
)

// API is the remote half of the schedule store.
type API interface {
	List(ctx context.Context, projectID string) ([]Stage, error)
	Create(ctx context.Context, projectID string, s Stage) (Stage, error)
	Update(ctx context.Context, id string, s Stage) (Stage, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, projectID string, ids []string) error
}

type httpAPI struct {
	c *remote.Client
}

// NewHTTPAPI returns an API backed by the stages endpoints.
func NewHTTPAPI(c *remote.Client) API {
	return &httpAPI{c: c}
}

func (a *httpAPI) List(ctx context.Context, projectID string) ([]Stage, error) {
	path, err := remote.Path("/projects/%s/stages", projectID)
	if err != nil {
		return nil, err
	}
	var out []Stage
	if err := a.c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Create(ctx context.Context, projectID string, s Stage) (Stage, error) {
	path, err := remote.Path("/projects/%s/stages", projectID)
	if err != nil {
		return Stage{}, err
	}
	s.ID = ""
	var out Stage
	err = a.c.Post(ctx, path, s, &out)
	return out, err
}

func (a *httpAPI) Update(ctx context.Context, id string, s Stage) (Stage, error) {
	path, err := remote.Path("/stages/%s", id)
	if err != nil {
		return Stage{}, err
	}
	var out Stage
	err = a.c.Patch(ctx, path, s, &out)
	return out, err
}

func (a *httpAPI) Delete(ctx context.Context, id string) error {
	path, err := remote.Path("/stages/%s", id)
	if err != nil {
		return err
	}
	return a.c.Delete(ctx, path)
}

func (a *httpAPI) Reorder(ctx context.Context, projectID string, ids []string) error {
	path, err := remote.Path("/projects/%s/stages/order", projectID)
	if err != nil {
		return err
	}
	return a.c.Put(ctx, path, map[string][]string{"order": ids}, nil)
}
