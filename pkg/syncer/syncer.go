// Package syncer refreshes every domain store of a project concurrently.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/sitesync/pkg/metrics"
)

// Fetcher is one store taking part in a sync.
type Fetcher struct {
	Name  string
	Fetch func(ctx context.Context, projectID string) error
}

// Report is the outcome of one SyncAll call.
type Report struct {
	ProjectID string
	// Results holds one entry per fetcher; a nil error means it succeeded.
	Results  map[string]error
	Duration time.Duration
}

// Failed returns the names of the fetchers that failed, sorted.
func (r Report) Failed() []string {
	var out []string
	for name, err := range r.Results {
		if err != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// OK reports whether every fetcher succeeded.
func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

// Orchestrator fans a sync out to its fetchers.
type Orchestrator struct {
	fetchers []Fetcher
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// New creates an Orchestrator. logger and rec may be nil.
func New(logger *slog.Logger, rec *metrics.Recorder, fetchers ...Fetcher) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fetchers: fetchers,
		logger:   logger.With("component", "syncer"),
		metrics:  rec,
	}
}

// Names returns the registered fetcher names in registration order.
func (o *Orchestrator) Names() []string {
	out := make([]string, len(o.fetchers))
	for i, f := range o.fetchers {
		out[i] = f.Name
	}
	return out
}

// SyncAll starts every fetch at once and waits for all of them to settle.
//
// A failing or panicking fetcher never prevents the others from finishing;
// its error is recorded in the Report and logged. Each store guards its own
// state, so calling SyncAll again for the same project is safe and leaves
// the same state as a single call.
func (o *Orchestrator) SyncAll(ctx context.Context, projectID string) Report {
	start := time.Now()
	report := Report{ProjectID: projectID, Results: make(map[string]error, len(o.fetchers))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, f := range o.fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()
			err := o.run(ctx, f, projectID)
			mu.Lock()
			report.Results[f.Name] = err
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	failed := report.Failed()
	o.metrics.ObserveFanout(len(failed))
	if len(failed) > 0 {
		o.logger.Warn("sync finished with failures", "project_id", projectID, "failed", failed,
			"total", len(o.fetchers), "duration", report.Duration)
	} else {
		o.logger.Info("sync finished", "project_id", projectID, "total", len(o.fetchers), "duration", report.Duration)
	}
	return report
}

func (o *Orchestrator) run(ctx context.Context, f Fetcher, projectID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch %s panicked: %v", f.Name, r)
		}
	}()
	return f.Fetch(ctx, projectID)
}
