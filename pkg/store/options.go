package store

import (
	"log/slog"
	"time"

	"github.com/dyluth/sitesync/pkg/metrics"
	"github.com/dyluth/sitesync/pkg/persist"
)

// Settings are the knobs shared by every domain store.
type Settings struct {
	Persist persist.Store
	Policy  FailurePolicy
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Clock   func() time.Time
}

// Option configures Settings.
type Option func(*Settings)

// WithPersistence snapshots the store into p after every change.
func WithPersistence(p persist.Store) Option {
	return func(s *Settings) { s.Persist = p }
}

// WithPolicy sets the failure policy (default RetainOnFailure).
func WithPolicy(p FailurePolicy) Option {
	return func(s *Settings) { s.Policy = p }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Settings) { s.Logger = l }
}

// WithMetrics records fetches and mutations.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Settings) { s.Metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Settings) { s.Clock = clock }
}

// Apply folds opts into a Settings value with defaults filled in.
func Apply(opts ...Option) Settings {
	s := Settings{Policy: RetainOnFailure}
	for _, opt := range opts {
		opt(&s)
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}
