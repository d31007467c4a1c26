package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dyluth/sitesync/internal/config"
	"github.com/dyluth/sitesync/internal/printer"
	"github.com/dyluth/sitesync/pkg/metrics"
	"github.com/dyluth/sitesync/pkg/persist"
	"github.com/dyluth/sitesync/pkg/persist/sqlite"
	"github.com/dyluth/sitesync/pkg/realtime"
	"github.com/dyluth/sitesync/pkg/remote"
	"github.com/dyluth/sitesync/pkg/session"
	"github.com/dyluth/sitesync/pkg/sitesync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// runtime is everything a command needs, built from configuration.
type runtime struct {
	cfg      *config.Config
	client   *sitesync.Client
	registry *prometheus.Registry
	logger   *slog.Logger
	closers  []io.Closer
}

type runtimeOptions struct {
	onEvent func(realtime.Event)
}

func setup(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Pass a config file with --config", "Set SITESYNC_API_BASE_URL"},
		)
	}
	if tokenFlag != "" {
		cfg.API.Token = tokenFlag
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rt := &runtime{cfg: cfg, registry: prometheus.NewRegistry(), logger: logger}

	sess := session.New()
	rc, err := remote.New(cfg.API.BaseURL, sess, remote.WithTimeout(cfg.API.Timeout), remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	store, err := rt.openPersistence()
	if err != nil {
		rt.Close()
		return nil, err
	}

	var transport realtime.Transport
	if cfg.Realtime.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Realtime.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("invalid realtime.redis_url: %w", err)
		}
		rtc, err := realtime.NewClient(redisOpts, cfg.Realtime.Namespace, rc, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if err := rtc.Ping(ctx); err != nil {
			logger.Warn("realtime server unreachable", "error", err)
		}
		transport = rtc
	}

	rt.client, err = sitesync.New(sitesync.Options{
		Session:   sess,
		Remote:    rc,
		Persist:   store,
		Transport: transport,
		Logger:    logger,
		Metrics:   metrics.New(rt.registry),
		OnEvent:   opts.onEvent,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.client)

	if err := rt.client.Start(ctx); err != nil {
		logger.Debug("start incomplete", "error", err)
	}
	if cfg.API.Token != "" {
		if err := rt.client.Login(ctx, cfg.API.Token, session.User{ID: userFlag}); err != nil {
			logger.Warn("login incomplete", "error", err)
		}
	}
	return rt, nil
}

func (rt *runtime) openPersistence() (persist.Store, error) {
	p := rt.cfg.Persistence
	switch p.Driver {
	case "redis":
		opts, err := redis.ParseURL(p.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid persistence.redis_url: %w", err)
		}
		r, err := persist.NewRedis(opts, rt.cfg.Realtime.Namespace)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, r)
		return r, nil
	case "sqlite":
		s, err := sqlite.Open(p.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, s)
		return s, nil
	default:
		return persist.NewMemory(), nil
	}
}

// requireAuth fails with guidance when no token was given.
func (rt *runtime) requireAuth() error {
	if rt.client.Session().Authenticated {
		return nil
	}
	return printer.Error(
		"not authenticated",
		"This command needs an API token.",
		[]string{"Pass --token <token>", "Set SITESYNC_API_TOKEN"},
	)
}

// Close releases resources in reverse order of creation.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
