// Package app assembles the reconciler's runtime from configuration. Both
// binaries share it so the API and the sweeper react to writes identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/events"
	"github.com/dhima/schedule-reconciler/internal/guard"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/metrics"
	"github.com/dhima/schedule-reconciler/internal/oneoff"
	"github.com/dhima/schedule-reconciler/internal/reconcile"
	"github.com/dhima/schedule-reconciler/internal/recurrence"
	"github.com/dhima/schedule-reconciler/internal/schedules"
	"github.com/dhima/schedule-reconciler/internal/storage"
	kafkaevents "github.com/dhima/schedule-reconciler/platform/events"
	"github.com/dhima/schedule-reconciler/pkg/clock"
	"github.com/dhima/schedule-reconciler/pkg/config"
)

// Runtime holds the wired collaborators. Close releases them.
type Runtime struct {
	Config     config.App
	Logger     logging.Logger
	SQL        *storage.SQLStore
	Store      *storage.ObservedStore
	Controller *reconcile.Controller
	Schedules  *schedules.Service
	Events     *events.Service
	Guard      guard.Guard
	Registry   *prometheus.Registry
	Sink       metrics.Sink

	closers []func() error
}

// Options override pieces of the runtime, mostly for tests.
type Options struct {
	Clock    clock.Clock
	Callback reconcile.ExecutionCallback
	OneOff   oneoff.Client
}

// Build connects to the database, ensures the schema and wires the
// observed store to a new controller.
func Build(ctx context.Context, cfg config.App, logger logging.Logger, opts Options) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	rt := &Runtime{Config: cfg, Logger: logger}

	db, dialect, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, db.Close)

	rt.SQL = storage.NewSQLStore(db, dialect, clk)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rt.SQL.Ping(pingCtx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := rt.SQL.EnsureSchema(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Sink = metrics.NewPrometheusSink(rt.Registry, logger)

	client := opts.OneOff
	if client == nil {
		if cfg.OneOffEndpoint == "" {
			logger.Warn("ONEOFF_ENDPOINT is empty; trigger registration will fail and the sweeper fires overdue events")
		}
		client = oneoff.NewHTTPClient(oneoff.HTTPClientConfig{
			Endpoint:            cfg.OneOffEndpoint,
			AdminSecret:         cfg.OneOffAdminSecret,
			WebhookURL:          cfg.CallbackURL,
			WebhookSecretHeader: cfg.WebhookSecretHeader,
			WebhookSecret:       cfg.WebhookSecret,
			Timeout:             cfg.OneOffTimeout,
			RateLimit:           cfg.OneOffRateLimit,
		}, rt.Sink)
	}

	callback := opts.Callback
	if callback == nil {
		publisher := kafkaevents.NewPublisher(cfg.KafkaBrokerList(), cfg.KafkaTopic, logging.Zap(logger))
		rt.closers = append(rt.closers, publisher.Close)
		callback = publisher
	}

	rt.Guard = guard.NopGuard{}
	if cfg.RedisURL != "" {
		redisGuard, err := guard.NewRedisGuardFromURL(cfg.RedisURL)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, redisGuard.Close)
		if err := redisGuard.Ping(pingCtx); err != nil {
			// fails open per delivery; the store compare-and-set still holds
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
		rt.Guard = redisGuard
	}

	computer := recurrence.NewComputer()
	rt.Store = storage.NewObservedStore(rt.SQL)
	rt.Controller = reconcile.New(rt.Store, oneoff.NewBridge(client, clk, logger, rt.Sink), computer, callback, clk, logger, rt.Sink).
		WithOptions(reconcile.Options{
			AutoComplete:       cfg.AutoComplete,
			EarlyFireTolerance: cfg.EarlyFireTolerance,
		})
	rt.Store.Observe(rt.Controller)

	rt.Schedules = schedules.NewService(rt.Store, computer, logger)
	rt.Events = events.NewService(rt.Store, clk, logger)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
