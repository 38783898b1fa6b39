package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	_ "github.com/dhima/schedule-reconciler/docs" // registers the swagger spec
	"github.com/dhima/schedule-reconciler/internal/api"
	"github.com/dhima/schedule-reconciler/internal/app"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/pkg/config"
)

// @title Schedule Reconciler API
// @version 1.0
// @description Materializes recurring schedules into events and keeps one-off triggers in step with them.
// @description
// @description ## Lifecycle
// @description - A schedule always has at most one pending event, registered with the one-off scheduler.
// @description - When the trigger fires the event starts, an event.fired message is published to Kafka and the next occurrence is materialized.
// @description - Cancelling a scheduled event skips that occurrence.

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(logging.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("failed to build runtime", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("failed to release resources", zap.Error(err))
		}
	}()

	srv, err := api.NewServer(cfg, logger, api.Dependencies{
		Schedules:  rt.Schedules,
		Events:     rt.Events,
		Reconciler: rt.Controller,
		Guard:      rt.Guard,
		DB:         rt.SQL,
		Gatherer:   rt.Registry,
	})
	if err != nil {
		logger.Fatal("failed to build API server", zap.Error(err))
	}

	if err := srv.Serve(ctx); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
}
