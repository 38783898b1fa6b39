package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/app"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/scheduler"
	"github.com/dhima/schedule-reconciler/pkg/clock"
	"github.com/dhima/schedule-reconciler/pkg/config"
)

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
	logger = logger.With(zap.String("component", "sweeper"))

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

	// metrics only; the sweeper has no API
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	sweeper := scheduler.NewSweeper(rt.Store, rt.Controller, clock.RealClock{}, logger, rt.Sink, scheduler.Options{
		Interval:     cfg.SweepInterval,
		BatchSize:    cfg.SweepBatchSize,
		MaxLateness:  cfg.SweepMaxLateness,
		TriggerGrace: cfg.SweepTriggerGrace,
	})
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sweeper exited with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
