package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/api/handlers"
	"github.com/dhima/schedule-reconciler/internal/api/middleware"
	"github.com/dhima/schedule-reconciler/internal/guard"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/pkg/config"
)

// Dependencies are the collaborators the HTTP layer routes to.
type Dependencies struct {
	Schedules  handlers.ScheduleService
	Events     handlers.EventService
	Reconciler handlers.FiringReconciler
	Guard      guard.Guard
	DB         handlers.Pinger
	Gatherer   prometheus.Gatherer
}

// Server orchestrates HTTP routing for the reconciler API.
type Server struct {
	config config.App
	logger logging.Logger
	router *gin.Engine
}

// NewServer builds the router. The caller owns every dependency and
// closes them after Serve returns.
func NewServer(cfg config.App, logger logging.Logger, deps Dependencies) (*Server, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	fired, err := handlers.NewFiredHandler(logger, deps.Reconciler, deps.Guard, handlers.FiredConfig{
		Secret:       cfg.WebhookSecret,
		SecretHeader: cfg.WebhookSecretHeader,
		GuardTTL:     cfg.FiringGuardTTL,
	})
	if err != nil {
		return nil, err
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is empty; firing webhook accepts unauthenticated calls")
	}

	s := &Server{config: cfg, logger: logger}
	s.setupRouter(deps, fired)
	return s, nil
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter(deps Dependencies, fired *handlers.FiredHandler) {
	router := gin.New()
	zapLogger := logging.Zap(s.logger)

	// Recovery first so it catches panics from the rest of the chain.
	router.Use(ginzap.RecoveryWithZap(zapLogger, true))
	router.Use(middleware.RequestID())
	router.Use(ginzap.Ginzap(zapLogger, time.RFC3339, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.NewHealthHandler(s.logger, deps.DB).Health)
	router.GET("/metrics", handlers.NewMetricsHandler(deps.Gatherer).Metrics)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		scheduleHandler := handlers.NewScheduleHandler(s.logger, deps.Schedules)
		schedules := v1.Group("/schedules")
		{
			schedules.POST("", scheduleHandler.CreateSchedule)
			schedules.GET("", scheduleHandler.ListSchedules)
			schedules.GET("/:id", scheduleHandler.GetSchedule)
			schedules.PATCH("/:id", scheduleHandler.UpdateSchedule)
			schedules.DELETE("/:id", scheduleHandler.DeleteSchedule)
			schedules.GET("/:id/events", scheduleHandler.ListScheduleEvents)
		}

		eventHandler := handlers.NewEventHandler(s.logger, deps.Events)
		events := v1.Group("/events")
		{
			events.POST("", eventHandler.CreateEvent)
			events.GET("", eventHandler.ListEvents)
			events.GET("/:id", eventHandler.GetEvent)
			events.DELETE("/:id", eventHandler.DeleteEvent)
			events.POST("/:id/reschedule", eventHandler.RescheduleEvent)
			events.POST("/:id/cancel", eventHandler.CancelEvent)
			events.POST("/:id/complete", eventHandler.CompleteEvent)
		}

		v1.POST("/oneoff/fired", fired.Fired)
	}

	s.router = router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := ":" + s.config.APIPort
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server",
			zap.String("address", addr),
			zap.String("environment", s.config.Environment),
			zap.String("log_level", s.config.LogLevel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("server stopped")
	return nil
}
