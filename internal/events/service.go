package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

const defaultListLimit = 100

// Service provides event lifecycle operations. Every status change is a
// guarded write selecting the expected current status, so it never races
// the firing path into an illegal transition.
type Service struct {
	store  storage.Store
	clock  clock.Clock
	logger logging.Logger
}

// NewService creates an event service on the observed store.
func NewService(store storage.Store, clk clock.Clock, logger logging.Logger) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Service{store: store, clock: clk, logger: logger}
}

// CreateEvent stores a standalone event; its trigger is registered on insert.
func (s *Service) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	if req.PlanStart <= 0 {
		return nil, models.NewValidationError("plan_start must be a positive epoch timestamp")
	}
	if req.PlanEnd != nil && *req.PlanEnd < req.PlanStart {
		return nil, models.NewValidationError("plan_end (%d) must not be before plan_start (%d)", *req.PlanEnd, req.PlanStart)
	}

	event := models.Event{
		PlanStart: req.PlanStart,
		PlanEnd:   req.PlanEnd,
		Status:    models.EventStatusPending,
		UserID:    req.UserID,
		ObjectID:  req.ObjectID,
		Meta:      req.Meta,
	}
	if err := s.store.InsertEvent(ctx, &event); err != nil {
		if event.ID == "" {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		s.logger.Error("event created but trigger registration failed",
			logging.EventID(event.ID), logging.FailureKind("reconcile"), zap.Error(err))
		return nil, err
	}

	s.logger.Info("standalone event created",
		logging.EventID(event.ID), zap.Int64("plan_start", event.PlanStart))
	return s.GetEvent(ctx, event.ID)
}

// GetEvent fetches one event.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns events ordered by plan_start.
func (s *Service) ListEvents(ctx context.Context, query models.ListEventsQuery) (models.EventListResponse, error) {
	filter := storage.EventFilter{Limit: query.Limit}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if query.ScheduleID != "" {
		filter.ScheduleID = &query.ScheduleID
	}
	if query.Status != "" {
		filter.Statuses = []models.EventStatus{models.EventStatus(query.Status)}
	}

	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return models.EventListResponse{}, fmt.Errorf("list events: %w", err)
	}
	return models.EventListResponse{Events: events}, nil
}

// RescheduleEvent moves a pending event. Without plan_end the existing
// duration is kept.
func (s *Service) RescheduleEvent(ctx context.Context, id string, req models.RescheduleEventRequest) (*models.Event, error) {
	if req.PlanStart <= 0 {
		return nil, models.NewValidationError("plan_start must be a positive epoch timestamp")
	}
	current, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := storage.EventPatch{PlanStart: &req.PlanStart, PlanEnd: req.PlanEnd}
	if req.PlanEnd == nil && current.PlanEnd != nil {
		end := req.PlanStart + (*current.PlanEnd - current.PlanStart)
		patch.PlanEnd = &end
	}
	if patch.PlanEnd != nil && *patch.PlanEnd < req.PlanStart {
		return nil, models.NewValidationError("plan_end (%d) must not be before plan_start (%d)", *patch.PlanEnd, req.PlanStart)
	}

	if err := s.transition(ctx, id, models.EventStatusPending, patch); err != nil {
		return nil, err
	}
	s.logger.Info("event rescheduled",
		logging.EventID(id),
		zap.Int64("from", current.PlanStart),
		zap.Int64("to", req.PlanStart))
	return s.GetEvent(ctx, id)
}

// CancelEvent cancels a pending event. A scheduled event is skipped and
// its schedule chains to the following occurrence.
func (s *Service) CancelEvent(ctx context.Context, id string) (*models.Event, error) {
	cancelled := models.EventStatusCancelled
	if err := s.transition(ctx, id, models.EventStatusPending, storage.EventPatch{Status: &cancelled}); err != nil {
		return nil, err
	}
	s.logger.Info("event cancelled", logging.EventID(id))
	return s.GetEvent(ctx, id)
}

// CompleteEvent marks an in-progress event completed with actual_end = now.
func (s *Service) CompleteEvent(ctx context.Context, id string) (*models.Event, error) {
	completed := models.EventStatusCompleted
	ended := clock.Unix(s.clock)
	if err := s.transition(ctx, id, models.EventStatusInProgress, storage.EventPatch{Status: &completed, ActualEnd: &ended}); err != nil {
		return nil, err
	}
	s.logger.Info("event completed", logging.EventID(id))
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes an event in any status; a live trigger is cancelled.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	n, err := s.store.DeleteEvents(ctx, storage.EventFilter{ID: id})
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return storage.ErrEventNotFound
	}
	s.logger.Info("event deleted", logging.EventID(id))
	return nil
}

func (s *Service) transition(ctx context.Context, id string, from models.EventStatus, patch storage.EventPatch) error {
	n, err := s.store.UpdateEvents(ctx, storage.EventFilter{ID: id, Statuses: []models.EventStatus{from}}, patch)
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("event %s is not %s: %w", id, from, models.ErrInvalidTransition)
}
