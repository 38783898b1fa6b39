package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/storage"
)

const (
	defaultPageSize   = 20
	defaultEventLimit = 100
)

// RuleValidator checks that a schedule's recurrence can be evaluated.
type RuleValidator interface {
	Validate(s models.Schedule) error
}

// Service encapsulates schedule business logic. Writes go through the
// observed store, so materialization and trigger registration follow
// every successful write.
type Service struct {
	store     storage.Store
	validator RuleValidator
	logger    logging.Logger
}

// NewService creates a schedule service.
func NewService(store storage.Store, validator RuleValidator, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Service{store: store, validator: validator, logger: logger}
}

// CreateSchedule validates and persists a schedule and returns it with its first event.
func (s *Service) CreateSchedule(ctx context.Context, req models.CreateScheduleRequest) (*models.ScheduleResponse, error) {
	schedule := models.Schedule{
		Cron:        strings.TrimSpace(req.Cron),
		Timezone:    strings.TrimSpace(req.Timezone),
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		DurationSec: req.DurationSec,
		UserID:      req.UserID,
		ObjectID:    req.ObjectID,
		Meta:        req.Meta,
	}
	if schedule.Timezone == "" {
		schedule.Timezone = "UTC"
	}
	if err := s.validate(schedule); err != nil {
		return nil, err
	}

	if err := s.store.InsertSchedule(ctx, &schedule); err != nil {
		if schedule.ID == "" {
			return nil, fmt.Errorf("insert schedule: %w", err)
		}
		// The row exists; only its first event could not be set up.
		s.logger.Error("schedule created but reconciliation failed",
			logging.ScheduleID(schedule.ID), logging.FailureKind("reconcile"), zap.Error(err))
		return nil, err
	}

	s.logger.Info("schedule created",
		logging.ScheduleID(schedule.ID),
		zap.String("cron", schedule.Cron),
		zap.String("timezone", schedule.Timezone))

	return s.GetSchedule(ctx, schedule.ID)
}

// GetSchedule fetches a schedule with its next pending event.
func (s *Service) GetSchedule(ctx context.Context, id string) (*models.ScheduleResponse, error) {
	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrScheduleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	resp, err := s.buildResponse(ctx, *schedule)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSchedules returns one page of schedules, newest first.
func (s *Service) ListSchedules(ctx context.Context, query models.ListSchedulesQuery) (models.ScheduleListResponse, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = defaultPageSize
	}

	filter := storage.ScheduleFilter{
		Limit:  query.Limit + 1,
		Offset: (query.Page - 1) * query.Limit,
	}
	if query.UserID != "" {
		filter.UserID = &query.UserID
	}
	if query.ObjectID != "" {
		filter.ObjectID = &query.ObjectID
	}

	rows, err := s.store.ListSchedules(ctx, filter)
	if err != nil {
		return models.ScheduleListResponse{}, fmt.Errorf("list schedules: %w", err)
	}

	hasMore := len(rows) > query.Limit
	if hasMore {
		rows = rows[:query.Limit]
	}

	out := make([]models.ScheduleResponse, 0, len(rows))
	for _, row := range rows {
		resp, err := s.buildResponse(ctx, row)
		if err != nil {
			return models.ScheduleListResponse{}, err
		}
		out = append(out, resp)
	}

	return models.ScheduleListResponse{
		Schedules: out,
		Pagination: models.Pagination{
			CurrentPage: query.Page,
			PageSize:    query.Limit,
			HasMore:     hasMore,
		},
	}, nil
}

// UpdateSchedule applies a partial update. Changing the recurrence replaces
// the pending event; other fields only affect events materialized later.
func (s *Service) UpdateSchedule(ctx context.Context, id string, req models.UpdateScheduleRequest) (*models.ScheduleResponse, error) {
	current, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrScheduleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	patch := storage.SchedulePatch{
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		ClearEndAt:  req.ClearEndAt && req.EndAt == nil,
		DurationSec: req.DurationSec,
		Meta:        req.Meta,
	}
	if req.Cron != nil {
		cron := strings.TrimSpace(*req.Cron)
		patch.Cron = &cron
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if tz == "" {
			tz = "UTC"
		}
		patch.Timezone = &tz
	}

	if patch.IsEmpty() {
		return s.GetSchedule(ctx, id)
	}

	updated := *current
	patch.Apply(&updated)
	if err := s.validate(updated); err != nil {
		return nil, err
	}

	n, err := s.store.UpdateSchedule(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrScheduleNotFound
	}

	s.logger.Info("schedule updated",
		logging.ScheduleID(id),
		zap.Bool("recurrence_changed", updated.RecurrenceChanged(*current)))

	return s.GetSchedule(ctx, id)
}

// DeleteSchedule removes a schedule. Its pending event goes with it; fired
// events stay as history.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	n, err := s.store.DeleteSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n == 0 {
		return storage.ErrScheduleNotFound
	}
	s.logger.Info("schedule deleted", logging.ScheduleID(id))
	return nil
}

// ListScheduleEvents returns the events of a schedule, latest first.
func (s *Service) ListScheduleEvents(ctx context.Context, id string, status string, limit int) (models.EventListResponse, error) {
	if _, err := s.store.GetSchedule(ctx, id); err != nil {
		if errors.Is(err, storage.ErrScheduleNotFound) {
			return models.EventListResponse{}, err
		}
		return models.EventListResponse{}, fmt.Errorf("get schedule: %w", err)
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}

	filter := storage.EventFilter{ScheduleID: &id, Descending: true, Limit: limit}
	if status != "" {
		filter.Statuses = []models.EventStatus{models.EventStatus(status)}
	}
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return models.EventListResponse{}, fmt.Errorf("list schedule events: %w", err)
	}
	return models.EventListResponse{Events: events}, nil
}

func (s *Service) validate(schedule models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	return s.validator.Validate(schedule)
}

func (s *Service) buildResponse(ctx context.Context, schedule models.Schedule) (models.ScheduleResponse, error) {
	next, err := s.store.ListEvents(ctx, storage.EventFilter{
		ScheduleID: &schedule.ID,
		Statuses:   []models.EventStatus{models.EventStatusPending},
		Limit:      1,
	})
	if err != nil {
		return models.ScheduleResponse{}, fmt.Errorf("load next event: %w", err)
	}
	resp := models.ScheduleResponse{Schedule: schedule}
	if len(next) > 0 {
		resp.NextEvent = &next[0]
	}
	return resp, nil
}
