package storage

import (
	"context"
	"errors"

	"github.com/dhima/schedule-reconciler/internal/models"
)

var (
	// ErrScheduleNotFound is returned when a schedule is not found.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrEventNotFound is returned when an event is not found.
	ErrEventNotFound = errors.New("event not found")
	// ErrUnboundedFilter rejects bulk writes without any constraint.
	ErrUnboundedFilter = errors.New("refusing to write with an empty filter")
)

// Store persists schedules and events. Inserts assign an id when the row
// has none and stamp created_at/updated_at.
type Store interface {
	InsertSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, patch SchedulePatch) (int64, error)
	DeleteSchedule(ctx context.Context, id string) (int64, error)

	InsertEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]models.Event, error)
	UpdateEvents(ctx context.Context, filter EventFilter, patch EventPatch) (int64, error)
	DeleteEvents(ctx context.Context, filter EventFilter) (int64, error)
}
