package reconcile

import (
	"context"
	"fmt"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// Bridge registers and cancels one-shot triggers. Failures are soft and
// surface only as ok=false.
type Bridge interface {
	Register(ctx context.Context, event models.Event) (externalID string, ok bool)
	Cancel(ctx context.Context, externalID string) bool
}

// Computer derives the next occurrence of a schedule.
type Computer interface {
	Compute(schedule models.Schedule, last *models.Event) (*models.Event, error)
	// ComputeAfter is Compute limited to occurrences strictly after the epoch second after.
	ComputeAfter(schedule models.Schedule, last *models.Event, after int64) (*models.Event, error)
}

// ExecutionCallback performs the business action of a fired event.
// schedule is nil for standalone events.
type ExecutionCallback interface {
	Execute(ctx context.Context, event models.Event, schedule *models.Schedule) error
}

// ExecutionCallbackFunc adapts a function to ExecutionCallback.
type ExecutionCallbackFunc func(ctx context.Context, event models.Event, schedule *models.Schedule) error

func (f ExecutionCallbackFunc) Execute(ctx context.Context, event models.Event, schedule *models.Schedule) error {
	return f(ctx, event, schedule)
}

// CallbackError reports that the business action of a fired event failed.
// The event stays in_progress and nothing is chained.
type CallbackError struct {
	EventID    string
	ScheduleID string
	Err        error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("execution callback failed for event %s: %v", e.EventID, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// FireResult describes how a firing was handled.
type FireResult string

const (
	FireExecuted       FireResult = "executed"
	FireStale          FireResult = "stale"
	FireCallbackFailed FireResult = "callback_failed"
)
