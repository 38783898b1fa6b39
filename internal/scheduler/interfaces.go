package scheduler

import (
	"context"

	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/reconcile"
)

// Reconciler is the part of the reconcile controller the sweeper drives.
type Reconciler interface {
	EnsureRegistered(ctx context.Context, event models.Event) (bool, error)
	OnOneOffFired(ctx context.Context, eventID string, scheduleID *string, kind models.FiredKind) (reconcile.FireResult, error)
	RepairSchedule(ctx context.Context, schedule models.Schedule, settledBefore int64) (bool, error)
}
