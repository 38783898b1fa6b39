package oneoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/metrics"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

// Bridge registers and cancels one-shot triggers for events. Every failure
// is soft: it is logged and counted, never returned.
type Bridge struct {
	client  Client
	clock   clock.Clock
	logger  logging.Logger
	metrics metrics.Sink
}

func NewBridge(client Client, clk clock.Clock, logger logging.Logger, sink metrics.Sink) *Bridge {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Bridge{client: client, clock: clk, logger: logger, metrics: sink}
}

// Register creates a trigger firing at e.PlanStart. It returns ok=false
// without calling the scheduler when e is not pending or not in the future.
func (b *Bridge) Register(ctx context.Context, e models.Event) (string, bool) {
	log := b.logger.With(logging.EventID(e.ID), logging.OptionalScheduleID(e.ScheduleID))

	now := clock.Unix(b.clock)
	if e.Status != models.EventStatusPending || e.PlanStart <= 0 || e.PlanStart <= now {
		b.metrics.RegistrationCompleted(metrics.OutcomeSkipped)
		log.Debug("one-off registration skipped",
			zap.String("status", string(e.Status)),
			zap.Int64("plan_start", e.PlanStart),
			zap.Int64("now", now),
		)
		return "", false
	}

	externalID, err := b.client.CreateScheduledEvent(ctx, CreateRequest{
		FireAt: time.Unix(e.PlanStart, 0).UTC(),
		Payload: models.OneOffPayload{
			EventID:    e.ID,
			ScheduleID: e.ScheduleID,
			Kind:       models.FiredKindStart,
		},
		Comment: fmt.Sprintf("start of event %s", e.ID),
	})
	if err != nil {
		b.metrics.RegistrationCompleted(metrics.OutcomeFailed)
		log.Warn("one-off registration failed", logging.FailureKind("oneoff"), zap.Error(err))
		return "", false
	}

	b.metrics.RegistrationCompleted(metrics.OutcomeSuccess)
	log.Info("one-off registered", logging.OneOffID(externalID), zap.Int64("plan_start", e.PlanStart))
	return externalID, true
}

// Cancel removes a trigger. An id the scheduler no longer knows counts as cancelled.
func (b *Bridge) Cancel(ctx context.Context, externalID string) bool {
	if externalID == "" {
		return false
	}
	log := b.logger.With(logging.OneOffID(externalID))

	err := b.client.DeleteScheduledEvent(ctx, externalID)
	switch {
	case errors.Is(err, ErrNotFound):
		b.metrics.CancellationCompleted(metrics.OutcomeSuccess)
		log.Debug("one-off already gone")
		return true
	case err != nil:
		b.metrics.CancellationCompleted(metrics.OutcomeFailed)
		log.Warn("one-off cancellation failed", logging.FailureKind("oneoff"), zap.Error(err))
		return false
	}

	b.metrics.CancellationCompleted(metrics.OutcomeSuccess)
	log.Info("one-off cancelled")
	return true
}
