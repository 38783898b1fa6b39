// Package reconcile keeps schedules, events and external one-shot triggers
// consistent. Its three handlers are driven by row-change notifications and
// by the firing webhook; all state is re-read from the store on every call.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/metrics"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/recurrence"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/internal/tracing"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

// DefaultEarlyFireTolerance absorbs clock skew between this service and the scheduler.
const DefaultEarlyFireTolerance = 5 * time.Second

// Options tunes optional controller behavior.
type Options struct {
	// AutoComplete moves a fired event to completed once its callback succeeds.
	AutoComplete bool
	// EarlyFireTolerance is how far before plan_start a firing is still accepted.
	EarlyFireTolerance time.Duration
}

// Controller implements storage.ChangeListener and handles firings.
type Controller struct {
	store    storage.Store
	bridge   Bridge
	computer Computer
	callback ExecutionCallback
	clock    clock.Clock
	logger   logging.Logger
	metrics  metrics.Sink
	opts     Options
}

var pendingOnly = []models.EventStatus{models.EventStatusPending}

// New wires a controller. store should be the ObservedStore the controller
// listens on so its own writes cascade through the handlers.
func New(store storage.Store, bridge Bridge, computer Computer, callback ExecutionCallback, clk clock.Clock, logger logging.Logger, sink metrics.Sink) *Controller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Controller{
		store:    store,
		bridge:   bridge,
		computer: computer,
		callback: callback,
		clock:    clk,
		logger:   logger,
		metrics:  sink,
		opts:     Options{EarlyFireTolerance: DefaultEarlyFireTolerance},
	}
}

// WithOptions replaces the controller options.
func (c *Controller) WithOptions(opts Options) *Controller {
	c.opts = opts
	return c
}

// OnScheduleChange materializes, replaces or removes the pending event of a schedule.
func (c *Controller) OnScheduleChange(ctx context.Context, op models.ChangeOp, newSchedule, oldSchedule *models.Schedule) (err error) {
	ctx, span := tracing.StartHandlerSpan(ctx, "on_schedule_change",
		tracing.AttrChangeOp.String(string(op)),
		tracing.AttrScheduleID.String(scheduleIDOf(newSchedule, oldSchedule)),
	)
	defer func() { tracing.End(span, err) }()

	switch op {
	case models.ChangeInsert:
		if newSchedule == nil {
			return nil
		}
		return c.materializeNext(ctx, *newSchedule, nil)

	case models.ChangeUpdate:
		if newSchedule == nil || oldSchedule == nil || !newSchedule.RecurrenceChanged(*oldSchedule) {
			return nil
		}
		return c.replacePending(ctx, *newSchedule)

	case models.ChangeDelete:
		if oldSchedule == nil {
			return nil
		}
		n, err := c.store.DeleteEvents(ctx, storage.EventFilter{ScheduleID: &oldSchedule.ID, Statuses: pendingOnly})
		if err != nil {
			return fmt.Errorf("delete pending events of schedule %s: %w", oldSchedule.ID, err)
		}
		c.logger.Info("schedule deleted; pending events removed",
			logging.ScheduleID(oldSchedule.ID), zap.Int64("deleted", n))
	}
	return nil
}

// OnEventChange registers, replaces or cancels the one-shot trigger of an event.
func (c *Controller) OnEventChange(ctx context.Context, op models.ChangeOp, newEvent, oldEvent *models.Event) (err error) {
	ctx, span := tracing.StartHandlerSpan(ctx, "on_event_change",
		tracing.AttrChangeOp.String(string(op)),
		tracing.AttrEventID.String(eventIDOf(newEvent, oldEvent)),
	)
	defer func() { tracing.End(span, err) }()

	switch op {
	case models.ChangeInsert:
		if newEvent == nil || newEvent.Status != models.EventStatusPending || newEvent.HasTrigger() {
			return nil
		}
		_, err := c.attachTrigger(ctx, *newEvent, nil)
		return err

	case models.ChangeUpdate:
		if newEvent == nil || oldEvent == nil {
			return nil
		}
		return c.onEventUpdate(ctx, *newEvent, *oldEvent)

	case models.ChangeDelete:
		if oldEvent != nil && oldEvent.Status == models.EventStatusPending && oldEvent.HasTrigger() {
			c.bridge.Cancel(ctx, *oldEvent.OneOffID)
		}
	}
	return nil
}

func (c *Controller) onEventUpdate(ctx context.Context, newEvent, oldEvent models.Event) error {
	if oldEvent.Status != models.EventStatusPending {
		return nil
	}

	if newEvent.Status == models.EventStatusPending {
		if newEvent.PlanStart == oldEvent.PlanStart {
			return nil
		}
		if oldEvent.HasTrigger() {
			c.bridge.Cancel(ctx, *oldEvent.OneOffID)
		}
		if newEvent.HasTrigger() && (!oldEvent.HasTrigger() || *newEvent.OneOffID != *oldEvent.OneOffID) {
			c.bridge.Cancel(ctx, *newEvent.OneOffID)
		}
		_, err := c.attachTrigger(ctx, newEvent, newEvent.OneOffID)
		return err
	}

	// The event left pending; its trigger must not survive.
	if newEvent.HasTrigger() {
		c.bridge.Cancel(ctx, *newEvent.OneOffID)
		if _, err := c.store.UpdateEvents(ctx,
			storage.EventFilter{ID: newEvent.ID, OneOffID: newEvent.OneOffID},
			storage.EventPatch{ClearOneOffID: true},
		); err != nil {
			return fmt.Errorf("clear one-off id of event %s: %w", newEvent.ID, err)
		}
	}

	if newEvent.Status == models.EventStatusCancelled && newEvent.ScheduleID != nil {
		return c.chainAfterCancel(ctx, newEvent)
	}
	return nil
}

// EnsureRegistered registers a pending event that has no trigger yet.
// It reports whether a trigger id was stored on the row.
func (c *Controller) EnsureRegistered(ctx context.Context, e models.Event) (bool, error) {
	if e.Status != models.EventStatusPending || e.HasTrigger() {
		return false, nil
	}
	return c.attachTrigger(ctx, e, nil)
}

// RepairSchedule materializes the next event of a schedule whose chain was
// broken by a failed write: it has no pending event and its latest event
// settled at or before settledBefore without a recorded callback failure.
// It reports whether an event was inserted.
func (c *Controller) RepairSchedule(ctx context.Context, s models.Schedule, settledBefore int64) (bool, error) {
	last, err := c.latestEvent(ctx, s.ID)
	if err != nil {
		return false, err
	}

	var after int64
	switch {
	case last == nil:
		if s.CreatedAt.Unix() > settledBefore {
			return false, nil
		}
	case last.Status == models.EventStatusPending:
		return false, nil
	case last.FailureReason != nil:
		return false, nil
	case last.UpdatedAt.Unix() > settledBefore:
		return false, nil
	case last.Status == models.EventStatusCancelled:
		after = clock.Unix(c.clock)
	}

	// Exhausted schedules are the common case here; skip them quietly.
	var next *models.Event
	if after > 0 {
		next, err = c.computer.ComputeAfter(s, last, after)
	} else {
		next, err = c.computer.Compute(s, last)
	}
	if err != nil {
		return false, fmt.Errorf("compute next event of schedule %s: %w", s.ID, err)
	}
	if next == nil {
		return false, nil
	}

	inserted, err := c.materialize(ctx, s, last, after)
	if err != nil {
		return false, err
	}
	if inserted {
		c.logger.Warn("schedule repaired", logging.ScheduleID(s.ID), zap.Int64("plan_start", next.PlanStart))
	}
	return inserted, nil
}

// attachTrigger registers e and stores the new id with a guarded follow-up
// write. previous is the id the row is expected to hold, nil for none.
func (c *Controller) attachTrigger(ctx context.Context, e models.Event, previous *string) (bool, error) {
	externalID, ok := c.bridge.Register(ctx, e)

	var patch storage.EventPatch
	switch {
	case ok:
		patch.OneOffID = &externalID
	case previous != nil:
		patch.ClearOneOffID = true
	default:
		return false, nil
	}

	guard := storage.EventFilter{ID: e.ID, Statuses: pendingOnly, PlanStart: &e.PlanStart}
	if previous != nil {
		guard.OneOffID = previous
	} else {
		guard.OneOffIsNull = true
	}

	n, err := c.store.UpdateEvents(ctx, guard, patch)
	if err != nil {
		if ok {
			c.bridge.Cancel(ctx, externalID)
		}
		return false, fmt.Errorf("store one-off id of event %s: %w", e.ID, err)
	}
	if n == 0 && ok {
		c.logger.Info("event changed during registration; cancelling orphaned trigger",
			logging.EventID(e.ID), logging.OneOffID(externalID))
		c.bridge.Cancel(ctx, externalID)
		return false, nil
	}
	return ok, nil
}

// OnOneOffFired executes a fired event exactly once and chains its schedule.
// Missing, non-pending or early events are stale and return FireStale with
// no error. A failing callback returns *CallbackError.
func (c *Controller) OnOneOffFired(ctx context.Context, eventID string, scheduleID *string, kind models.FiredKind) (result FireResult, err error) {
	ctx, span := tracing.StartHandlerSpan(ctx, "on_oneoff_fired", tracing.AttrEventID.String(eventID))
	defer func() {
		span.SetAttributes(tracing.AttrOutcome.String(string(result)))
		tracing.End(span, err)
	}()

	log := c.logger.With(logging.EventID(eventID), logging.OptionalScheduleID(scheduleID))

	if kind != models.FiredKindStart {
		return c.stale(log, "unsupported firing kind", zap.String("kind", string(kind))), nil
	}

	event, err := c.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrEventNotFound) {
		return c.stale(log, "event no longer exists"), nil
	}
	if err != nil {
		return "", fmt.Errorf("load fired event %s: %w", eventID, err)
	}
	if event.Status != models.EventStatusPending {
		return c.stale(log, "event is not pending", zap.String("status", string(event.Status))), nil
	}

	now := c.clock.Now()
	if time.Unix(event.PlanStart, 0).After(now.Add(c.opts.EarlyFireTolerance)) {
		return c.stale(log, "firing arrived before plan_start", zap.Int64("plan_start", event.PlanStart)), nil
	}
	if scheduleID != nil && event.ScheduleIDValue() != *scheduleID {
		log.Warn("firing schedule id does not match event; using the event's",
			zap.String("event_schedule_id", event.ScheduleIDValue()))
	}

	// Load the schedule before claiming the event so a failed read leaves it
	// pending for the redelivery.
	var schedule *models.Schedule
	if event.ScheduleID != nil {
		schedule, err = c.store.GetSchedule(ctx, *event.ScheduleID)
		if errors.Is(err, storage.ErrScheduleNotFound) {
			log.Info("schedule of fired event no longer exists")
			schedule, err = nil, nil
		}
		if err != nil {
			return "", fmt.Errorf("load schedule of event %s: %w", event.ID, err)
		}
	}

	started := now.Unix()
	inProgress := models.EventStatusInProgress
	n, err := c.store.UpdateEvents(ctx,
		storage.EventFilter{ID: event.ID, Statuses: pendingOnly},
		storage.EventPatch{Status: &inProgress, ActualStart: &started, ClearOneOffID: true},
	)
	if err != nil {
		return "", fmt.Errorf("mark event %s in progress: %w", event.ID, err)
	}
	if n == 0 {
		return c.stale(log, "event left pending concurrently"), nil
	}
	event.Status = inProgress
	event.ActualStart = &started
	event.OneOffID = nil

	if cbErr := c.callback.Execute(ctx, *event, schedule); cbErr != nil {
		c.metrics.FiringOutcome(metrics.FiringCallbackFailed)
		log.Error("execution callback failed; event left in progress",
			logging.FailureKind("callback"), zap.Error(cbErr))
		failed := &CallbackError{EventID: event.ID, ScheduleID: event.ScheduleIDValue(), Err: cbErr}
		if err := c.recordFailure(ctx, event.ID, cbErr); err != nil {
			log.Error("cannot record callback failure", zap.Error(err))
			return FireCallbackFailed, errors.Join(failed, err)
		}
		return FireCallbackFailed, failed
	}
	c.metrics.FiringOutcome(metrics.FiringExecuted)
	log.Info("event executed")

	if c.opts.AutoComplete {
		if err := c.complete(ctx, event.ID); err != nil {
			return FireExecuted, err
		}
	}

	if event.ScheduleID == nil || schedule == nil {
		return FireExecuted, nil
	}

	// Re-read: the callback or a concurrent writer may have changed the schedule.
	fresh, err := c.store.GetSchedule(ctx, *event.ScheduleID)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		log.Info("schedule deleted during execution; not chaining")
		return FireExecuted, nil
	}
	if err != nil {
		return FireExecuted, fmt.Errorf("reload schedule %s: %w", *event.ScheduleID, err)
	}
	chained, err := c.materialize(ctx, *fresh, event, 0)
	if err != nil {
		return FireExecuted, err
	}
	if chained {
		c.metrics.EventChained()
	}
	return FireExecuted, nil
}

func (c *Controller) complete(ctx context.Context, eventID string) error {
	completed := models.EventStatusCompleted
	ended := clock.Unix(c.clock)
	_, err := c.store.UpdateEvents(ctx,
		storage.EventFilter{ID: eventID, Statuses: []models.EventStatus{models.EventStatusInProgress}},
		storage.EventPatch{Status: &completed, ActualEnd: &ended},
	)
	if err != nil {
		return fmt.Errorf("complete event %s: %w", eventID, err)
	}
	return nil
}

// recordFailure marks an in-progress event as failed so the repair pass
// leaves its schedule alone.
func (c *Controller) recordFailure(ctx context.Context, eventID string, cause error) error {
	reason := cause.Error()
	_, err := c.store.UpdateEvents(ctx,
		storage.EventFilter{ID: eventID, Statuses: []models.EventStatus{models.EventStatusInProgress}},
		storage.EventPatch{FailureReason: &reason},
	)
	if err != nil {
		return fmt.Errorf("record failure of event %s: %w", eventID, err)
	}
	return nil
}

func (c *Controller) stale(log logging.Logger, reason string, fields ...zap.Field) FireResult {
	c.metrics.FiringOutcome(metrics.FiringStale)
	log.Info("stale firing ignored: "+reason, fields...)
	return FireStale
}

// replacePending swaps the nearest future pending event of s for one
// computed from the new recurrence. Overdue pending events are left to fire.
func (c *Controller) replacePending(ctx context.Context, s models.Schedule) error {
	pending, err := c.store.ListEvents(ctx, storage.EventFilter{ScheduleID: &s.ID, Statuses: pendingOnly})
	if err != nil {
		return fmt.Errorf("list pending events of schedule %s: %w", s.ID, err)
	}

	if len(pending) > 0 {
		target := pending[0]
		if target.PlanStart <= clock.Unix(c.clock) {
			c.logger.Info("recurrence changed; overdue pending event left to fire",
				logging.ScheduleID(s.ID), logging.EventID(target.ID))
			return nil
		}
		n, err := c.store.DeleteEvents(ctx, storage.EventFilter{ID: target.ID, Statuses: pendingOnly})
		if err != nil {
			return fmt.Errorf("delete pending event %s: %w", target.ID, err)
		}
		if n == 0 {
			c.logger.Info("pending event changed concurrently; replacement skipped",
				logging.ScheduleID(s.ID), logging.EventID(target.ID))
			return nil
		}
	}

	last, err := c.latestEvent(ctx, s.ID)
	if err != nil {
		return err
	}
	return c.materializeNext(ctx, s, last)
}

func (c *Controller) chainAfterCancel(ctx context.Context, cancelled models.Event) error {
	schedule, err := c.store.GetSchedule(ctx, *cancelled.ScheduleID)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load schedule of cancelled event %s: %w", cancelled.ID, err)
	}
	// Skip to the first occurrence after both the cancelled one and now.
	_, err = c.materialize(ctx, *schedule, &cancelled, clock.Unix(c.clock))
	return err
}

func (c *Controller) materializeNext(ctx context.Context, s models.Schedule, last *models.Event) error {
	_, err := c.materialize(ctx, s, last, 0)
	return err
}

// materialize inserts the next pending event of s unless one already exists.
// A positive after restricts the result to occurrences later than it.
func (c *Controller) materialize(ctx context.Context, s models.Schedule, last *models.Event, after int64) (bool, error) {
	existing, err := c.store.ListEvents(ctx, storage.EventFilter{ScheduleID: &s.ID, Statuses: pendingOnly, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("list pending events of schedule %s: %w", s.ID, err)
	}
	if len(existing) > 0 {
		c.logger.Debug("schedule already has a pending event",
			logging.ScheduleID(s.ID), logging.EventID(existing[0].ID))
		return false, nil
	}

	var next *models.Event
	if after > 0 {
		next, err = c.computer.ComputeAfter(s, last, after)
	} else {
		next, err = c.computer.Compute(s, last)
	}
	if err != nil {
		c.logger.Error("cannot compute next occurrence",
			logging.ScheduleID(s.ID), logging.FailureKind("compute"),
			zap.String("rule", recurrence.String(s)), zap.Error(err))
		return false, fmt.Errorf("compute next event of schedule %s: %w", s.ID, err)
	}
	if next == nil {
		c.metrics.ScheduleExhausted()
		c.logger.Info("schedule exhausted", logging.ScheduleID(s.ID))
		return false, nil
	}

	if err := c.store.InsertEvent(ctx, next); err != nil {
		return false, fmt.Errorf("insert next event of schedule %s: %w", s.ID, err)
	}
	c.logger.Info("event materialized",
		logging.ScheduleID(s.ID), logging.EventID(next.ID), zap.Int64("plan_start", next.PlanStart))

	return true, c.dedupePending(ctx, s.ID)
}

// dedupePending converges concurrent materializations: every pass keeps the
// same earliest pending event and deletes the rest by explicit id.
func (c *Controller) dedupePending(ctx context.Context, scheduleID string) error {
	pending, err := c.store.ListEvents(ctx, storage.EventFilter{ScheduleID: &scheduleID, Statuses: pendingOnly})
	if err != nil {
		return fmt.Errorf("list pending events of schedule %s: %w", scheduleID, err)
	}
	for _, extra := range pending[min(1, len(pending)):] {
		c.logger.Warn("duplicate pending event removed",
			logging.ScheduleID(scheduleID), logging.EventID(extra.ID))
		if _, err := c.store.DeleteEvents(ctx, storage.EventFilter{ID: extra.ID, Statuses: pendingOnly}); err != nil {
			return fmt.Errorf("delete duplicate pending event %s: %w", extra.ID, err)
		}
	}
	return nil
}

func (c *Controller) latestEvent(ctx context.Context, scheduleID string) (*models.Event, error) {
	events, err := c.store.ListEvents(ctx, storage.EventFilter{ScheduleID: &scheduleID, Descending: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("load latest event of schedule %s: %w", scheduleID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func scheduleIDOf(a, b *models.Schedule) string {
	if a != nil {
		return a.ID
	}
	if b != nil {
		return b.ID
	}
	return ""
}

func eventIDOf(a, b *models.Event) string {
	if a != nil {
		return a.ID
	}
	if b != nil {
		return b.ID
	}
	return ""
}
