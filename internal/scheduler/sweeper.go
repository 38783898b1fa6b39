// Package scheduler runs the periodic repair pass that re-registers
// pending events whose trigger registration failed, fires overdue events
// whose trigger never arrived and re-chains schedules left without a
// pending event.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/metrics"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/reconcile"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/internal/tracing"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

// Options tunes a sweeper.
type Options struct {
	Interval  time.Duration
	BatchSize int
	// MaxLateness cancels overdue events older than this instead of firing
	// them. Cancelling a scheduled event chains it past now. Zero disables.
	MaxLateness time.Duration
	// TriggerGrace is how long a registered trigger may be overdue before
	// the sweeper fires the event itself. It is also how long the latest
	// event of a schedule must have been settled before the schedule is
	// re-chained; Interval is used when it is zero.
	TriggerGrace time.Duration
}

// Sweeper periodically scans for pending events the trigger path missed.
type Sweeper struct {
	store      storage.Store
	reconciler Reconciler
	clock      clock.Clock
	logger     logging.Logger
	metrics    metrics.Sink
	opts       Options
}

// SweepResult summarises one pass.
type SweepResult struct {
	Reregistered int
	Fired        int
	Skipped      int
	Repaired     int
}

// NewSweeper constructs a sweeper. store must be the observed store so
// skipped events chain through the reconciler.
func NewSweeper(store storage.Store, reconciler Reconciler, clk clock.Clock, logger logging.Logger, sink metrics.Sink, opts Options) *Sweeper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Sweeper{store: store, reconciler: reconciler, clock: clk, logger: logger, metrics: sink, opts: opts}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("batch_size", s.opts.BatchSize))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		}
	}
}

// Sweep performs a single repair pass.
func (s *Sweeper) Sweep(ctx context.Context) (result SweepResult, err error) {
	ctx, span := tracing.StartSweepSpan(ctx)
	started := s.clock.Now()
	defer func() {
		s.metrics.SweepCompleted(s.clock.Now().Sub(started), result.Reregistered, result.Fired, err)
		tracing.End(span, err)
	}()

	now := started.Unix()
	var errs []error

	if n, err := s.reregister(ctx, now); err != nil {
		errs = append(errs, err)
	} else {
		result.Reregistered = n
	}

	overdue, err := s.overdue(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	for _, e := range overdue {
		if ctx.Err() != nil {
			break
		}
		if s.opts.MaxLateness > 0 && time.Duration(now-e.PlanStart)*time.Second > s.opts.MaxLateness {
			skipped, err := s.skip(ctx, e)
			if err != nil {
				errs = append(errs, err)
			} else if skipped {
				result.Skipped++
			}
			continue
		}
		fired, err := s.fire(ctx, e)
		if err != nil {
			errs = append(errs, err)
		} else if fired {
			result.Fired++
		}
	}

	if ctx.Err() == nil {
		n, err := s.repairSchedules(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		result.Repaired = n
	}

	if result.Reregistered+result.Fired+result.Skipped+result.Repaired > 0 {
		s.logger.Info("sweep repaired events",
			zap.Int("reregistered", result.Reregistered),
			zap.Int("fired", result.Fired),
			zap.Int("skipped", result.Skipped),
			zap.Int("repaired", result.Repaired))
	}
	return result, errors.Join(errs...)
}

func (s *Sweeper) reregister(ctx context.Context, now int64) (int, error) {
	events, err := s.store.ListEvents(ctx, storage.EventFilter{
		Statuses:       []models.EventStatus{models.EventStatusPending},
		OneOffIsNull:   true,
		PlanStartAfter: &now,
		Limit:          s.opts.BatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list unregistered events: %w", err)
	}

	registered := 0
	for _, e := range events {
		ok, err := s.reconciler.EnsureRegistered(ctx, e)
		if err != nil {
			return registered, fmt.Errorf("register event %s: %w", e.ID, err)
		}
		if ok {
			registered++
		}
	}
	return registered, nil
}

// overdue lists pending events at or past plan_start that either never got
// a trigger or whose trigger is silent beyond the grace period.
func (s *Sweeper) overdue(ctx context.Context, now int64) ([]models.Event, error) {
	pending := []models.EventStatus{models.EventStatusPending}
	unregistered, err := s.store.ListEvents(ctx, storage.EventFilter{
		Statuses:            pending,
		OneOffIsNull:        true,
		PlanStartAtOrBefore: &now,
		Limit:               s.opts.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list overdue events: %w", err)
	}
	if s.opts.TriggerGrace <= 0 {
		return unregistered, nil
	}

	cutoff := now - int64(s.opts.TriggerGrace/time.Second)
	silent, err := s.store.ListEvents(ctx, storage.EventFilter{
		Statuses:            pending,
		HasOneOff:           true,
		PlanStartAtOrBefore: &cutoff,
		Limit:               s.opts.BatchSize,
	})
	if err != nil {
		return unregistered, fmt.Errorf("list events with silent triggers: %w", err)
	}
	return append(unregistered, silent...), nil
}

// repairSchedules re-chains every schedule whose chain was broken by a
// failed write after its latest event settled.
func (s *Sweeper) repairSchedules(ctx context.Context, now int64) (int, error) {
	settle := s.opts.TriggerGrace
	if settle <= 0 {
		settle = s.opts.Interval
	}
	settledBefore := now - int64(settle/time.Second)

	repaired := 0
	var errs []error
	for offset := 0; ctx.Err() == nil; offset += s.opts.BatchSize {
		page, err := s.store.ListSchedules(ctx, storage.ScheduleFilter{Limit: s.opts.BatchSize, Offset: offset})
		if err != nil {
			errs = append(errs, fmt.Errorf("list schedules: %w", err))
			break
		}
		for _, sched := range page {
			ok, err := s.reconciler.RepairSchedule(ctx, sched, settledBefore)
			if err != nil {
				errs = append(errs, fmt.Errorf("repair schedule %s: %w", sched.ID, err))
				continue
			}
			if ok {
				repaired++
			}
		}
		if len(page) < s.opts.BatchSize {
			break
		}
	}
	return repaired, errors.Join(errs...)
}

func (s *Sweeper) fire(ctx context.Context, e models.Event) (bool, error) {
	result, err := s.reconciler.OnOneOffFired(ctx, e.ID, e.ScheduleID, models.FiredKindStart)
	var cbErr *reconcile.CallbackError
	if errors.As(err, &cbErr) {
		// Already logged by the controller; the event stays in_progress.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fire overdue event %s: %w", e.ID, err)
	}
	return result == reconcile.FireExecuted, nil
}

func (s *Sweeper) skip(ctx context.Context, e models.Event) (bool, error) {
	cancelled := models.EventStatusCancelled
	n, err := s.store.UpdateEvents(ctx,
		storage.EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusPending}, PlanStart: &e.PlanStart},
		storage.EventPatch{Status: &cancelled},
	)
	if err != nil {
		return false, fmt.Errorf("skip late event %s: %w", e.ID, err)
	}
	if n > 0 {
		s.logger.Warn("overdue event exceeded max lateness; skipped",
			logging.EventID(e.ID), logging.OptionalScheduleID(e.ScheduleID),
			zap.Int64("plan_start", e.PlanStart))
	}
	return n > 0, nil
}
