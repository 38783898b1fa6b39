package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// ChangeListener receives row-change notifications after a write commits.
// new is nil for DELETE; old is nil for INSERT.
type ChangeListener interface {
	OnScheduleChange(ctx context.Context, op models.ChangeOp, newSchedule, oldSchedule *models.Schedule) error
	OnEventChange(ctx context.Context, op models.ChangeOp, newEvent, oldEvent *models.Event) error
}

// ObservedStore decorates a Store and notifies listeners synchronously
// after every successful schedule or event write. Bulk event writes are
// applied row by row so each change carries its old and new image.
type ObservedStore struct {
	Store

	mu        sync.RWMutex
	listeners []ChangeListener
}

func NewObservedStore(inner Store) *ObservedStore {
	return &ObservedStore{Store: inner}
}

// Observe registers l for all subsequent writes.
func (o *ObservedStore) Observe(l ChangeListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

func (o *ObservedStore) snapshot() []ChangeListener {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]ChangeListener(nil), o.listeners...)
}

func (o *ObservedStore) scheduleChanged(ctx context.Context, op models.ChangeOp, newS, oldS *models.Schedule) error {
	var errs []error
	for _, l := range o.snapshot() {
		if err := l.OnScheduleChange(ctx, op, newS, oldS); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *ObservedStore) eventChanged(ctx context.Context, op models.ChangeOp, newE, oldE *models.Event) error {
	var errs []error
	for _, l := range o.snapshot() {
		if err := l.OnEventChange(ctx, op, newE, oldE); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *ObservedStore) InsertSchedule(ctx context.Context, s *models.Schedule) error {
	if err := o.Store.InsertSchedule(ctx, s); err != nil {
		return err
	}
	inserted := *s
	if err := o.scheduleChanged(ctx, models.ChangeInsert, &inserted, nil); err != nil {
		return fmt.Errorf("reconcile inserted schedule %s: %w", s.ID, err)
	}
	return nil
}

func (o *ObservedStore) UpdateSchedule(ctx context.Context, id string, patch SchedulePatch) (int64, error) {
	old, err := o.Store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n, err := o.Store.UpdateSchedule(ctx, id, patch)
	if err != nil || n == 0 {
		return n, err
	}
	updated, err := o.Store.GetSchedule(ctx, id)
	if err != nil {
		return n, fmt.Errorf("reload updated schedule %s: %w", id, err)
	}
	if err := o.scheduleChanged(ctx, models.ChangeUpdate, updated, old); err != nil {
		return n, fmt.Errorf("reconcile updated schedule %s: %w", id, err)
	}
	return n, nil
}

func (o *ObservedStore) DeleteSchedule(ctx context.Context, id string) (int64, error) {
	old, err := o.Store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n, err := o.Store.DeleteSchedule(ctx, id)
	if err != nil || n == 0 {
		return n, err
	}
	if err := o.scheduleChanged(ctx, models.ChangeDelete, nil, old); err != nil {
		return n, fmt.Errorf("reconcile deleted schedule %s: %w", id, err)
	}
	return n, nil
}

func (o *ObservedStore) InsertEvent(ctx context.Context, e *models.Event) error {
	if err := o.Store.InsertEvent(ctx, e); err != nil {
		return err
	}
	inserted := *e
	if err := o.eventChanged(ctx, models.ChangeInsert, &inserted, nil); err != nil {
		return fmt.Errorf("reconcile inserted event %s: %w", e.ID, err)
	}
	return nil
}

func (o *ObservedStore) UpdateEvents(ctx context.Context, filter EventFilter, patch EventPatch) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrUnboundedFilter
	}
	matches, err := o.Store.ListEvents(ctx, filter)
	if err != nil {
		return 0, err
	}

	var total int64
	var errs []error
	for i := range matches {
		old := matches[i]
		n, err := o.Store.UpdateEvents(ctx, filter.WithID(old.ID), patch)
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}
		if n == 0 {
			continue
		}
		total += n
		updated, err := o.Store.GetEvent(ctx, old.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reload updated event %s: %w", old.ID, err))
			continue
		}
		if err := o.eventChanged(ctx, models.ChangeUpdate, updated, &old); err != nil {
			errs = append(errs, fmt.Errorf("reconcile updated event %s: %w", old.ID, err))
		}
	}
	return total, errors.Join(errs...)
}

func (o *ObservedStore) DeleteEvents(ctx context.Context, filter EventFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrUnboundedFilter
	}
	matches, err := o.Store.ListEvents(ctx, filter)
	if err != nil {
		return 0, err
	}

	var total int64
	var errs []error
	for i := range matches {
		old := matches[i]
		n, err := o.Store.DeleteEvents(ctx, filter.WithID(old.ID))
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}
		if n == 0 {
			continue
		}
		total += n
		if err := o.eventChanged(ctx, models.ChangeDelete, nil, &old); err != nil {
			errs = append(errs, fmt.Errorf("reconcile deleted event %s: %w", old.ID, err))
		}
	}
	return total, errors.Join(errs...)
}
