package fakes

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

var ErrInjected = errors.New("injected store failure")

// FakeStore is an in-memory implementation of storage.Store sharing the
// filter and patch semantics of the SQL store.
type FakeStore struct {
	mu        sync.Mutex
	clock     clock.Clock
	seq       int
	order     map[string]int
	schedules map[string]models.Schedule
	events    map[string]models.Event

	// FailInsertEvent makes the next InsertEvent calls fail while > 0.
	FailInsertEvent int
	// FailUpdateEvents makes the next UpdateEvents calls fail while > 0.
	FailUpdateEvents int
	// FailGetSchedule makes the next GetSchedule calls fail while > 0.
	FailGetSchedule int
}

func NewFakeStore(clk clock.Clock) *FakeStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &FakeStore{
		clock:     clk,
		order:     make(map[string]int),
		schedules: make(map[string]models.Schedule),
		events:    make(map[string]models.Event),
	}
}

func (f *FakeStore) InsertSchedule(_ context.Context, s *models.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := f.clock.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	f.schedules[s.ID] = cloneSchedule(*s)
	return nil
}

func (f *FakeStore) GetSchedule(_ context.Context, id string) (*models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGetSchedule > 0 {
		f.FailGetSchedule--
		return nil, ErrInjected
	}
	s, ok := f.schedules[id]
	if !ok {
		return nil, storage.ErrScheduleNotFound
	}
	out := cloneSchedule(s)
	return &out, nil
}

func (f *FakeStore) ListSchedules(_ context.Context, filter storage.ScheduleFilter) ([]models.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Schedule, 0)
	for _, s := range f.schedules {
		if filter.Matches(s) {
			out = append(out, cloneSchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return out[:0], nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *FakeStore) UpdateSchedule(_ context.Context, id string, patch storage.SchedulePatch) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return 0, nil
	}
	patch.Apply(&s)
	s.UpdatedAt = f.clock.Now().UTC()
	f.schedules[id] = s
	return 1, nil
}

func (f *FakeStore) DeleteSchedule(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return 0, nil
	}
	delete(f.schedules, id)
	return 1, nil
}

func (f *FakeStore) InsertEvent(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailInsertEvent > 0 {
		f.FailInsertEvent--
		return ErrInjected
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = models.EventStatusPending
	}
	now := f.clock.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	f.seq++
	f.order[e.ID] = f.seq
	f.events[e.ID] = cloneEvent(*e)
	return nil
}

func (f *FakeStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, storage.ErrEventNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (f *FakeStore) ListEvents(_ context.Context, filter storage.EventFilter) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matching(filter), nil
}

func (f *FakeStore) UpdateEvents(_ context.Context, filter storage.EventFilter, patch storage.EventPatch) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter.IsEmpty() {
		return 0, storage.ErrUnboundedFilter
	}
	if f.FailUpdateEvents > 0 {
		f.FailUpdateEvents--
		return 0, ErrInjected
	}
	if patch.IsEmpty() {
		return 0, nil
	}
	filter.Limit = 0
	var n int64
	for _, e := range f.matching(filter) {
		patch.Apply(&e)
		e.UpdatedAt = f.clock.Now().UTC()
		f.events[e.ID] = e
		n++
	}
	return n, nil
}

func (f *FakeStore) DeleteEvents(_ context.Context, filter storage.EventFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter.IsEmpty() {
		return 0, storage.ErrUnboundedFilter
	}
	filter.Limit = 0
	var n int64
	for _, e := range f.matching(filter) {
		delete(f.events, e.ID)
		n++
	}
	return n, nil
}

// Events returns a snapshot of every event ordered by plan_start.
func (f *FakeStore) Events() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matching(storage.EventFilter{})
}

// PutEvent stores e as-is, bypassing defaults and listeners.
func (f *FakeStore) PutEvent(e models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.order[e.ID]; !ok {
		f.seq++
		f.order[e.ID] = f.seq
	}
	f.events[e.ID] = cloneEvent(e)
}

func (f *FakeStore) matching(filter storage.EventFilter) []models.Event {
	out := make([]models.Event, 0)
	for _, e := range f.events {
		if filter.Matches(e) {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PlanStart != b.PlanStart {
			if filter.Descending {
				return a.PlanStart > b.PlanStart
			}
			return a.PlanStart < b.PlanStart
		}
		if filter.Descending {
			return f.order[a.ID] > f.order[b.ID]
		}
		return f.order[a.ID] < f.order[b.ID]
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func cloneSchedule(s models.Schedule) models.Schedule {
	s.EndAt = cloneInt64(s.EndAt)
	s.DurationSec = cloneInt64(s.DurationSec)
	s.UserID = cloneString(s.UserID)
	s.ObjectID = cloneString(s.ObjectID)
	if s.Meta != nil {
		s.Meta = append([]byte(nil), s.Meta...)
	}
	return s
}

func cloneEvent(e models.Event) models.Event {
	e.ScheduleID = cloneString(e.ScheduleID)
	e.PlanEnd = cloneInt64(e.PlanEnd)
	e.ActualStart = cloneInt64(e.ActualStart)
	e.ActualEnd = cloneInt64(e.ActualEnd)
	e.OneOffID = cloneString(e.OneOffID)
	e.FailureReason = cloneString(e.FailureReason)
	e.UserID = cloneString(e.UserID)
	e.ObjectID = cloneString(e.ObjectID)
	if e.Meta != nil {
		e.Meta = append([]byte(nil), e.Meta...)
	}
	return e
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
