package storage

import (
	"encoding/json"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// EventFilter selects event rows. Zero-valued fields do not constrain.
// Order and Limit apply to ListEvents only.
type EventFilter struct {
	ID                  string
	ScheduleID          *string
	Statuses            []models.EventStatus
	PlanStart           *int64
	PlanStartAfter      *int64 // plan_start > value
	PlanStartAtOrBefore *int64 // plan_start <= value
	OneOffID            *string
	OneOffIsNull        bool
	HasOneOff           bool

	Descending bool // order by plan_start, created_at descending
	Limit      int
}

// IsEmpty reports whether the filter would match every row.
func (f EventFilter) IsEmpty() bool {
	return f.ID == "" && f.ScheduleID == nil && len(f.Statuses) == 0 &&
		f.PlanStart == nil && f.PlanStartAfter == nil && f.PlanStartAtOrBefore == nil &&
		f.OneOffID == nil && !f.OneOffIsNull && !f.HasOneOff
}

// WithID narrows f to one row while keeping every other guard.
func (f EventFilter) WithID(id string) EventFilter {
	f.ID = id
	f.Limit = 0
	return f
}

// Matches evaluates the filter in memory with the same semantics as the SQL store.
func (f EventFilter) Matches(e models.Event) bool {
	if f.ID != "" && e.ID != f.ID {
		return false
	}
	if f.ScheduleID != nil && (e.ScheduleID == nil || *e.ScheduleID != *f.ScheduleID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if f.PlanStart != nil && e.PlanStart != *f.PlanStart {
		return false
	}
	if f.PlanStartAfter != nil && e.PlanStart <= *f.PlanStartAfter {
		return false
	}
	if f.PlanStartAtOrBefore != nil && e.PlanStart > *f.PlanStartAtOrBefore {
		return false
	}
	if f.OneOffID != nil && (e.OneOffID == nil || *e.OneOffID != *f.OneOffID) {
		return false
	}
	if f.OneOffIsNull && e.OneOffID != nil {
		return false
	}
	if f.HasOneOff && e.OneOffID == nil {
		return false
	}
	return true
}

func containsStatus(list []models.EventStatus, s models.EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// EventPatch describes column changes for UpdateEvents. Nil fields are left alone.
type EventPatch struct {
	Status        *models.EventStatus
	PlanStart     *int64
	PlanEnd       *int64
	ClearPlanEnd  bool
	ActualStart   *int64
	ActualEnd     *int64
	OneOffID      *string
	ClearOneOffID bool
	FailureReason *string
	Meta          json.RawMessage
}

// IsEmpty reports whether the patch changes nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Status == nil && p.PlanStart == nil && p.PlanEnd == nil && !p.ClearPlanEnd &&
		p.ActualStart == nil && p.ActualEnd == nil && p.OneOffID == nil && !p.ClearOneOffID &&
		p.FailureReason == nil && p.Meta == nil
}

// Apply mutates e in place.
func (p EventPatch) Apply(e *models.Event) {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.PlanStart != nil {
		e.PlanStart = *p.PlanStart
	}
	if p.ClearPlanEnd {
		e.PlanEnd = nil
	} else if p.PlanEnd != nil {
		e.PlanEnd = int64Ptr(*p.PlanEnd)
	}
	if p.ActualStart != nil {
		e.ActualStart = int64Ptr(*p.ActualStart)
	}
	if p.ActualEnd != nil {
		e.ActualEnd = int64Ptr(*p.ActualEnd)
	}
	if p.ClearOneOffID {
		e.OneOffID = nil
	} else if p.OneOffID != nil {
		e.OneOffID = stringPtr(*p.OneOffID)
	}
	if p.FailureReason != nil {
		e.FailureReason = stringPtr(*p.FailureReason)
	}
	if p.Meta != nil {
		e.Meta = append(json.RawMessage(nil), p.Meta...)
	}
}

// ScheduleFilter selects schedules for listing.
type ScheduleFilter struct {
	UserID   *string
	ObjectID *string
	Limit    int
	Offset   int
}

// Matches evaluates the filter in memory.
func (f ScheduleFilter) Matches(s models.Schedule) bool {
	if f.UserID != nil && (s.UserID == nil || *s.UserID != *f.UserID) {
		return false
	}
	if f.ObjectID != nil && (s.ObjectID == nil || *s.ObjectID != *f.ObjectID) {
		return false
	}
	return true
}

// SchedulePatch describes column changes for UpdateSchedule.
type SchedulePatch struct {
	Cron        *string
	Timezone    *string
	StartAt     *int64
	EndAt       *int64
	ClearEndAt  bool
	DurationSec *int64
	Meta        json.RawMessage
}

// IsEmpty reports whether the patch changes nothing.
func (p SchedulePatch) IsEmpty() bool {
	return p.Cron == nil && p.Timezone == nil && p.StartAt == nil && p.EndAt == nil &&
		!p.ClearEndAt && p.DurationSec == nil && p.Meta == nil
}

// Apply mutates s in place.
func (p SchedulePatch) Apply(s *models.Schedule) {
	if p.Cron != nil {
		s.Cron = *p.Cron
	}
	if p.Timezone != nil {
		s.Timezone = *p.Timezone
	}
	if p.StartAt != nil {
		s.StartAt = *p.StartAt
	}
	if p.ClearEndAt {
		s.EndAt = nil
	} else if p.EndAt != nil {
		s.EndAt = int64Ptr(*p.EndAt)
	}
	if p.DurationSec != nil {
		s.DurationSec = int64Ptr(*p.DurationSec)
	}
	if p.Meta != nil {
		s.Meta = append(json.RawMessage(nil), p.Meta...)
	}
}

func int64Ptr(v int64) *int64    { return &v }
func stringPtr(v string) *string { return &v }
