package models

import (
	"encoding/json"
	"time"
)

// EventStatus represents the lifecycle state of an event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusCancelled  EventStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusCancelled
}

// FiredKind identifies which boundary of an event a one-shot trigger marks.
type FiredKind string

const (
	FiredKindStart FiredKind = "start"
)

// Event is one materialized, schedulable occurrence.
type Event struct {
	ID          string          `json:"id"`
	ScheduleID  *string         `json:"schedule_id,omitempty"` // NULL for standalone events
	PlanStart   int64           `json:"plan_start"`
	PlanEnd     *int64          `json:"plan_end,omitempty"`
	ActualStart *int64          `json:"actual_start,omitempty"`
	ActualEnd   *int64          `json:"actual_end,omitempty"`
	Status      EventStatus     `json:"status"`
	OneOffID    *string         `json:"one_off_id,omitempty"`
	// FailureReason is set when the execution callback of the event failed.
	FailureReason *string `json:"failure_reason,omitempty"`
	UserID      *string         `json:"user_id,omitempty"`
	ObjectID    *string         `json:"object_id,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
} // @name Event

// HasTrigger reports whether the event references an external one-shot trigger.
func (e Event) HasTrigger() bool {
	return e.OneOffID != nil && *e.OneOffID != ""
}

// ScheduleIDValue returns the owning schedule id or "" for standalone events.
func (e Event) ScheduleIDValue() string {
	if e.ScheduleID == nil {
		return ""
	}
	return *e.ScheduleID
}

// OneOffPayload is carried by a one-shot trigger and echoed back when it fires.
type OneOffPayload struct {
	EventID    string    `json:"eventId" example:"660e8400-e29b-41d4-a716-446655440000"`
	ScheduleID *string   `json:"scheduleId,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind       FiredKind `json:"kind" example:"start"`
} // @name OneOffPayload

// CreateEventRequest represents the request to create a standalone event.
type CreateEventRequest struct {
	PlanStart int64           `json:"plan_start" binding:"required,gt=0" example:"1767258000"`
	PlanEnd   *int64          `json:"plan_end,omitempty" example:"1767261600"`
	UserID    *string         `json:"user_id,omitempty" example:"user-42"`
	ObjectID  *string         `json:"object_id,omitempty" example:"room-7"`
	Meta      json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
} // @name CreateEventRequest

// RescheduleEventRequest moves a pending event.
type RescheduleEventRequest struct {
	PlanStart int64  `json:"plan_start" binding:"required,gt=0" example:"1767261600"`
	PlanEnd   *int64 `json:"plan_end,omitempty" example:"1767265200"`
} // @name RescheduleEventRequest

// ListEventsQuery represents query parameters for listing events.
type ListEventsQuery struct {
	ScheduleID string `form:"schedule_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status     string `form:"status" binding:"omitempty,oneof=pending in_progress completed cancelled" example:"pending"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500" example:"50"`
} // @name ListEventsQuery

// EventListResponse represents the response for listing events.
type EventListResponse struct {
	Events []Event `json:"events"`
} // @name EventListResponse
