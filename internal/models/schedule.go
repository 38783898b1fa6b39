package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Schedule is a recurring intent from which events are materialized.
type Schedule struct {
	ID          string          `json:"id"`
	Cron        string          `json:"cron"`
	Timezone    string          `json:"timezone"`
	StartAt     int64           `json:"start_at"`
	EndAt       *int64          `json:"end_at,omitempty"`
	DurationSec *int64          `json:"duration_sec,omitempty"`
	UserID      *string         `json:"user_id,omitempty"`
	ObjectID    *string         `json:"object_id,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
} // @name Schedule

// Validate checks the recurrence window and duration.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Cron) == "" {
		return NewValidationError("cron is required")
	}
	if s.StartAt <= 0 {
		return NewValidationError("start_at must be a positive epoch timestamp")
	}
	if s.EndAt != nil && *s.EndAt < s.StartAt {
		return NewValidationError("end_at (%d) must not be before start_at (%d)", *s.EndAt, s.StartAt)
	}
	if s.DurationSec != nil && *s.DurationSec < 0 {
		return NewValidationError("duration_sec must not be negative")
	}
	return nil
}

// RecurrenceChanged reports whether any field that drives occurrence
// computation differs between s and other.
func (s Schedule) RecurrenceChanged(other Schedule) bool {
	if s.Cron != other.Cron || s.StartAt != other.StartAt || s.Timezone != other.Timezone {
		return true
	}
	return !equalInt64Ptr(s.EndAt, other.EndAt)
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateScheduleRequest represents the request to create a schedule.
type CreateScheduleRequest struct {
	Cron        string          `json:"cron" binding:"required" example:"0 9 * * *"`
	Timezone    string          `json:"timezone,omitempty" example:"America/New_York"`
	StartAt     int64           `json:"start_at" binding:"required,gt=0" example:"1767258000"`
	EndAt       *int64          `json:"end_at,omitempty" example:"1798794000"`
	DurationSec *int64          `json:"duration_sec,omitempty" example:"1800"`
	UserID      *string         `json:"user_id,omitempty" example:"user-42"`
	ObjectID    *string         `json:"object_id,omitempty" example:"room-7"`
	Meta        json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
} // @name CreateScheduleRequest

// UpdateScheduleRequest represents a partial schedule update.
type UpdateScheduleRequest struct {
	Cron        *string         `json:"cron,omitempty" example:"0 10 * * *"`
	Timezone    *string         `json:"timezone,omitempty" example:"UTC"`
	StartAt     *int64          `json:"start_at,omitempty" example:"1767258000"`
	EndAt       *int64          `json:"end_at,omitempty" example:"1798794000"`
	ClearEndAt  bool            `json:"clear_end_at,omitempty"`
	DurationSec *int64          `json:"duration_sec,omitempty" example:"3600"`
	Meta        json.RawMessage `json:"meta,omitempty" swaggertype:"object"`
} // @name UpdateScheduleRequest

// ScheduleResponse is a schedule together with its next pending event, if any.
type ScheduleResponse struct {
	Schedule
	NextEvent *Event `json:"next_event,omitempty"`
} // @name ScheduleResponse

// ListSchedulesQuery represents query parameters for listing schedules.
type ListSchedulesQuery struct {
	UserID   string `form:"user_id" example:"user-42"`
	ObjectID string `form:"object_id" example:"room-7"`
	Page     int    `form:"page" binding:"omitempty,min=1" example:"1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100" example:"20"`
} // @name ListSchedulesQuery

// ScheduleListResponse represents the response for listing schedules.
type ScheduleListResponse struct {
	Schedules  []ScheduleResponse `json:"schedules"`
	Pagination Pagination         `json:"pagination"`
} // @name ScheduleListResponse

// Pagination represents pagination metadata.
type Pagination struct {
	CurrentPage int  `json:"current_page" example:"1"`
	PageSize    int  `json:"page_size" example:"20"`
	HasMore     bool `json:"has_more" example:"false"`
} // @name Pagination
