// Package recurrence turns a Schedule's cron rule into its next concrete Event.
package recurrence

import (
	"fmt"
	"time"
	_ "time/tzdata" // IANA zones for minimal container images

	"github.com/robfig/cron/v3"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// Parser accepts 5-field cron, an optional leading seconds field and
// descriptors such as @hourly or @every 90m.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Computer evaluates schedules. It holds no state and is safe for
// concurrent use.
type Computer struct{}

func NewComputer() *Computer {
	return &Computer{}
}

// Validate checks that the schedule's rule and timezone can be evaluated.
func (c *Computer) Validate(s models.Schedule) error {
	_, _, err := c.parse(s)
	return err
}

// Compute returns the next unpersisted pending Event for s, or nil when the
// schedule is exhausted. Without last, the first occurrence at or after
// start_at is used; with last, the first occurrence strictly after
// last.PlanStart, clamped to start_at.
func (c *Computer) Compute(s models.Schedule, last *models.Event) (*models.Event, error) {
	sched, loc, err := c.parse(s)
	if err != nil {
		return nil, err
	}

	start := time.Unix(s.StartAt, 0).In(loc)
	var next time.Time
	if last == nil {
		next = firstAtOrAfter(sched, start)
	} else {
		next = sched.Next(time.Unix(last.PlanStart, 0).In(loc))
		if next.Before(start) {
			next = firstAtOrAfter(sched, start)
		}
	}

	// cron gives up after five years without a match
	if next.IsZero() {
		return nil, nil
	}
	planStart := next.Unix()
	if s.EndAt != nil && planStart >= *s.EndAt {
		return nil, nil
	}

	scheduleID := s.ID
	event := &models.Event{
		ScheduleID: &scheduleID,
		PlanStart:  planStart,
		Status:     models.EventStatusPending,
		UserID:     copyString(s.UserID),
		ObjectID:   copyString(s.ObjectID),
	}
	if len(s.Meta) > 0 {
		event.Meta = append([]byte(nil), s.Meta...)
	}
	if s.DurationSec != nil {
		end := planStart + *s.DurationSec
		event.PlanEnd = &end
	}
	return event, nil
}

// ComputeAfter is Compute restricted to occurrences strictly after the
// epoch second after. Interval rules keep their phase relative to last
// (or start_at) instead of restarting at after.
func (c *Computer) ComputeAfter(s models.Schedule, last *models.Event, after int64) (*models.Event, error) {
	sched, _, err := c.parse(s)
	if err != nil {
		return nil, err
	}

	base := s.StartAt
	if last != nil {
		base = last.PlanStart
	}
	if after < base || (last != nil && after == base) {
		return c.Compute(s, last)
	}

	anchor := after
	if d, ok := sched.(cron.ConstantDelaySchedule); ok {
		if step := int64(d.Delay / time.Second); step > 0 {
			anchor = base + ((after-base)/step)*step
		}
	}
	return c.Compute(s, &models.Event{PlanStart: anchor})
}

func (c *Computer) parse(s models.Schedule) (cron.Schedule, *time.Location, error) {
	loc, err := resolveTimezone(s.Timezone)
	if err != nil {
		return nil, nil, err
	}
	sched, err := Parser.Parse(s.Cron)
	if err != nil {
		return nil, nil, models.NewValidationError("invalid cron expression %q: %v", s.Cron, err)
	}
	return sched, loc, nil
}

// firstAtOrAfter returns the first occurrence >= t. Interval rules are
// anchored on t itself.
func firstAtOrAfter(sched cron.Schedule, t time.Time) time.Time {
	if _, ok := sched.(cron.ConstantDelaySchedule); ok {
		return t
	}
	return sched.Next(t.Add(-time.Second))
}

// resolveTimezone resolves a timezone string; empty means UTC.
func resolveTimezone(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, models.NewValidationError("invalid timezone %s: %v", tz, err)
	}
	return loc, nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// String renders the rule for log lines.
func String(s models.Schedule) string {
	if s.Timezone == "" {
		return s.Cron
	}
	return fmt.Sprintf("%s (%s)", s.Cron, s.Timezone)
}
