package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/dhima/schedule-reconciler/internal/models"
)

// FakeCallback records executions and can simulate failures.
type FakeCallback struct {
	mu        sync.Mutex
	Calls     []models.Event
	Schedules []*models.Schedule
	FailNext  bool
	FailError error
}

func (c *FakeCallback) Execute(_ context.Context, event models.Event, schedule *models.Schedule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, event)
	c.Schedules = append(c.Schedules, schedule)
	if c.FailNext {
		c.FailNext = false
		if c.FailError == nil {
			c.FailError = errors.New("callback failed")
		}
		return c.FailError
	}
	return nil
}

// CallCount returns the number of Execute invocations.
func (c *FakeCallback) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
