package fakes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dhima/schedule-reconciler/internal/oneoff"
)

// FakeOneOffClient is an in-memory one-off scheduler tracking live registrations.
type FakeOneOffClient struct {
	mu      sync.Mutex
	nextID  int
	live    map[string]oneoff.CreateRequest
	Created []oneoff.CreateRequest
	Deleted []string

	FailCreate bool
	FailDelete bool
}

func NewFakeOneOffClient() *FakeOneOffClient {
	return &FakeOneOffClient{live: make(map[string]oneoff.CreateRequest)}
}

func (c *FakeOneOffClient) CreateScheduledEvent(_ context.Context, req oneoff.CreateRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailCreate {
		return "", errors.New("scheduler unavailable")
	}
	c.nextID++
	id := fmt.Sprintf("oneoff-%d", c.nextID)
	c.live[id] = req
	c.Created = append(c.Created, req)
	return id, nil
}

func (c *FakeOneOffClient) DeleteScheduledEvent(_ context.Context, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailDelete {
		return errors.New("scheduler unavailable")
	}
	if _, ok := c.live[externalID]; !ok {
		return oneoff.ErrNotFound
	}
	delete(c.live, externalID)
	c.Deleted = append(c.Deleted, externalID)
	return nil
}

// Fire removes a live registration as the scheduler does once it calls back.
func (c *FakeOneOffClient) Fire(externalID string) (oneoff.CreateRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.live[externalID]
	delete(c.live, externalID)
	return req, ok
}

// LiveFor returns the ids of live registrations carrying eventID.
func (c *FakeOneOffClient) LiveFor(eventID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, req := range c.live {
		if req.Payload.EventID == eventID {
			ids = append(ids, id)
		}
	}
	return ids
}

// LiveCount returns the number of live registrations.
func (c *FakeOneOffClient) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}
