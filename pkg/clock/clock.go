package clock

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// Unix returns the clock's current time in epoch seconds.
func Unix(c Clock) int64 {
	return c.Now().Unix()
}

// RealClock returns the real current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns a fixed time. Useful for tests.
type FixedClock struct{ t time.Time }

func NewFixed(t time.Time) FixedClock { return FixedClock{t: t} }

// NewFixedUnix returns a FixedClock pinned to the given epoch second.
func NewFixedUnix(sec int64) FixedClock { return FixedClock{t: time.Unix(sec, 0).UTC()} }

func (f FixedClock) Now() time.Time { return f.t }

// Manual is a settable clock for tests that walk a schedule forward in time.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManualUnix returns a Manual clock starting at the given epoch second.
func NewManualUnix(sec int64) *Manual {
	return &Manual{t: time.Unix(sec, 0).UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Set moves the clock to the given epoch second.
func (m *Manual) Set(sec int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = time.Unix(sec, 0).UTC()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}
