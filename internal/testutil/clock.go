package testutil

import (
	"sync"
	"time"
)

// Epoch is the default starting instant for ManualClock. Golden traces
// depend on it, so it never changes.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when told to.
//
// It satisfies expect.Clock, so expectation TTLs can be driven past their
// deadline without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at Epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// NewManualClockAt creates a clock frozen at t.
func NewManualClockAt(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the frozen instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
// Negative durations are ignored; the clock never runs backwards.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set jumps to t if it is not before the current instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.Before(c.now) {
		c.now = t
	}
}
