package engine

import "sync/atomic"

// Clock is the logical clock that stamps every outcome with a strictly
// increasing seq. The journal orders by seq, never by wall time, so
// outcomes recorded within the same millisecond keep their order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, typically the
// highest seq already in the journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
