package world

import "sync/atomic"

// Clock is the monotonic logical clock shared by simulant creation and
// event publishing.
//
// Simulant IDs (creation timestamps) and event seqs are both drawn from
// it, so creation order and publish order interleave deterministically.
// Wall-clock time is never consulted.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start.
// Used when resuming from a persisted snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next value and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
