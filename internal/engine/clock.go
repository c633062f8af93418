package engine

import "sync/atomic"

// Clock numbers update cycles.
//
// Every Tick takes the next cycle number; trace records are positioned by
// (cycle, seq), never by wall-clock time, so a replayed scenario yields an
// identical trace.
//
// Safe for concurrent reads; only the engine goroutine calls Next.
type Clock struct {
	cycle atomic.Int64
}

// NewClock creates a clock whose first cycle is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after cycle start.
// Used to continue a recorded run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.cycle.Store(start)
	return c
}

// Next advances to and returns the next cycle number.
func (c *Clock) Next() int64 {
	return c.cycle.Add(1)
}

// Current returns the last cycle number handed out, 0 before the first
// cycle.
func (c *Clock) Current() int64 {
	return c.cycle.Load()
}
