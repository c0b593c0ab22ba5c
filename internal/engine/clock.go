package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Tasks are stamped with a strictly
// increasing seq at insertion so FIFO order survives a persistence
// round-trip without relying on wall-clock time.
//
// Safe for concurrent use, though the coordinator's single-writer design
// means only one goroutine typically calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
// Used on startup to resume past the highest persisted task seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
