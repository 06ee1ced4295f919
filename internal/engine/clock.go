package engine

import "sync/atomic"

// Clock hands out handler, mapper and mutable ids.
//
// Ids are strictly increasing for the lifetime of an engine, so creation
// order can be recovered from ids alone and a removed id is never reused.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Both threads allocate ids.
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific value.
// Embedders that split id ranges between engines start one engine higher.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next id and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the last id handed out without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
