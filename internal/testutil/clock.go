package testutil

import (
	"sync"
	"time"
)

// DefaultFrameIntervalMs is one frame at 60Hz, rounded the way hosts report it.
const DefaultFrameIntervalMs = 16

// FrameClock provides deterministic frame timestamps in milliseconds.
//
// Next advances by the frame interval; Set jumps to an explicit timestamp so
// scenarios can pin the time of a particular frame. FrameClock never goes
// backwards: Set with an earlier timestamp is ignored.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FrameClock struct {
	mu       sync.Mutex
	now      float64
	interval float64
}

// NewFrameClock creates a clock at 0 that advances by intervalMs per frame.
// A non-positive interval uses DefaultFrameIntervalMs.
func NewFrameClock(intervalMs float64) *FrameClock {
	if intervalMs <= 0 {
		intervalMs = DefaultFrameIntervalMs
	}
	return &FrameClock{interval: intervalMs}
}

// Next advances one frame and returns the new timestamp.
func (c *FrameClock) Next() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.interval
	return c.now
}

// Set moves the clock to ts if ts is later than the current timestamp and
// returns the resulting timestamp.
func (c *FrameClock) Set(ts float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.now {
		c.now = ts
	}
	return c.now
}

// Current returns the current timestamp without advancing.
func (c *FrameClock) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Time returns the current timestamp as a wall clock reading relative to the
// Unix epoch, for components that take a func() time.Time.
func (c *FrameClock) Time() time.Time {
	return time.UnixMilli(0).Add(time.Duration(c.Current() * float64(time.Millisecond)))
}

// Reset moves the clock back to 0.
func (c *FrameClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = 0
}
