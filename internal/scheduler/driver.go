package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultFrameInterval is one frame at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Driver is the per-frame UI driver. It sleeps until a frame is requested,
// then calls tick on its own goroutine, which acts as the UI thread. Ticks
// are at least one frame interval apart.
type Driver struct {
	tick     func(timestampMs float64)
	interval time.Duration
	now      func() time.Time
	wake     chan struct{} // buffered, size 1
	logger   *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithFrameInterval sets the minimum time between ticks. Zero disables pacing.
func WithFrameInterval(d time.Duration) DriverOption {
	return func(dr *Driver) {
		dr.interval = d
	}
}

// WithNow sets the clock used for frame timestamps and pacing.
func WithNow(now func() time.Time) DriverOption {
	return func(dr *Driver) {
		dr.now = now
	}
}

// WithDriverLogger sets the logger.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(dr *Driver) {
		dr.logger = logger
	}
}

// NewDriver creates a driver that calls tick with a millisecond timestamp
// relative to the first frame of Run.
func NewDriver(tick func(timestampMs float64), opts ...DriverOption) *Driver {
	d := &Driver{
		tick:     tick,
		interval: DefaultFrameInterval,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Request asks for a frame. Safe from any goroutine; never blocks.
// Requests made before the next tick coalesce into one.
func (d *Driver) Request() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run ticks on request until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	start := d.now()
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}

		if d.interval > 0 && !last.IsZero() {
			if wait := d.interval - d.now().Sub(last); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		last = d.now()
		ts := float64(last.Sub(start)) / float64(time.Millisecond)
		d.logger.Debug("frame", "timestamp_ms", ts)
		d.tick(ts)
	}
}
