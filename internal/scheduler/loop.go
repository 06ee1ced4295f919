package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/roach88/worklets/internal/worklet"
)

// Loop is a JS-thread call invoker: one goroutine consuming an unbounded FIFO.
//
// Jobs run only on the goroutine executing Run, or on the caller of
// RunPending when no Run loop is active. A panic escaping a job is recovered
// at this top-level entry and reported to the error handler.
type Loop struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{} // buffered, size 1

	onError worklet.ErrorHandler
	logger  *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopErrorHandler sets where recovered job panics are reported.
func WithLoopErrorHandler(fn worklet.ErrorHandler) LoopOption {
	return func(l *Loop) {
		l.onError = fn
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates an idle Loop. Call Run (usually in its own goroutine) to
// start consuming, or RunPending to drain synchronously.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		jobs:   make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InvokeAsync implements CallInvoker.
func (l *Loop) InvokeAsync(job func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.jobs = append(l.jobs, job)

	// Non-blocking: the buffer of 1 coalesces wakeups.
	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Run consumes jobs until ctx is cancelled or the loop is closed and drained.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			job, ok := l.pop()
			if !ok {
				break
			}
			l.run(job)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-l.signal:
			if !open {
				l.RunPending()
				return nil
			}
		}
	}
}

// RunPending runs every queued job on the calling goroutine, including jobs
// queued while draining. Returns the number of jobs run.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		job, ok := l.pop()
		if !ok {
			return ran
		}
		l.run(job)
		ran++
	}
}

// Len returns the number of queued jobs.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

// Close rejects further jobs. Jobs already queued are still run by Run
// before it returns.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.jobs) == 0 {
		return nil, false
	}
	job := l.jobs[0]
	l.jobs[0] = nil
	if len(l.jobs) == 1 {
		l.jobs = l.jobs[:0]
	} else {
		l.jobs = l.jobs[1:]
	}
	return job, true
}

func (l *Loop) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			err := &worklet.PanicError{Value: r, Stack: debug.Stack()}
			l.logger.Error("js job panicked", "error", fmt.Sprint(r))
			if l.onError != nil {
				l.onError(err)
			}
		}
	}()
	job()
}
