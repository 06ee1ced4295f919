package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/worklets/internal/metrics"
)

// Job is a unit of work for one of the two threads.
type Job func()

// CallInvoker runs a job asynchronously on the JS thread.
// InvokeAsync returns false if the invoker has shut down and dropped the job.
type CallInvoker interface {
	InvokeAsync(job func()) bool
}

// Scheduler holds the UI job queue and the JS call invoker.
//
// Thread-safety: ScheduleOnUI and ScheduleOnJS may be called from any
// goroutine. TriggerUI must only be called from the UI thread.
type Scheduler struct {
	mu        sync.Mutex
	jobs      []Job
	scheduled bool // a trigger has been requested and not yet drained
	closed    bool

	invoker atomic.Pointer[invokerRef]

	requestRender func()
	logger        *slog.Logger
	metrics       *metrics.Collector
}

type invokerRef struct {
	CallInvoker
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRenderRequester sets the function called when the UI queue goes from
// idle to scheduled. It typically asks the frame driver for a frame.
func WithRenderRequester(fn func()) Option {
	return func(s *Scheduler) {
		s.requestRender = fn
	}
}

// WithCallInvoker attaches the JS call invoker.
func WithCallInvoker(inv CallInvoker) Option {
	return func(s *Scheduler) {
		s.SetCallInvoker(inv)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = c
	}
}

// New creates a Scheduler with an empty UI queue.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make([]Job, 0, 16),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCallInvoker replaces the JS call invoker. Passing nil detaches it, after
// which ScheduleOnJS drops jobs.
func (s *Scheduler) SetCallInvoker(inv CallInvoker) {
	if inv == nil {
		s.invoker.Store(nil)
		return
	}
	s.invoker.Store(&invokerRef{inv})
}

// ScheduleOnUI appends job to the UI queue. The first job after a drain
// re-arms the trigger through the render requester.
// Returns false if the scheduler is closed.
func (s *Scheduler) ScheduleOnUI(job Job) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.jobs = append(s.jobs, job)
	arm := !s.scheduled
	s.scheduled = true
	s.mu.Unlock()

	if arm && s.requestRender != nil {
		s.requestRender()
	}
	return true
}

// ScheduleOnJS hands job to the JS call invoker. Without an invoker, or once
// the invoker has shut down, the job is dropped silently.
func (s *Scheduler) ScheduleOnJS(job Job) bool {
	ref := s.invoker.Load()
	if ref == nil {
		s.metrics.RecordJSJob(false)
		s.logger.Debug("js job dropped", "reason", "no call invoker")
		return false
	}
	if !ref.InvokeAsync(job) {
		s.metrics.RecordJSJob(false)
		s.logger.Debug("js job dropped", "reason", "call invoker closed")
		return false
	}
	s.metrics.RecordJSJob(true)
	return true
}

// TriggerUI drains the UI queue on the calling goroutine, running every job
// in FIFO order, including jobs scheduled by jobs in this drain. The
// scheduled flag is cleared together with the final emptiness check, so a
// concurrent ScheduleOnUI either lands in this drain or re-arms the next one.
//
// A panicking job is not recovered. The jobs behind it stay queued and the
// trigger is re-armed before the panic continues.
//
// Returns the number of jobs run.
func (s *Scheduler) TriggerUI() int {
	ran := 0
	for {
		job, ok := s.pop()
		if !ok {
			return ran
		}
		s.run(job)
		ran++
	}
}

func (s *Scheduler) pop() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) == 0 {
		s.scheduled = false
		return nil, false
	}

	job := s.jobs[0]
	s.jobs[0] = nil
	if len(s.jobs) == 1 {
		s.jobs = s.jobs[:0]
	} else {
		s.jobs = s.jobs[1:]
	}
	return job, true
}

func (s *Scheduler) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.rearm()
			panic(r)
		}
	}()
	job()
	s.metrics.RecordUIJob()
}

func (s *Scheduler) rearm() {
	s.mu.Lock()
	pending := len(s.jobs) > 0
	s.mu.Unlock()

	if pending && s.requestRender != nil {
		s.requestRender()
	}
}

// Pending returns the number of queued UI jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Scheduled reports whether a trigger is armed and not yet drained.
func (s *Scheduler) Scheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}

// Close drops queued UI jobs, rejects new ones and detaches the invoker.
// Returns the number of dropped UI jobs.
func (s *Scheduler) Close() int {
	s.mu.Lock()
	dropped := len(s.jobs)
	s.jobs = nil
	s.closed = true
	s.scheduled = false
	s.mu.Unlock()

	s.invoker.Store(nil)
	if dropped > 0 {
		s.logger.Debug("ui jobs dropped on close", "count", dropped)
	}
	return dropped
}
