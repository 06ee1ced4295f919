// Package metrics provides runtime metrics collection.
// It wraps Prometheus collectors registered on a private registry, so several
// engines in one process never collide.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records scheduler, event, mapper and store metrics.
type Collector struct {
	registry *prometheus.Registry

	// Scheduler metrics
	uiJobs        prometheus.Counter
	jsJobs        prometheus.Counter
	jsJobsDropped prometheus.Counter
	frames        prometheus.Counter

	// Event metrics
	events             *prometheus.CounterVec
	handlerInvocations prometheus.Counter
	handlerFailures    prometheus.Counter

	// Mapper metrics
	mapperExecutions prometheus.Counter

	// Worklet metrics
	workletErrors *prometheus.CounterVec

	// Resource metrics
	storeEntries   prometheus.Gauge
	layoutObserved prometheus.Gauge
	mappers        prometheus.Gauge
}

// NewCollector creates a collector whose metrics live under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "worklets"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.uiJobs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ui_jobs_total",
		Help:      "Total number of jobs executed on the UI thread",
	})

	c.jsJobs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "js_jobs_total",
		Help:      "Total number of jobs handed to the JS call invoker",
	})

	c.jsJobsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "js_jobs_dropped_total",
		Help:      "Total number of JS jobs dropped because no call invoker was available",
	})

	c.frames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "frames_total",
		Help:      "Total number of rendered frames",
	})

	c.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "total",
			Help:      "Total number of native events received",
		},
		[]string{"result"},
	)

	c.handlerInvocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_invocations_total",
		Help:      "Total number of event handler invocations",
	})

	c.handlerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_failures_total",
		Help:      "Total number of event handler invocations that failed",
	})

	c.mapperExecutions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mapper",
		Name:      "executions_total",
		Help:      "Total number of mapper executions",
	})

	c.workletErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worklet_errors_total",
			Help:      "Total number of worklet failures reported to the error handler",
		},
		[]string{"source"},
	)

	c.storeEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "entries",
		Help:      "Current number of live shareable store entries",
	})

	c.layoutObserved = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "layout",
		Name:      "observed_tags",
		Help:      "Current number of view tags with an observed layout animation",
	})

	c.mappers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mapper",
		Name:      "active",
		Help:      "Current number of registered mappers",
	})

	c.registry.MustRegister(
		c.uiJobs,
		c.jsJobs,
		c.jsJobsDropped,
		c.frames,
		c.events,
		c.handlerInvocations,
		c.handlerFailures,
		c.mapperExecutions,
		c.workletErrors,
		c.storeEntries,
		c.layoutObserved,
		c.mappers,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordUIJob counts a job drained on the UI thread.
func (c *Collector) RecordUIJob() {
	if c == nil {
		return
	}
	c.uiJobs.Inc()
}

// RecordJSJob counts a job handed to the JS thread, or dropped if !accepted.
func (c *Collector) RecordJSJob(accepted bool) {
	if c == nil {
		return
	}
	if accepted {
		c.jsJobs.Inc()
		return
	}
	c.jsJobsDropped.Inc()
}

// RecordFrame counts a rendered frame.
func (c *Collector) RecordFrame() {
	if c == nil {
		return
	}
	c.frames.Inc()
}

// RecordEvent counts a native event. handled is false when nobody listened.
func (c *Collector) RecordEvent(handled bool) {
	if c == nil {
		return
	}
	result := "handled"
	if !handled {
		result = "ignored"
	}
	c.events.WithLabelValues(result).Inc()
}

// RecordHandlerInvocation counts one handler call and whether it failed.
func (c *Collector) RecordHandlerInvocation(err error) {
	if c == nil {
		return
	}
	c.handlerInvocations.Inc()
	if err != nil {
		c.handlerFailures.Inc()
	}
}

// RecordMapperExecution counts one mapper execution.
func (c *Collector) RecordMapperExecution() {
	if c == nil {
		return
	}
	c.mapperExecutions.Inc()
}

// RecordWorkletError counts a worklet failure by where it ran.
func (c *Collector) RecordWorkletError(source string) {
	if c == nil {
		return
	}
	c.workletErrors.WithLabelValues(source).Inc()
}

// RecordStoreEntries sets the live store entry count.
func (c *Collector) RecordStoreEntries(n int) {
	if c == nil {
		return
	}
	c.storeEntries.Set(float64(n))
}

// RecordLayoutObserved sets the number of observed view tags.
func (c *Collector) RecordLayoutObserved(n int) {
	if c == nil {
		return
	}
	c.layoutObserved.Set(float64(n))
}

// RecordMappers sets the number of registered mappers.
func (c *Collector) RecordMappers(n int) {
	if c == nil {
		return
	}
	c.mappers.Set(float64(n))
}
