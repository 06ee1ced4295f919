// Package layout bridges native layout-animation progress into observable
// values and reports completion or cancellation back to the native driver.
//
// Each view tag moves through unobserved, observing, then finished or
// cancelled, and back to unobserved. There is no pause state. Starting to
// observe an observed tag replaces the previous association without firing
// any callback for it.
package layout

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
)

// Callbacks are the native driver's hooks.
type Callbacks struct {
	// Progress receives every change of an observed value. It runs under the
	// value's lock and must not read or write that value.
	Progress func(tag int, v value.Value)
	// End fires once when observation stops normally.
	End func(tag int, finished bool)
	// Cancel fires once when an animation is preempted.
	Cancel func(tag int)
}

type observation struct {
	mv       *shareable.MutableValue
	listener uint64
}

// Proxy tracks the observed value of each view tag.
//
// Thread-safety: all methods are safe for concurrent use. End and Cancel run
// without the proxy lock held.
type Proxy struct {
	mu       sync.Mutex
	observed map[int]observation

	cb      Callbacks
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Proxy) {
		p.metrics = c
	}
}

// NewProxy creates a Proxy reporting through cb. Nil callbacks are skipped.
func NewProxy(cb Callbacks, opts ...Option) *Proxy {
	p := &Proxy{
		observed: make(map[int]observation),
		cb:       cb,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartObserving associates tag with mv and forwards its changes to
// Progress. A previous association for tag is discarded silently.
// The proxy holds a reference to mv while observing.
func (p *Proxy) StartObserving(tag int, mv *shareable.MutableValue) error {
	if !mv.Retain() {
		return fmt.Errorf("observe tag %d: mutable %d already freed", tag, mv.ID())
	}

	obs := observation{mv: mv}
	obs.listener = mv.AddListener(func(v value.Value) {
		if p.cb.Progress != nil {
			p.cb.Progress(tag, v)
		}
	})

	p.mu.Lock()
	prev, replaced := p.observed[tag]
	p.observed[tag] = obs
	n := len(p.observed)
	p.mu.Unlock()

	if replaced {
		prev.detach()
		p.logger.Debug("layout observation replaced", "tag", tag)
	}
	p.metrics.RecordLayoutObserved(n)
	return nil
}

// StopObserving ends observation of tag and fires End(tag, finished) once.
// Unobserved tags, including tags whose animation was cancelled, are a no-op.
func (p *Proxy) StopObserving(tag int, finished bool) bool {
	obs, ok := p.take(tag)
	if !ok {
		return false
	}
	obs.detach()
	if p.cb.End != nil {
		p.cb.End(tag, finished)
	}
	return true
}

// NotifyAboutCancellation ends observation of tag and fires Cancel(tag). A
// later StopObserving for the same tag does nothing.
func (p *Proxy) NotifyAboutCancellation(tag int) bool {
	obs, ok := p.take(tag)
	if !ok {
		return false
	}
	obs.detach()
	if p.cb.Cancel != nil {
		p.cb.Cancel(tag)
	}
	return true
}

func (p *Proxy) take(tag int) (observation, bool) {
	p.mu.Lock()
	obs, ok := p.observed[tag]
	if ok {
		delete(p.observed, tag)
	}
	n := len(p.observed)
	p.mu.Unlock()

	if ok {
		p.metrics.RecordLayoutObserved(n)
	}
	return obs, ok
}

func (o observation) detach() {
	o.mv.RemoveListener(o.listener)
	o.mv.Release()
}

// IsObserving reports whether tag has an active observation.
func (p *Proxy) IsObserving(tag int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.observed[tag]
	return ok
}

// Len returns the number of observed tags.
func (p *Proxy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observed)
}

// Clear drops every observation without firing callbacks.
func (p *Proxy) Clear() int {
	p.mu.Lock()
	observed := p.observed
	p.observed = make(map[int]observation)
	p.mu.Unlock()

	for _, obs := range observed {
		obs.detach()
	}
	p.metrics.RecordLayoutObserved(0)
	return len(observed)
}
