package engine

import (
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// frameCallback is a requested frame worklet and the store entry that holds
// it until it has run.
type frameCallback struct {
	w     shareable.Shareable
	entry uint64
}

// FrameStats summarizes one Tick.
type FrameStats struct {
	Jobs      int  // UI jobs drained
	Rendered  bool // a render had been requested
	Callbacks int  // frame callbacks run
	Mappers   int  // mapper executions
}

// RequestAnimationFrame queues a worklet to run once in the next rendered
// frame with the frame timestamp.
func (e *Engine) RequestAnimationFrame(w shareable.Shareable) error {
	const op = "requestAnimationFrame"
	if err := e.requireWorklet(op, w); err != nil {
		return err
	}

	entry := e.store.Put(frameOwner, w)
	e.mu.Lock()
	e.frameCallbacks = append(e.frameCallbacks, frameCallback{w: w, entry: entry})
	e.mu.Unlock()

	e.maybeRequestRender()
	return nil
}

// Tick processes one frame on the UI thread. It drains the UI queue, then,
// if a render was requested since the last frame, runs the frame callbacks
// queued before this frame and makes one mapper pass. Frame callbacks that
// request another frame, and mappers still dirty after the pass, are
// handled in the next frame.
func (e *Engine) Tick(timestampMs float64) FrameStats {
	var stats FrameStats
	stats.Jobs = e.scheduler.TriggerUI()

	if e.closed.Load() || !e.renderRequested.Swap(false) {
		return stats
	}
	stats.Rendered = true
	e.metrics.RecordFrame()

	e.mu.Lock()
	callbacks := e.frameCallbacks
	e.frameCallbacks = nil
	e.mu.Unlock()

	ts := value.Number(timestampMs)
	for _, cb := range callbacks {
		e.runFrameCallback(cb.w, ts)
		e.store.Release(frameOwner, cb.entry)
	}
	stats.Callbacks = len(callbacks)

	executed, pending := e.mappers.RunDirty()
	stats.Mappers = executed
	if pending {
		e.maybeRequestRender()
	}

	e.tracer.Record(trace.KindFrame, "frame", map[string]any{
		"timestamp": timestampMs,
		"callbacks": stats.Callbacks,
		"mappers":   stats.Mappers,
	})
	return stats
}

func (e *Engine) runFrameCallback(w shareable.Shareable, ts value.Value) {
	callable, err := e.ui.Callable(w)
	if err != nil {
		e.report(trace.KindWorkletError, "frame", err)
		return
	}
	if _, err := worklet.Guard(callable, ts); err != nil {
		e.report(trace.KindWorkletError, "frame", err)
	}
}

// RenderRequested reports whether the next Tick will render.
func (e *Engine) RenderRequested() bool {
	return e.renderRequested.Load()
}

// PendingUIJobs returns the number of jobs waiting for the next Tick.
func (e *Engine) PendingUIJobs() int {
	return e.scheduler.Pending()
}
