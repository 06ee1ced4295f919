package engine

import (
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// Store owners outside the per-id ones.
const (
	jsOwner    = "js"    // shareables handed out to the JS side
	uiOwner    = "ui"    // worklets queued by ScheduleOnUI
	frameOwner = "frame" // requested frame callbacks
)

// MakeShareableClone captures v and holds it for the JS side. The returned
// handle does not keep the entry alive; release it with ReleaseShareable.
func (e *Engine) MakeShareableClone(v value.Value) shareable.WeakRef {
	return e.Share(shareable.FromValue(v))
}

// Share holds s for the JS side, typically a clone made by a runtime.
func (e *Engine) Share(s shareable.Shareable) shareable.WeakRef {
	return e.store.GetWeakRef(e.store.Put(jsOwner, s))
}

// ReleaseShareable drops the JS side's hold on an entry. Unknown ids are a no-op.
func (e *Engine) ReleaseShareable(id uint64) {
	e.store.Release(jsOwner, id)
}

// MakeMutable creates a MutableValue held by the JS side. Its references to
// other store entries are owned by "mutable:<id>" and dropped when it is freed.
func (e *Engine) MakeMutable(initial value.Value) (*shareable.MutableValue, error) {
	const op = "makeMutable"
	if e.closed.Load() {
		return nil, NewClosedError(op)
	}

	id := e.clock.Next()
	mv := shareable.NewMutable(id, initial, e.freeMutable)
	entry := e.store.Put(jsOwner, mv)

	e.mu.Lock()
	e.mutables[id] = entry
	e.mu.Unlock()

	e.tracer.Record(trace.KindMutableCreate, mutableOwner(id), map[string]any{"initial": traceValue(mv.Get())})
	return mv, nil
}

// ReleaseMutable drops the JS side's hold on mv. The value is freed once no
// mapper, handler or observation holds it either. Releasing twice is a no-op.
func (e *Engine) ReleaseMutable(mv *shareable.MutableValue) {
	e.mu.Lock()
	entry, ok := e.mutables[mv.ID()]
	delete(e.mutables, mv.ID())
	e.mu.Unlock()

	if ok {
		e.store.Release(jsOwner, entry)
	}
}

// AttachToMutable makes mv an owner of s, so s lives at least as long as mv.
// A mutable s gains a reference of its own. Returns false if either value
// is already freed.
func (e *Engine) AttachToMutable(mv *shareable.MutableValue, s shareable.Shareable) bool {
	if mv.Freed() {
		return false
	}
	if inner, ok := s.(*shareable.MutableValue); ok && !inner.Retain() {
		return false
	}
	e.store.Put(mutableOwner(mv.ID()), s)
	return true
}

// freeMutable runs when the last owner releases a mutable. It may run with
// the store lock held and re-enters the store.
func (e *Engine) freeMutable(mv *shareable.MutableValue) {
	released := e.store.RemoveRefs(mutableOwner(mv.ID()))
	e.forget(mv)
	e.tracer.Record(trace.KindMutableRelease, mutableOwner(mv.ID()), map[string]any{"released_refs": released})
}

// MakeSynchronizedDataHolder creates a holder both threads can read and
// replace synchronously.
func (e *Engine) MakeSynchronizedDataHolder(initial shareable.Shareable) (*shareable.SynchronizedDataHolder, error) {
	if e.closed.Load() {
		return nil, NewClosedError("makeSynchronizedDataHolder")
	}
	h := shareable.NewSynchronizedDataHolder(initial)
	e.store.Put(jsOwner, h)
	return h, nil
}

// UpdateDataSynchronously replaces the holder's data.
func (e *Engine) UpdateDataSynchronously(h *shareable.SynchronizedDataHolder, data shareable.Shareable) {
	h.Set(data)
}

// GetDataSynchronously returns the holder's data.
func (e *Engine) GetDataSynchronously(h *shareable.SynchronizedDataHolder) shareable.Shareable {
	return h.Get()
}
