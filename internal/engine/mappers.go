package engine

import (
	"fmt"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
)

// StartMapper binds a worklet that recomputes outputs from inputs whenever
// an input changes. The id is allocated immediately; the mapper is created
// on the UI thread at the next Tick and first runs in that same Tick's
// mapper pass. Inputs and outputs are held from this call on, so releasing
// them on the JS side in between does not free them. Close releases the
// hold if the mapper was never created.
func (e *Engine) StartMapper(w shareable.Shareable, inputs, outputs []*shareable.MutableValue) (uint64, error) {
	const op = "startMapper"
	if err := e.requireWorklet(op, w); err != nil {
		return 0, err
	}

	held, err := retainAll(append(append([]*shareable.MutableValue(nil), inputs...), outputs...))
	if err != nil {
		return 0, NewInvalidArgumentError(op, err.Error())
	}

	id := e.clock.Next()
	e.mu.Lock()
	e.pendingHolds[id] = held
	e.mu.Unlock()

	ok := e.scheduler.ScheduleOnUI(func() {
		defer e.releasePending(id)

		callable, err := e.ui.Callable(w)
		if err != nil {
			e.report(trace.KindMapperError, "mapper", err)
			return
		}
		if _, err := e.mappers.Add(id, callable, inputs, outputs); err != nil {
			e.report(trace.KindMapperError, "mapper", err)
			return
		}
		e.store.Put(mapperOwner(id), w)
		e.tracer.Record(trace.KindMapperStart, mapperOwner(id), map[string]any{
			"inputs":  mutableIDs(inputs),
			"outputs": mutableIDs(outputs),
		})
		e.maybeRequestRender()
	})
	if !ok {
		e.releasePending(id)
		return 0, NewClosedError(op)
	}
	return id, nil
}

// StopMapper removes a mapper on the UI thread at the next Tick, releasing
// its inputs and outputs. Unknown ids are a no-op.
func (e *Engine) StopMapper(id uint64) {
	e.scheduler.ScheduleOnUI(func() {
		if e.mappers.Remove(id) {
			e.tracer.Record(trace.KindMapperStop, mapperOwner(id), nil)
		}
		e.store.RemoveRefs(mapperOwner(id))
	})
}

// releasePending drops the hold StartMapper took for mapper id. Only the
// first call for an id releases anything.
func (e *Engine) releasePending(id uint64) {
	e.mu.Lock()
	held, ok := e.pendingHolds[id]
	delete(e.pendingHolds, id)
	e.mu.Unlock()

	if ok {
		releaseAll(held)
	}
}

// releaseAllPending drops the holds of mappers whose creation never ran.
func (e *Engine) releaseAllPending() {
	e.mu.Lock()
	pending := e.pendingHolds
	e.pendingHolds = make(map[uint64][]*shareable.MutableValue)
	e.mu.Unlock()

	for _, held := range pending {
		releaseAll(held)
	}
}

func retainAll(values []*shareable.MutableValue) ([]*shareable.MutableValue, error) {
	held := make([]*shareable.MutableValue, 0, len(values))
	for _, mv := range values {
		if mv == nil || !mv.Retain() {
			releaseAll(held)
			if mv == nil {
				return nil, fmt.Errorf("nil mutable")
			}
			return nil, fmt.Errorf("mutable %d already freed", mv.ID())
		}
		held = append(held, mv)
	}
	return held, nil
}

func releaseAll(values []*shareable.MutableValue) {
	for _, mv := range values {
		mv.Release()
	}
}

func mutableIDs(values []*shareable.MutableValue) []any {
	ids := make([]any, len(values))
	for i, mv := range values {
		ids[i] = mv.ID()
	}
	return ids
}
