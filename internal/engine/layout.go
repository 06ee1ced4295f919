package engine

import (
	"github.com/roach88/worklets/internal/layout"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

type layoutKey struct {
	tag int
	typ layout.AnimationType
}

// tracedLayoutCallbacks wraps the configured layout callbacks with tracing.
func (e *Engine) tracedLayoutCallbacks() layout.Callbacks {
	cb := e.layoutCallbacks
	return layout.Callbacks{
		Progress: func(tag int, v value.Value) {
			e.tracer.Record(trace.KindLayoutProgress, layoutOwner(tag), map[string]any{"value": traceValue(v)})
			if cb.Progress != nil {
				cb.Progress(tag, v)
			}
		},
		End: func(tag int, finished bool) {
			e.tracer.Record(trace.KindLayoutEnd, layoutOwner(tag), map[string]any{"finished": finished})
			if cb.End != nil {
				cb.End(tag, finished)
			}
		},
		Cancel: func(tag int) {
			e.tracer.Record(trace.KindLayoutCancel, layoutOwner(tag), nil)
			if cb.Cancel != nil {
				cb.Cancel(tag)
			}
		},
	}
}

// StartObserving forwards every change of mv to the layout Progress
// callback for tag. An existing observation of tag is replaced silently.
func (e *Engine) StartObserving(tag int, mv *shareable.MutableValue) error {
	const op = "startObserving"
	if e.closed.Load() {
		return NewClosedError(op)
	}
	if err := e.layout.StartObserving(tag, mv); err != nil {
		return NewInvalidArgumentError(op, err.Error())
	}
	e.tracer.Record(trace.KindLayoutStart, layoutOwner(tag), map[string]any{"mutable": mv.ID()})
	return nil
}

// StopObserving ends the observation of tag and fires End once.
// Unobserved and cancelled tags are a no-op.
func (e *Engine) StopObserving(tag int, finished bool) bool {
	return e.layout.StopObserving(tag, finished)
}

// NotifyAboutCancellation ends the observation of tag and fires Cancel.
func (e *Engine) NotifyAboutCancellation(tag int) bool {
	return e.layout.NotifyAboutCancellation(tag)
}

// IsObserving reports whether tag has an active observation.
func (e *Engine) IsObserving(tag int) bool {
	return e.layout.IsObserving(tag)
}

// ConfigureLayoutAnimation stores the animation config of type typ for tag,
// releasing the config it replaces. Shared element transitions group tags
// by sharedTransitionTag.
func (e *Engine) ConfigureLayoutAnimation(tag int, typ layout.AnimationType, sharedTransitionTag string, config shareable.Shareable) error {
	const op = "configureLayoutAnimation"
	if e.closed.Load() {
		return NewClosedError(op)
	}
	if err := e.configs.Configure(tag, typ, sharedTransitionTag, config); err != nil {
		return NewInvalidArgumentError(op, err.Error())
	}
	e.holdLayoutConfig(tag, typ, config)

	data := map[string]any{"type": typ.String()}
	if sharedTransitionTag != "" {
		data["shared_transition_tag"] = sharedTransitionTag
	}
	e.tracer.Record(trace.KindLayoutConfigure, layoutOwner(tag), data)
	return nil
}

// HasLayoutAnimation reports whether tag has a config of type typ.
func (e *Engine) HasLayoutAnimation(tag int, typ layout.AnimationType) bool {
	return e.configs.Has(tag, typ)
}

// LayoutAnimationConfig returns the config of type typ for tag.
func (e *Engine) LayoutAnimationConfig(tag int, typ layout.AnimationType) (shareable.Shareable, bool) {
	return e.configs.Get(tag, typ)
}

// SharedTransitionGroup returns the view tags configured with sharedTransitionTag.
func (e *Engine) SharedTransitionGroup(sharedTransitionTag string) []int {
	return e.configs.SharedGroup(sharedTransitionTag)
}

// ClearLayoutAnimationConfig drops every config for tag.
func (e *Engine) ClearLayoutAnimationConfig(tag int) {
	e.configs.Clear(tag)

	e.mu.Lock()
	for key := range e.layoutEntries {
		if key.tag == tag {
			delete(e.layoutEntries, key)
		}
	}
	e.mu.Unlock()
	e.store.RemoveRefs(layoutOwner(tag))
}

// holdLayoutConfig makes config the one store entry held for (tag, typ).
func (e *Engine) holdLayoutConfig(tag int, typ layout.AnimationType, config shareable.Shareable) {
	key := layoutKey{tag: tag, typ: typ}
	var entry uint64
	if config != nil {
		entry = e.store.Put(layoutOwner(tag), config)
	}

	e.mu.Lock()
	old, replaced := e.layoutEntries[key]
	if config != nil {
		e.layoutEntries[key] = entry
	} else {
		delete(e.layoutEntries, key)
	}
	e.mu.Unlock()

	if replaced {
		e.store.Release(layoutOwner(tag), old)
	}
}
