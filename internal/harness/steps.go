package harness

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/worklets/internal/events"
	"github.com/roach88/worklets/internal/layout"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
)

func (r *runner) apply(step Step) error {
	eng := r.engine

	switch step.Op {
	case OpJS:
		_, err := r.js.Run(step.Source)
		return err

	case OpMutable:
		initial, err := r.resolve(step.Value)
		if err != nil {
			return err
		}
		mv, err := eng.MakeMutable(initial)
		if err != nil {
			return err
		}
		r.mutables[step.Name] = mv

	case OpWorklet:
		var closure value.Value = value.Undefined{}
		if step.Closure != nil {
			c, err := r.resolve(step.Closure)
			if err != nil {
				return err
			}
			closure = c
		}
		w, err := r.js.Worklet(step.Source, closure)
		if err != nil {
			return err
		}
		r.worklets[step.Name] = w

	case OpSet:
		v, err := r.resolve(step.Value)
		if err != nil {
			return err
		}
		r.mutables[step.Name].Set(v)

	case OpRelease:
		eng.ReleaseMutable(r.mutables[step.Name])

	case OpRegister:
		emitter := events.AnyEmitter
		if step.Emitter != nil {
			emitter = *step.Emitter
		}
		id, err := eng.RegisterEventHandler(step.Event, emitter, r.worklets[step.Worklet])
		if err != nil {
			return err
		}
		r.handlers[step.Name] = id

	case OpUnregister:
		eng.UnregisterEventHandler(r.handlers[step.Name])

	case OpEvent:
		var payload value.Value = value.Undefined{}
		if step.Payload != nil {
			p, err := r.resolve(step.Payload)
			if err != nil {
				return err
			}
			payload = p
		}
		eng.OnEvent(step.Event, r.timestamp(step), payload)

	case OpRawEvent:
		_, err := eng.HandleRawEvent([]byte(step.Raw), r.timestamp(step))
		return err

	case OpStartMapper:
		id, err := eng.StartMapper(r.worklets[step.Worklet], r.mutableList(step.Inputs), r.mutableList(step.Outputs))
		if err != nil {
			return err
		}
		r.mappers[step.Name] = id

	case OpStopMapper:
		eng.StopMapper(r.mappers[step.Name])

	case OpScheduleUI:
		return eng.ScheduleOnUI(r.worklets[step.Worklet])

	case OpRequestFrame:
		return eng.RequestAnimationFrame(r.worklets[step.Worklet])

	case OpFrame:
		count := max(step.Count, 1)
		for i := 0; i < count; i++ {
			ts := r.clock.Next()
			if i == 0 && step.Timestamp != nil {
				ts = r.clock.Set(*step.Timestamp)
			}
			r.awaitFrame()
			eng.Tick(ts)
		}

	case OpDrainJS:
		r.loop.RunPending()

	case OpLayoutStart:
		return eng.StartObserving(step.Tag, r.mutables[step.Name])

	case OpLayoutStop:
		eng.StopObserving(step.Tag, step.Finished)

	case OpLayoutCancel:
		eng.NotifyAboutCancellation(step.Tag)

	case OpConfigureLayout:
		typ, err := layout.ParseAnimationType(step.AnimationType)
		if err != nil {
			return err
		}
		var config shareable.Shareable
		if step.Value != nil {
			v, err := r.resolve(step.Value)
			if err != nil {
				return err
			}
			config = shareable.FromValue(v)
		}
		return eng.ConfigureLayoutAnimation(step.Tag, typ, step.SharedTag, config)

	case OpViewProp:
		cb, err := r.ref(strings.TrimPrefix(step.Callback, "$"))
		if err != nil {
			return err
		}
		return eng.GetViewProp(step.Tag, step.Prop, cb)

	case OpExpect:
		return r.expect(step)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// expect compares a mutable, or a JS expression, with the step value.
func (r *runner) expect(step Step) error {
	want, err := r.resolve(step.Value)
	if err != nil {
		return err
	}

	label := step.Name
	var got value.Value
	if step.Source != "" {
		label = step.Source
		got, err = r.js.Run(step.Source)
		if err != nil {
			return err
		}
	} else {
		got = r.mutables[step.Name].Get()
	}

	if !value.Equal(want, got) {
		r.result.AddError(fmt.Sprintf("expect %s: want %s, got %s", label, describe(want), describe(got)))
	}
	return nil
}

// timestamp is the step's explicit timestamp or the current frame time.
func (r *runner) timestamp(step Step) float64 {
	if step.Timestamp != nil {
		return *step.Timestamp
	}
	return r.clock.Current()
}

func (r *runner) mutableList(names []string) []*shareable.MutableValue {
	out := make([]*shareable.MutableValue, len(names))
	for i, name := range names {
		out[i] = r.mutables[name]
	}
	return out
}

// resolve converts decoded YAML into a value, replacing "$name" strings
// with the referenced shareable.
func (r *runner) resolve(v any) (value.Value, error) {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "$"); ok && name != "" {
			s, err := r.ref(name)
			if err != nil {
				return nil, err
			}
			return value.Opaque{V: s}, nil
		}
		return value.String(val), nil
	case []any:
		arr := make(value.Array, len(val))
		for i, elem := range val {
			conv, err := r.resolve(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(value.Object, len(val))
		for k, elem := range val {
			conv, err := r.resolve(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return value.FromGo(val)
	}
}

// ref looks name up among the scenario's mutables and worklets, then among
// the JS runtime's global functions.
func (r *runner) ref(name string) (shareable.Shareable, error) {
	if mv, ok := r.mutables[name]; ok {
		return mv, nil
	}
	if w, ok := r.worklets[name]; ok {
		return w, nil
	}

	fn := r.js.Runtime().Get(name)
	if _, ok := goja.AssertFunction(fn); fn == nil || !ok {
		return nil, fmt.Errorf("unknown reference $%s", name)
	}
	return r.js.MakeShareableClone(fn, false)
}

func describe(v value.Value) string {
	data, err := value.MarshalJSON(v)
	if err != nil {
		return value.Kind(v)
	}
	return string(data)
}
