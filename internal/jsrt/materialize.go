package jsrt

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// Materialize rebuilds s inside this VM. Identity kinds are cached, so the
// same Shareable always yields the same object in a given VM.
func (vm *VM) Materialize(s shareable.Shareable) (goja.Value, error) {
	switch val := s.(type) {
	case nil:
		return goja.Undefined(), nil
	case shareable.Scalar:
		return vm.FromValue(val.V)
	case shareable.String:
		return vm.rt.ToValue(string(val)), nil
	case shareable.Array:
		items := make([]any, len(val.Items))
		for i, item := range val.Items {
			jv, err := vm.Materialize(item)
			if err != nil {
				return nil, err
			}
			items[i] = jv
		}
		return vm.rt.NewArray(items...), nil
	case shareable.Object:
		obj := vm.rt.NewObject()
		for k, field := range val.Fields {
			jv, err := vm.Materialize(field)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, jv); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}

	if v, ok := vm.lookupMaterialized(s); ok {
		return v, nil
	}

	switch val := s.(type) {
	case *shareable.Worklet:
		return vm.materializeWorklet(val)
	case *shareable.RemoteFunction:
		return vm.materializeRemote(val)
	case *shareable.HostFunction:
		fn := vm.hostFunction(val.Name, val.Fn)
		vm.remember(val, fn)
		return fn, nil
	case *shareable.HostObject:
		v := vm.rt.ToValue(val.V)
		vm.remember(val, v)
		return v, nil
	case *shareable.Handle:
		return vm.materializeHandle(val)
	case *shareable.Retaining:
		v, err := val.Resolve(vm, func() (any, error) { return vm.Materialize(val.Inner) })
		if err != nil {
			return nil, err
		}
		vm.remember(val, v.(goja.Value))
		return v.(goja.Value), nil
	case *shareable.MutableValue:
		obj := vm.rt.NewDynamicObject(&liveValue{
			vm:  vm,
			get: func() (goja.Value, error) { return vm.FromValue(val.Get()) },
			set: func(v goja.Value) error {
				pv, err := vm.ToValue(v)
				if err != nil {
					return err
				}
				val.Set(pv)
				return nil
			},
		})
		vm.remember(val, obj)
		return obj, nil
	case *shareable.SynchronizedDataHolder:
		obj := vm.rt.NewDynamicObject(&liveValue{
			vm:  vm,
			get: func() (goja.Value, error) { return vm.Materialize(val.Get()) },
			set: func(v goja.Value) error {
				s, err := vm.MakeShareableClone(v, false)
				if err != nil {
					return err
				}
				val.Set(s)
				return nil
			},
		})
		vm.remember(val, obj)
		return obj, nil
	default:
		return nil, fmt.Errorf("%s runtime: cannot materialize %s", vm.name, s.Kind())
	}
}

// materializeWorklet re-evaluates the worklet source with its closure members
// in scope and tags the result the way the authoring layer does.
func (vm *VM) materializeWorklet(w *shareable.Worklet) (goja.Value, error) {
	v, err := w.Resolve(vm, func() (any, error) {
		closure, err := vm.Materialize(w.Closure)
		if err != nil {
			return nil, fmt.Errorf("worklet %s closure: %w", w.Hash, err)
		}

		factory, err := vm.rt.RunString("(function (__closure) { with (__closure) { return (" + w.Source + "); } })")
		if err != nil {
			return nil, fmt.Errorf("%s runtime: compile worklet %s: %w", vm.name, w.Hash, err)
		}
		build, _ := goja.AssertFunction(factory)
		fnVal, err := build(goja.Undefined(), closure)
		if err != nil {
			return nil, fmt.Errorf("%s runtime: evaluate worklet %s: %w", vm.name, w.Hash, err)
		}
		fn, ok := fnVal.(*goja.Object)
		if _, callable := goja.AssertFunction(fnVal); !ok || !callable {
			return nil, fmt.Errorf("%s runtime: worklet %s did not evaluate to a function", vm.name, w.Hash)
		}
		fn.Set("__closure", closure)
		fn.Set("__workletHash", w.Hash)
		return fnVal, nil
	})
	if err != nil {
		return nil, err
	}
	vm.remember(w, v.(goja.Value))
	return v.(goja.Value), nil
}

func (vm *VM) materializeRemote(rf *shareable.RemoteFunction) (goja.Value, error) {
	if origin, ok := rf.Origin.(*VM); ok && origin == vm {
		if fn, ok := rf.Fn.(goja.Value); ok {
			return fn, nil
		}
	}

	fn := vm.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if vm.remote == nil {
			panic(vm.rt.NewTypeError(fmt.Sprintf("remote function %q cannot be called from the %s runtime", rf.Name, vm.name)))
		}
		args, err := vm.argsToValues(call.Arguments)
		if err != nil {
			panic(vm.rt.NewGoError(err))
		}
		vm.remote(rf, args)
		return goja.Undefined()
	})
	vm.remember(rf, fn)
	return fn, nil
}

func (vm *VM) materializeHandle(h *shareable.Handle) (goja.Value, error) {
	v, err := h.Resolve(vm, func() (any, error) {
		initVal, err := vm.Materialize(h.Init)
		if err != nil {
			return nil, err
		}
		init, _ := goja.AssertFunction(initVal)
		res, err := init(goja.Undefined())
		if err != nil {
			return nil, fmt.Errorf("%s runtime: handle initializer: %w", vm.name, err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	vm.remember(h, v.(goja.Value))
	return v.(goja.Value), nil
}

func (vm *VM) hostFunction(name string, fn worklet.Callable) goja.Value {
	return vm.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		args, err := vm.argsToValues(call.Arguments)
		if err != nil {
			panic(vm.rt.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}
		res, err := fn.Call(args...)
		if err != nil {
			panic(vm.rt.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}
		jv, err := vm.FromValue(res)
		if err != nil {
			panic(vm.rt.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}
		return jv
	})
}

// Callable binds a worklet, remote function or host function to this VM.
// Calling a remote function owned by another VM forwards the call through
// the remote caller and returns undefined.
func (vm *VM) Callable(s shareable.Shareable) (worklet.Callable, error) {
	switch val := s.(type) {
	case *shareable.HostFunction:
		return val.Fn, nil
	case *shareable.Worklet, *shareable.RemoteFunction:
	default:
		kind := "undefined"
		if s != nil {
			kind = s.Kind().String()
		}
		return nil, fmt.Errorf("%s runtime: %s is not callable", vm.name, kind)
	}

	fnVal, err := vm.Materialize(s)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%s runtime: %s did not materialize to a function", vm.name, s.Kind())
	}

	return worklet.Func(func(args ...value.Value) (value.Value, error) {
		jsArgs := make([]goja.Value, len(args))
		for i, arg := range args {
			jv, err := vm.FromValue(arg)
			if err != nil {
				return value.Undefined{}, err
			}
			jsArgs[i] = jv
		}
		res, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return value.Undefined{}, fmt.Errorf("%s runtime: %w", vm.name, err)
		}
		return vm.ToValue(res)
	}), nil
}

// liveValue exposes a shared cell as an object with a value property.
type liveValue struct {
	vm  *VM
	get func() (goja.Value, error)
	set func(goja.Value) error
}

func (l *liveValue) Get(key string) goja.Value {
	if key != "value" {
		return nil
	}
	v, err := l.get()
	if err != nil {
		panic(l.vm.rt.NewGoError(err))
	}
	return v
}

func (l *liveValue) Set(key string, val goja.Value) bool {
	if key != "value" {
		return false
	}
	if err := l.set(val); err != nil {
		panic(l.vm.rt.NewGoError(err))
	}
	return true
}

func (l *liveValue) Has(key string) bool {
	return key == "value"
}

func (l *liveValue) Delete(string) bool {
	return false
}

func (l *liveValue) Keys() []string {
	return []string{"value"}
}
