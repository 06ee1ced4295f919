package jsrt

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
)

// maxCloneDepth bounds nesting so cyclic data fails instead of recursing forever.
const maxCloneDepth = 64

var plainObjectType = reflect.TypeOf(map[string]any(nil))

// MakeShareableClone captures v so it can be rebuilt in another runtime.
// With retain, arrays and objects are wrapped so each runtime materializes
// them once and keeps that instance.
//
// Capturing the same function or identity object twice yields the same
// Shareable, so per-runtime caches apply across captures.
func (vm *VM) MakeShareableClone(v goja.Value, retain bool) (shareable.Shareable, error) {
	return vm.clone(v, retain, 0)
}

func (vm *VM) clone(v goja.Value, retain bool, depth int) (shareable.Shareable, error) {
	if depth > maxCloneDepth {
		return nil, fmt.Errorf("%s runtime: value nested deeper than %d levels", vm.name, maxCloneDepth)
	}
	if v == nil || goja.IsUndefined(v) {
		return shareable.Scalar{V: value.Undefined{}}, nil
	}
	if goja.IsNull(v) {
		return shareable.Scalar{V: value.Null{}}, nil
	}

	switch val := v.(type) {
	case *goja.Symbol:
		return shareable.String(val.String()), nil
	case *goja.Object:
		return vm.cloneObject(val, retain, depth)
	}

	switch x := v.Export().(type) {
	case string:
		return shareable.String(x), nil
	case bool:
		return shareable.Scalar{V: value.Bool(x)}, nil
	case int64:
		return shareable.Scalar{V: value.Number(float64(x))}, nil
	case float64:
		return shareable.Scalar{V: value.Number(x)}, nil
	default:
		return nil, fmt.Errorf("%s runtime: unsupported value %s", vm.name, v.String())
	}
}

func (vm *VM) cloneObject(obj *goja.Object, retain bool, depth int) (shareable.Shareable, error) {
	if s, ok := vm.lookupIdentity(obj); ok {
		return s, nil
	}

	if _, ok := goja.AssertFunction(obj); ok {
		return vm.cloneFunction(obj, depth)
	}

	if init := obj.Get("__init"); init != nil {
		if _, ok := goja.AssertFunction(init); ok {
			return vm.cloneHandle(obj, init, depth)
		}
	}

	var inner shareable.Shareable
	switch {
	case obj.ClassName() == "Array":
		length := int(obj.Get("length").ToInteger())
		items := make([]shareable.Shareable, length)
		for i := 0; i < length; i++ {
			item, err := vm.clone(obj.Get(strconv.Itoa(i)), false, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		inner = shareable.Array{Items: items}

	case obj.ExportType() == plainObjectType:
		keys := obj.Keys()
		fields := make(map[string]shareable.Shareable, len(keys))
		for _, k := range keys {
			field, err := vm.clone(obj.Get(k), false, depth+1)
			if err != nil {
				return nil, err
			}
			fields[k] = field
		}
		inner = shareable.Object{Fields: fields}

	default:
		host := &shareable.HostObject{V: obj.Export()}
		vm.remember(host, obj)
		return host, nil
	}

	if !retain {
		return inner, nil
	}
	r := &shareable.Retaining{Inner: inner}
	vm.remember(r, obj)
	return r, nil
}

func (vm *VM) cloneFunction(fn *goja.Object, depth int) (shareable.Shareable, error) {
	hash := fn.Get("__workletHash")
	if hash == nil || goja.IsUndefined(hash) {
		rf := &shareable.RemoteFunction{Origin: vm, Fn: fn}
		if name := fn.Get("name"); name != nil && !goja.IsUndefined(name) {
			rf.Name = name.String()
		}
		vm.remember(rf, fn)
		return rf, nil
	}

	source := fn.String()
	if initData, ok := fn.Get("__initData").(*goja.Object); ok {
		if code := initData.Get("code"); code != nil && !goja.IsUndefined(code) {
			source = code.String()
		}
	}

	w := &shareable.Worklet{
		Hash:    hash.String(),
		Source:  source,
		Closure: shareable.Object{Fields: map[string]shareable.Shareable{}},
	}
	// Remember before capturing the closure, which may refer back to fn.
	vm.remember(w, fn)

	if closure := fn.Get("__closure"); closure != nil && !goja.IsUndefined(closure) && !goja.IsNull(closure) {
		c, err := vm.clone(closure, false, depth+1)
		if err != nil {
			vm.Forget(w)
			return nil, fmt.Errorf("worklet %s closure: %w", w.Hash, err)
		}
		obj, ok := c.(shareable.Object)
		if !ok {
			vm.Forget(w)
			return nil, fmt.Errorf("worklet %s closure must be a plain object, got %s", w.Hash, c.Kind())
		}
		w.Closure = obj
	}
	return w, nil
}

func (vm *VM) cloneHandle(obj *goja.Object, init goja.Value, depth int) (shareable.Shareable, error) {
	initS, err := vm.clone(init, false, depth+1)
	if err != nil {
		return nil, err
	}
	w, ok := initS.(*shareable.Worklet)
	if !ok {
		return nil, fmt.Errorf("%s runtime: handle initializer must be a worklet, got %s", vm.name, initS.Kind())
	}
	h := &shareable.Handle{Init: w}
	vm.remember(h, obj)
	return h, nil
}
