package jsrt

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
)

// ToValue converts a JavaScript value to a plain value. Values with identity
// (functions, handles, mutables) come back as Opaque wrappers around their
// Shareable.
func (vm *VM) ToValue(v goja.Value) (value.Value, error) {
	s, err := vm.MakeShareableClone(v, false)
	if err != nil {
		return nil, err
	}
	return shareable.ToValue(s), nil
}

// FromValue converts a plain value into this VM. Opaque Shareables are
// materialized; other Opaque payloads are wrapped as Go values.
func (vm *VM) FromValue(v value.Value) (goja.Value, error) {
	switch val := v.(type) {
	case nil, value.Undefined:
		return goja.Undefined(), nil
	case value.Null:
		return goja.Null(), nil
	case value.Bool:
		return vm.rt.ToValue(bool(val)), nil
	case value.Number:
		return vm.rt.ToValue(float64(val)), nil
	case value.String:
		return vm.rt.ToValue(string(val)), nil
	case value.Array:
		items := make([]any, len(val))
		for i, elem := range val {
			jv, err := vm.FromValue(elem)
			if err != nil {
				return nil, err
			}
			items[i] = jv
		}
		return vm.rt.NewArray(items...), nil
	case value.Object:
		obj := vm.rt.NewObject()
		for _, k := range val.SortedKeys() {
			jv, err := vm.FromValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, jv); err != nil {
				return nil, err
			}
		}
		return obj, nil
	case value.Opaque:
		if s, ok := val.V.(shareable.Shareable); ok {
			return vm.Materialize(s)
		}
		return vm.rt.ToValue(val.V), nil
	default:
		return nil, fmt.Errorf("%s runtime: cannot convert %T", vm.name, v)
	}
}

func (vm *VM) argsToValues(args []goja.Value) ([]value.Value, error) {
	out := make([]value.Value, len(args))
	for i, arg := range args {
		v, err := vm.ToValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
