package value

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the runtime value types.
// Only Undefined, Null, Bool, Number, String, Array, Object and Opaque implement it.
type Value interface {
	value() // Sealed
}

// Undefined is the JavaScript undefined value. It is also the zero result of
// worklets that return nothing.
type Undefined struct{}

func (Undefined) value() {}

// Null is the JavaScript null value.
type Null struct{}

func (Null) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Number is an IEEE 754 double, the only numeric type JavaScript has.
type Number float64

func (Number) value() {}

// String is a string value.
type String string

func (String) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object is a plain object. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Opaque carries host data that is not copied between runtimes.
// Two Opaque values are equal only when they wrap the same comparable value.
type Opaque struct {
	V any
}

func (Opaque) value() {}

// Kind names the dynamic type of a Value, following JavaScript's typeof where
// it makes sense.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case Opaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// IsNullish reports whether v is undefined, null or a nil interface.
func IsNullish(v Value) bool {
	switch v.(type) {
	case nil, Undefined, Null:
		return true
	}
	return false
}

// SortedKeys returns keys in UTF-16 code unit order, the order JavaScript
// engines and RFC 8785 agree on.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal compares two values structurally. Numbers use SameValueZero, so NaN
// equals NaN and +0 equals -0. A nil interface equals Undefined.
func Equal(a, b Value) bool {
	if a == nil {
		a = Undefined{}
	}
	if b == nil {
		b = Undefined{}
	}

	switch av := a.(type) {
	case Undefined:
		_, ok := b.(Undefined)
		return ok
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	case Opaque:
		bv, ok := b.(Opaque)
		if !ok {
			return false
		}
		if av.V == nil || bv.V == nil {
			return av.V == nil && bv.V == nil
		}
		// Uncomparable payloads (maps, slices, funcs) would panic on ==.
		if !reflect.TypeOf(av.V).Comparable() || !reflect.TypeOf(bv.V).Comparable() {
			return false
		}
		return av.V == bv.V
	}
	return false
}

// ToString renders v the way JavaScript's String() would for primitives.
// Arrays and objects are rendered as JSON.
func ToString(v Value) string {
	switch val := v.(type) {
	case nil, Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Number:
		return formatNumber(float64(val))
	case String:
		return string(val)
	case Opaque:
		return "[opaque]"
	default:
		data, err := MarshalJSON(v)
		if err != nil {
			return "[unserializable]"
		}
		return string(data)
	}
}

// formatNumber formats like JavaScript's Number.prototype.toString for the
// common cases: integral values without a fraction, shortest round-trip
// otherwise.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
