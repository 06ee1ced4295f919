package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Undefined{}
	var _ Value = Null{}
	var _ Value = Bool(true)
	var _ Value = Number(1.5)
	var _ Value = String("s")
	var _ Value = Array{Number(1)}
	var _ Value = Object{"k": String("v")}
	var _ Value = Opaque{V: 1}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"a":  Number(1),
		"A":  Number(2),
		"aa": Number(3),
		"AA": Number(4),
	}

	assert.Equal(t, []string{"A", "AA", "a", "aa"}, obj.SortedKeys())
}

func TestEqual(t *testing.T) {
	type token struct{ id int }
	shared := &token{id: 1}

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"nil equals undefined", nil, Undefined{}, true},
		{"null is not undefined", Null{}, Undefined{}, false},
		{"numbers", Number(2), Number(2), true},
		{"NaN equals NaN", Number(math.NaN()), Number(math.NaN()), true},
		{"signed zeros", Number(0), Number(math.Copysign(0, -1)), true},
		{"number is not string", Number(1), String("1"), false},
		{"nested arrays", Array{Number(1), Array{String("x")}}, Array{Number(1), Array{String("x")}}, true},
		{"array length", Array{Number(1)}, Array{Number(1), Number(2)}, false},
		{"objects", Object{"x": Number(1)}, Object{"x": Number(1)}, true},
		{"object keys", Object{"x": Number(1)}, Object{"y": Number(1)}, false},
		{"opaque identity", Opaque{V: shared}, Opaque{V: shared}, true},
		{"opaque distinct", Opaque{V: shared}, Opaque{V: &token{id: 1}}, false},
		{"opaque uncomparable", Opaque{V: []int{1}}, Opaque{V: []int{1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromJSON(t *testing.T) {
	v, err := FromJSON([]byte(`{"x": 10, "y": 2.5, "tags": ["a", null], "ok": true}`))
	require.NoError(t, err)

	assert.True(t, Equal(Object{
		"x":    Number(10),
		"y":    Number(2.5),
		"tags": Array{String("a"), Null{}},
		"ok":   Bool(true),
	}, v))
}

func TestFromJSON_Empty(t *testing.T) {
	v, err := FromJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, Undefined{}, v)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"x":`))
	assert.Error(t, err)
}

func TestFromGo_WrapsUnknownAsOpaque(t *testing.T) {
	ch := make(chan int)
	v, err := FromGo(ch)
	require.NoError(t, err)

	op, ok := v.(Opaque)
	require.True(t, ok)
	assert.Equal(t, ch, op.V)
}

func TestToGo_RoundTrip(t *testing.T) {
	in := map[string]any{
		"n":    float64(3),
		"list": []any{"a", true, nil},
	}

	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToGo(v))
}

func TestMarshalJSON(t *testing.T) {
	data, err := MarshalJSON(Object{
		"b": Number(1),
		"a": Array{Undefined{}, Number(math.Inf(1))},
		"u": Undefined{},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[null,null],"b":1}`, string(data))
}

func TestMarshalJSON_Opaque(t *testing.T) {
	_, err := MarshalJSON(Opaque{V: 1})
	assert.Error(t, err)
}

func TestMarshalCanonical(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"z":    1,
		"a":    String("<&>"),
		"list": []any{Number(0.5), int64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<&>","list":[0.5,7],"z":1}`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" followed by a combining acute accent normalizes to a single code point.
	data, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data))
}

func TestMarshalCanonical_LineSeparator(t *testing.T) {
	data, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(data))

	// A literal backslash followed by "u2028" stays escaped.
	data, err = MarshalCanonical(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(data))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Number(math.NaN()))
	assert.Error(t, err)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "undefined", ToString(Undefined{}))
	assert.Equal(t, "42", ToString(Number(42)))
	assert.Equal(t, "0.25", ToString(Number(0.25)))
	assert.Equal(t, "NaN", ToString(Number(math.NaN())))
	assert.Equal(t, "hi", ToString(String("hi")))
	assert.Equal(t, `[1,"x"]`, ToString(Array{Number(1), String("x")}))
}
