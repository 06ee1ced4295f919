package shareable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/value"
)

func TestFromValueToValue_RoundTrip(t *testing.T) {
	in := value.Object{
		"n":     value.Number(1.5),
		"s":     value.String("text"),
		"flags": value.Array{value.Bool(true), value.Null{}, value.Undefined{}},
		"inner": value.Object{"k": value.Number(-1)},
	}

	s := FromValue(in)
	require.Equal(t, KindObject, s.Kind())
	assert.True(t, value.Equal(in, ToValue(s)))
}

func TestFromValue_OpaqueShareableUnwraps(t *testing.T) {
	mv := NewMutable(1, value.Number(0), nil)

	s := FromValue(value.Opaque{V: mv})
	assert.Same(t, mv, s)

	back := ToValue(mv)
	assert.Equal(t, value.Opaque{V: mv}, back)
}

func TestFromValue_HostObjectIdentity(t *testing.T) {
	type native struct{ tag int }
	n := &native{tag: 3}

	s := FromValue(value.Opaque{V: n})
	host, ok := s.(*HostObject)
	require.True(t, ok)
	assert.Same(t, n, host.V)

	// The host object survives a round trip by identity.
	assert.Same(t, host, FromValue(ToValue(host)))
}

func TestToValue_Retaining(t *testing.T) {
	r := &Retaining{Inner: Array{Items: []Shareable{String("a")}}}
	assert.True(t, value.Equal(value.Array{value.String("a")}, ToValue(r)))
}

func TestKinds(t *testing.T) {
	assert.True(t, IsWorklet(&Worklet{}))
	assert.True(t, IsWorklet(&HostFunction{}))
	assert.False(t, IsWorklet(&RemoteFunction{}))
	assert.True(t, IsCallable(&RemoteFunction{}))
	assert.False(t, IsCallable(String("x")))
	assert.Equal(t, "synchronized_data_holder", KindSynchronizedDataHolder.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestMemo_CachesPerRuntime(t *testing.T) {
	h := &Handle{Init: &Worklet{Hash: "1"}}
	uiRuntime, jsRuntime := new(int), new(int)

	builds := 0
	build := func() (any, error) {
		builds++
		return builds, nil
	}

	a, err := h.Resolve(uiRuntime, build)
	require.NoError(t, err)
	b, err := h.Resolve(uiRuntime, build)
	require.NoError(t, err)
	c, err := h.Resolve(jsRuntime, build)
	require.NoError(t, err)

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, c)

	h.Forget(uiRuntime)
	d, err := h.Resolve(uiRuntime, build)
	require.NoError(t, err)
	assert.Equal(t, 3, d)
}

func TestMemo_FailedBuildNotCached(t *testing.T) {
	h := &Handle{}
	rt := new(int)

	_, err := h.Resolve(rt, func() (any, error) { return nil, errors.New("init failed") })
	require.Error(t, err)

	v, err := h.Resolve(rt, func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSynchronizedDataHolder(t *testing.T) {
	h := NewSynchronizedDataHolder(String("a"))
	assert.Equal(t, String("a"), h.Get())

	h.Set(Scalar{V: value.Number(2)})
	assert.Equal(t, Scalar{V: value.Number(2)}, h.Get())
}
