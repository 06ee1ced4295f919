package layout

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
)

type endCall struct {
	tag      int
	finished bool
}

type recorder struct {
	progress  []value.Value
	ends      []endCall
	cancelled []int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Progress: func(tag int, v value.Value) { r.progress = append(r.progress, v) },
		End:      func(tag int, finished bool) { r.ends = append(r.ends, endCall{tag, finished}) },
		Cancel:   func(tag int) { r.cancelled = append(r.cancelled, tag) },
	}
}

func newTestProxy(rec *recorder) *Proxy {
	return NewProxy(rec.callbacks(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestProxy_StartThenStop(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)
	mv := shareable.NewMutable(1, value.Number(0), nil)

	require.NoError(t, p.StartObserving(5, mv))
	assert.True(t, p.IsObserving(5))

	assert.True(t, p.StopObserving(5, true))
	assert.Equal(t, []endCall{{5, true}}, rec.ends)
	assert.False(t, p.IsObserving(5))

	assert.False(t, p.StopObserving(5, false), "second stop is a no-op")
	assert.Equal(t, []endCall{{5, true}}, rec.ends, "End fires exactly once")
}

func TestProxy_ProgressForwarded(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)
	mv := shareable.NewMutable(1, value.Number(0), nil)

	require.NoError(t, p.StartObserving(5, mv))
	mv.Set(value.Number(0.5))
	mv.Set(value.Number(1))
	p.StopObserving(5, true)
	mv.Set(value.Number(2))

	assert.Equal(t, []value.Value{value.Number(0.5), value.Number(1)}, rec.progress)
}

func TestProxy_CancellationSuppressesStop(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)
	mv := shareable.NewMutable(1, value.Number(0), nil)

	require.NoError(t, p.StartObserving(7, mv))
	assert.True(t, p.NotifyAboutCancellation(7))
	assert.False(t, p.StopObserving(7, false))
	assert.False(t, p.NotifyAboutCancellation(7))

	assert.Equal(t, []int{7}, rec.cancelled)
	assert.Empty(t, rec.ends)
}

func TestProxy_RestartReplacesSilently(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)
	first := shareable.NewMutable(1, value.Number(0), nil)
	second := shareable.NewMutable(2, value.Number(0), nil)

	require.NoError(t, p.StartObserving(5, first))
	require.NoError(t, p.StartObserving(5, second))
	assert.Empty(t, rec.ends, "replacing an association fires nothing")
	assert.Equal(t, int64(1), first.Refs(), "previous value released")

	first.Set(value.Number(1))
	second.Set(value.Number(2))
	assert.Equal(t, []value.Value{value.Number(2)}, rec.progress)
	assert.Equal(t, 1, p.Len())
}

func TestProxy_HoldsReference(t *testing.T) {
	freed := false
	p := newTestProxy(&recorder{})
	mv := shareable.NewMutable(1, value.Number(0), func(*shareable.MutableValue) { freed = true })

	require.NoError(t, p.StartObserving(3, mv))
	mv.Release()
	assert.False(t, freed, "observed value stays alive")

	p.StopObserving(3, true)
	assert.True(t, freed)
}

func TestProxy_FreedValue(t *testing.T) {
	p := newTestProxy(&recorder{})
	mv := shareable.NewMutable(1, value.Number(0), nil)
	mv.Release()

	assert.Error(t, p.StartObserving(1, mv))
	assert.False(t, p.IsObserving(1))
}

func TestProxy_UnknownTagsAreNoOps(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)

	assert.False(t, p.StopObserving(42, true))
	assert.False(t, p.NotifyAboutCancellation(42))
	assert.Empty(t, rec.ends)
	assert.Empty(t, rec.cancelled)
}

func TestProxy_NilCallbacks(t *testing.T) {
	p := NewProxy(Callbacks{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	mv := shareable.NewMutable(1, value.Number(0), nil)

	require.NoError(t, p.StartObserving(1, mv))
	assert.NotPanics(t, func() {
		mv.Set(value.Number(1))
		p.StopObserving(1, true)
	})
}

func TestProxy_Clear(t *testing.T) {
	rec := &recorder{}
	p := newTestProxy(rec)
	a := shareable.NewMutable(1, value.Number(0), nil)
	b := shareable.NewMutable(2, value.Number(0), nil)

	require.NoError(t, p.StartObserving(1, a))
	require.NoError(t, p.StartObserving(2, b))

	assert.Equal(t, 2, p.Clear())
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, rec.ends)
	assert.Equal(t, int64(1), a.Refs())
}
