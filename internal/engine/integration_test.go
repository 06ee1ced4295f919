package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/events"
	"github.com/roach88/worklets/internal/jsrt"
	"github.com/roach88/worklets/internal/scheduler"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// twoRuntimes wires an engine to a JS VM and a UI VM the way an embedder does.
type twoRuntimes struct {
	engine *Engine
	js     *jsrt.VM
	ui     *jsrt.VM
	loop   *scheduler.Loop
}

func newTwoRuntimes(t *testing.T) *twoRuntimes {
	t.Helper()
	tr := &twoRuntimes{loop: scheduler.NewLoop(scheduler.WithLoopLogger(quietLogger()))}
	tr.js = jsrt.New("js", jsrt.WithLogger(quietLogger()))
	tr.ui = jsrt.New("ui", jsrt.WithLogger(quietLogger()), jsrt.WithRemoteCaller(func(fn *shareable.RemoteFunction, args []value.Value) {
		tr.engine.CallRemote(fn, args)
	}))
	tr.engine = New(
		WithID("engine-js"),
		WithLogger(quietLogger()),
		WithTracer(trace.Nop{}),
		WithUIRuntime(tr.ui),
		WithJSRuntime(tr.js),
		WithCallInvoker(tr.loop),
	)
	t.Cleanup(tr.engine.Close)
	return tr
}

func (tr *twoRuntimes) remote(t *testing.T, src string) *shareable.RemoteFunction {
	t.Helper()
	v, err := tr.js.Runtime().RunString(src)
	require.NoError(t, err)
	s, err := tr.js.MakeShareableClone(v, false)
	require.NoError(t, err)
	rf, ok := s.(*shareable.RemoteFunction)
	require.True(t, ok, "got %s", s.Kind())
	return rf
}

func TestIntegration_HandlerCallsBackIntoJS(t *testing.T) {
	tr := newTwoRuntimes(t)
	report := tr.remote(t, `var received = []; (function report(v) { received.push(v); })`)

	handler, err := tr.js.Worklet(`function (event, ts) { report(event.y * 2, ts); }`, value.Object{
		"report": value.Opaque{V: report},
	})
	require.NoError(t, err)

	_, err = tr.engine.RegisterEventHandler("onScroll", events.AnyEmitter, handler)
	require.NoError(t, err)
	tr.engine.Tick(16)

	n, err := tr.engine.HandleRawEvent([]byte(`{"target":3,"type":"topScroll","payload":{"y":21}}`), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	received, err := tr.js.Get("received")
	require.NoError(t, err)
	assert.Empty(t, received, "remote calls wait for the JS loop")

	tr.loop.RunPending()
	received, err = tr.js.Get("received")
	require.NoError(t, err)
	assert.Equal(t, value.Array{value.Number(42)}, received)
}

func TestIntegration_MapperWorklet(t *testing.T) {
	tr := newTwoRuntimes(t)
	progress, _ := tr.engine.MakeMutable(value.Number(0))
	width, _ := tr.engine.MakeMutable(value.Number(0))

	w, err := tr.js.Worklet(`function (p) { return p * maxWidth; }`, value.Object{"maxWidth": value.Number(200)})
	require.NoError(t, err)
	_, err = tr.engine.StartMapper(w, []*shareable.MutableValue{progress}, []*shareable.MutableValue{width})
	require.NoError(t, err)
	tr.engine.Tick(16)

	setter, err := tr.js.Worklet(`function () { sv.value = 0.25; }`, value.Object{"sv": value.Opaque{V: progress}})
	require.NoError(t, err)
	require.NoError(t, tr.engine.ScheduleOnUI(setter))

	stats := tr.engine.Tick(32)
	assert.Equal(t, 1, stats.Jobs)
	assert.Equal(t, 1, stats.Mappers)
	assert.Equal(t, value.Number(50), width.Get())
}

func TestIntegration_RequestAnimationFrameFromJS(t *testing.T) {
	tr := newTwoRuntimes(t)
	clock, _ := tr.engine.MakeMutable(value.Number(0))

	w, err := tr.js.Worklet(`function (ts) { sv.value = ts; }`, value.Object{"sv": value.Opaque{V: clock}})
	require.NoError(t, err)
	require.NoError(t, tr.engine.RequestAnimationFrame(w))

	tr.engine.Tick(16.5)
	assert.Equal(t, value.Number(16.5), clock.Get())
}

func TestIntegration_ReleaseAfterMaterialization(t *testing.T) {
	tr := newTwoRuntimes(t)
	mv, _ := tr.engine.MakeMutable(value.Number(1))

	w, err := tr.js.Worklet(`function () { return sv.value; }`, value.Object{"sv": value.Opaque{V: mv}})
	require.NoError(t, err)
	call, err := tr.ui.Callable(w)
	require.NoError(t, err)
	got, err := call.Call()
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), got)

	tr.engine.ReleaseMutable(mv)
	assert.True(t, mv.Freed())
}

func TestIntegration_UnregisteredHandlersLeaveNoCache(t *testing.T) {
	tr := newTwoRuntimes(t)
	jsBase, uiBase := tr.js.Cached(), tr.ui.Cached()

	for i := range 100 {
		w, err := tr.js.Worklet(`function (event) { return event.y * factor; }`, value.Object{"factor": value.Number(i)})
		require.NoError(t, err)
		id, err := tr.engine.RegisterEventHandler("onScroll", events.AnyEmitter, w)
		require.NoError(t, err)
		tr.engine.Tick(float64(i))
		require.Equal(t, 1, tr.engine.OnEvent("onScroll", 0, value.Object{"y": value.Number(1)}))

		tr.engine.UnregisterEventHandler(id)
		tr.engine.Tick(float64(i) + 0.5)
	}

	assert.Zero(t, tr.engine.Store().Len())
	assert.Equal(t, jsBase, tr.js.Cached())
	assert.Equal(t, uiBase, tr.ui.Cached())
}

func TestIntegration_SharedWorkletCachedUntilLastRelease(t *testing.T) {
	tr := newTwoRuntimes(t)
	uiBase := tr.ui.Cached()

	w, err := tr.js.Worklet(`function (a) { return a; }`, value.Object{})
	require.NoError(t, err)
	out, _ := tr.engine.MakeMutable(value.Number(0))
	in, _ := tr.engine.MakeMutable(value.Number(1))
	handler, err := tr.engine.RegisterEventHandler("onScroll", events.AnyEmitter, w)
	require.NoError(t, err)
	mapper, err := tr.engine.StartMapper(w, []*shareable.MutableValue{in}, []*shareable.MutableValue{out})
	require.NoError(t, err)
	tr.engine.Tick(16)
	cached := tr.ui.Cached()
	require.Greater(t, cached, uiBase)

	tr.engine.UnregisterEventHandler(handler)
	tr.engine.Tick(32)
	assert.Equal(t, cached, tr.ui.Cached(), "the mapper still holds the worklet")

	tr.engine.StopMapper(mapper)
	tr.engine.Tick(48)
	assert.Less(t, tr.ui.Cached(), cached)
}
