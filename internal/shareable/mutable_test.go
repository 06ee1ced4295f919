package shareable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/value"
)

func TestMutable_GetSet(t *testing.T) {
	mv := NewMutable(1, value.Number(1), nil)

	assert.True(t, mv.Set(value.Number(2)))
	assert.Equal(t, value.Number(2), mv.Get())
}

func TestMutable_NilInitialIsUndefined(t *testing.T) {
	mv := NewMutable(1, nil, nil)
	assert.Equal(t, value.Undefined{}, mv.Get())
}

func TestMutable_EqualWriteIsNotAChange(t *testing.T) {
	mv := NewMutable(1, value.Object{"x": value.Number(1)}, nil)

	calls := 0
	mv.AddListener(func(value.Value) { calls++ })

	assert.False(t, mv.Set(value.Object{"x": value.Number(1)}))
	assert.Equal(t, 0, calls)
}

func TestMutable_Listeners(t *testing.T) {
	mv := NewMutable(1, value.Number(0), nil)

	var seen []value.Value
	id := mv.AddListener(func(v value.Value) { seen = append(seen, v) })

	mv.Set(value.Number(1))
	mv.RemoveListener(id)
	mv.RemoveListener(id) // unknown ids are ignored
	mv.Set(value.Number(2))

	assert.Equal(t, []value.Value{value.Number(1)}, seen)
}

func TestMutable_Update(t *testing.T) {
	mv := NewMutable(1, value.Number(1), nil)

	changed := mv.Update(func(old value.Value) value.Value {
		return old.(value.Number) + 1
	})
	require.True(t, changed)
	assert.Equal(t, value.Number(2), mv.Get())
}

func TestMutable_ConcurrentUpdates(t *testing.T) {
	mv := NewMutable(1, value.Number(0), nil)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				mv.Update(func(old value.Value) value.Value { return old.(value.Number) + 1 })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, value.Number(1000), mv.Get())
}

func TestMutable_RefCounting(t *testing.T) {
	freed := 0
	mv := NewMutable(7, value.Null{}, func(m *MutableValue) {
		assert.Equal(t, uint64(7), m.ID())
		freed++
	})

	require.True(t, mv.Retain())
	assert.Equal(t, int64(2), mv.Refs())

	mv.Release()
	assert.Equal(t, 0, freed)

	mv.Release()
	assert.Equal(t, 1, freed)
	assert.True(t, mv.Freed())

	assert.False(t, mv.Retain(), "freed values cannot be retained")
}

func TestMutable_FreeDropsListeners(t *testing.T) {
	mv := NewMutable(1, value.Number(0), nil)

	calls := 0
	mv.AddListener(func(value.Value) { calls++ })
	mv.Release()

	mv.Set(value.Number(5))
	mv.AddListener(func(value.Value) { calls++ })
	mv.Set(value.Number(6))

	assert.Equal(t, 0, calls)
}
