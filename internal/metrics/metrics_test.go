package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")
	require.NotNil(t, c)
	assert.NotNil(t, c.Registry())
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	// Should not panic
	c.RecordUIJob()
	c.RecordJSJob(false)
	c.RecordFrame()
	c.RecordEvent(true)
	c.RecordHandlerInvocation(errors.New("boom"))
	c.RecordMapperExecution()
	c.RecordWorkletError("ui")
	c.RecordStoreEntries(3)
	c.RecordLayoutObserved(1)
	c.RecordMappers(2)

	assert.Nil(t, c.Registry())
	samples, err := c.Summary()
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestCollector_Scheduler(t *testing.T) {
	c := NewCollector("test")

	c.RecordUIJob()
	c.RecordUIJob()
	c.RecordJSJob(true)
	c.RecordJSJob(false)
	c.RecordFrame()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.uiJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jsJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jsJobsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames))
}

func TestCollector_Events(t *testing.T) {
	c := NewCollector("test")

	c.RecordEvent(true)
	c.RecordEvent(false)
	c.RecordEvent(false)
	c.RecordHandlerInvocation(nil)
	c.RecordHandlerInvocation(errors.New("handler failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("handled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("ignored")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.handlerInvocations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handlerFailures))
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector("test")

	c.RecordStoreEntries(4)
	c.RecordStoreEntries(2)
	c.RecordLayoutObserved(1)
	c.RecordMappers(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.storeEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.layoutObserved))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.mappers))
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector("test")

	c.RecordMapperExecution()
	c.RecordWorkletError("mapper")

	samples, err := c.Summary()
	require.NoError(t, err)

	byName := make(map[string]Sample)
	for _, s := range samples {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "test_mapper_executions_total")
	assert.Equal(t, 1.0, byName["test_mapper_executions_total"].Value)

	require.Contains(t, byName, "test_worklet_errors_total")
	assert.Equal(t, map[string]string{"source": "mapper"}, byName["test_worklet_errors_total"].Labels)

	for i := 1; i < len(samples); i++ {
		assert.LessOrEqual(t, samples[i-1].Name, samples[i].Name)
	}
}
