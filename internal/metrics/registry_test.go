package metrics

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func newTestRegistry() *Registry {
	return New(noop.NewMeterProvider().Meter("clipper-test"))
}

func TestCreateCounterIsIdempotent(t *testing.T) {
	r := newTestRegistry()

	c1, err := r.CreateCounter("num_predictions")
	require.NoError(t, err)
	c2, err := r.CreateCounter("num_predictions")
	require.NoError(t, err)

	assert.Same(t, c1, c2)

	c1.Increment(5)
	assert.EqualValues(t, 5, c2.Value())
}

func TestCreateCounterCalledConcurrentlyReturnsOneHandle(t *testing.T) {
	r := newTestRegistry()

	const n = 50
	handles := make([]*Counter, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			c, err := r.CreateCounter("concurrent")
			require.NoError(t, err)
			handles[i] = c
		}()
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestCreateWithMismatchedKindFails(t *testing.T) {
	r := newTestRegistry()

	_, err := r.CreateCounter("shared_name")
	require.NoError(t, err)

	_, err = r.CreateMeter("shared_name")
	require.Error(t, err)
	var mismatch *ErrKindMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, KindCounter, mismatch.Existing)
	assert.Equal(t, KindMeter, mismatch.Wanted)
}

func TestReportMetricsClearResetsToZero(t *testing.T) {
	r := newTestRegistry()

	c, err := r.CreateCounter("requests")
	require.NoError(t, err)
	c.Increment(10)

	h, err := r.CreateHistogram("latency")
	require.NoError(t, err)
	h.Update(1.5)
	h.Update(2.5)

	dl, err := r.CreateDataList("samples")
	require.NoError(t, err)
	dl.Append(42)

	cleared, err := r.ReportMetrics(true)
	require.NoError(t, err)
	var reportCleared Report
	require.NoError(t, json.Unmarshal([]byte(cleared), &reportCleared))
	assert.EqualValues(t, 10, reportCleared.Counters["requests"])
	assert.EqualValues(t, 2, reportCleared.Histograms["latency"].Count)

	afterClear, err := r.ReportMetrics(false)
	require.NoError(t, err)
	var reportAfter Report
	require.NoError(t, json.Unmarshal([]byte(afterClear), &reportAfter))
	assert.EqualValues(t, 0, reportAfter.Counters["requests"])
	assert.EqualValues(t, 0, reportAfter.Histograms["latency"].Count)
	assert.Empty(t, reportAfter.DataLists["samples"])
}

func TestHistogramReportsPercentiles(t *testing.T) {
	r := newTestRegistry()
	h, err := r.CreateHistogramWithCapacity("small", 1000)
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		h.Update(float64(i))
	}

	rep := h.report()
	assert.EqualValues(t, 100, rep.Count)
	assert.Equal(t, 1.0, rep.Min)
	assert.Equal(t, 100.0, rep.Max)
	assert.InDelta(t, 50.0, rep.P50, 2)
	assert.InDelta(t, 99.0, rep.P99, 2)
}

func TestMeterTracksCount(t *testing.T) {
	r := newTestRegistry()
	m, err := r.CreateMeter("requests_per_sec")
	require.NoError(t, err)
	defer m.Stop()

	m.Mark(1)
	m.Mark(1)
	m.Mark(3)

	assert.EqualValues(t, 5, m.Count())
}
