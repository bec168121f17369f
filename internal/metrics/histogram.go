package metrics

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// DefaultReservoirCapacity is the default number of samples retained by
// a Histogram's reservoir.
const DefaultReservoirCapacity = 32768

// Histogram implements uniform reservoir sampling over a fixed-capacity
// buffer (Vitter's Algorithm R): every observation has an equal
// probability of surviving in the reservoir regardless of how many
// observations have been made.
type Histogram struct {
	mu        sync.Mutex
	name      string
	capacity  int
	count     int64 // total observations ever recorded
	reservoir []float64
	rnd       *rand.Rand

	otelInstrument metric.Float64Histogram
}

func newHistogram(name string, capacity int) *Histogram {
	if capacity <= 0 {
		capacity = DefaultReservoirCapacity
	}
	return &Histogram{
		name:     name,
		capacity: capacity,
		rnd:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// Update records a new observation into the reservoir and, if an OTel
// instrument is bound, into the exported histogram too.
func (h *Histogram) Update(v float64) {
	h.mu.Lock()
	h.count++
	switch {
	case int64(len(h.reservoir)) < int64(h.capacity):
		h.reservoir = append(h.reservoir, v)
	default:
		idx := h.rnd.Int63n(h.count)
		if idx < int64(h.capacity) {
			h.reservoir[idx] = v
		}
	}
	h.mu.Unlock()

	if h.otelInstrument != nil {
		h.otelInstrument.Record(context.Background(), v)
	}
}

// HistogramReport is the JSON shape of a reported histogram.
type HistogramReport struct {
	Count  int64   `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	P999   float64 `json:"p99_9"`
}

func (h *Histogram) report() HistogramReport {
	h.mu.Lock()
	samples := append([]float64(nil), h.reservoir...)
	count := h.count
	h.mu.Unlock()

	if len(samples) == 0 {
		return HistogramReport{Count: count}
	}

	sort.Float64s(samples)
	n := len(samples)

	percentile := func(p float64) float64 {
		idx := int(math.Ceil(p*float64(n))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		return samples[idx]
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)

	return HistogramReport{
		Count:  count,
		Min:    samples[0],
		Max:    samples[n-1],
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		P50:    percentile(0.50),
		P90:    percentile(0.90),
		P95:    percentile(0.95),
		P99:    percentile(0.99),
		P999:   percentile(0.999),
	}
}

func (h *Histogram) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count = 0
	h.reservoir = h.reservoir[:0]
}
