package metrics

import (
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Counter is a monotonic 64-bit integer, safe for concurrent increment.
type Counter struct {
	name           string
	value          int64
	otelInstrument metric.Int64Observable
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Increment adds delta to the counter. delta may be negative only if
// the caller is correcting a prior over-count; the counter is
// otherwise monotonic under normal use.
func (c *Counter) Increment(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Value returns the counter's current value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

func (c *Counter) reset() {
	atomic.StoreInt64(&c.value, 0)
}
