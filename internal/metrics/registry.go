// Package metrics implements the process-wide metrics registry: named
// counters, meters, histograms, and data-lists, rendered as a JSON
// snapshot on demand. Registration is guarded by a single writer lock;
// counter and meter updates use fine-grained atomics, while histograms
// and data-lists guard their samples with a short per-metric mutex that
// a reporter also takes while copying them.
//
// Counters and meters are mirrored into OpenTelemetry observable
// instruments so the same values a JSON report exposes are also visible
// to an OTLP/Prometheus exporter wired to the registry's Meter, without
// requiring a collector to be present in tests.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Kind distinguishes the four metric primitives the registry supports.
type Kind int

const (
	KindCounter Kind = iota
	KindMeter
	KindHistogram
	KindDataList
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindMeter:
		return "meter"
	case KindHistogram:
		return "histogram"
	case KindDataList:
		return "data_list"
	default:
		return "unknown"
	}
}

type entry struct {
	kind  Kind
	value any // *Counter | *Meter | *Histogram | *DataList
}

// Registry is a single process-wide, thread-safe collection of named
// metrics. The zero value is not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	meter   metric.Meter
}

// New creates a registry backed by the given OTel meter. Pass
// otel.GetMeterProvider().Meter(name) in production, or
// noop.NewMeterProvider().Meter(name) in tests that don't care about
// OTel export.
func New(m metric.Meter) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		meter:   m,
	}
}

// ErrKindMismatch is returned when create_* is called against a name
// already registered under a different kind.
type ErrKindMismatch struct {
	Name     string
	Existing Kind
	Wanted   Kind
}

func (e *ErrKindMismatch) Error() string {
	return fmt.Sprintf("metric %q already registered as %s, cannot reuse as %s", e.Name, e.Existing, e.Wanted)
}

// CreateCounter returns the named counter, creating it on first use.
// Re-creating an existing name returns the same handle; creating it
// against a different kind is an error.
func (r *Registry) CreateCounter(name string) (*Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		if e.kind != KindCounter {
			return nil, &ErrKindMismatch{Name: name, Existing: e.kind, Wanted: KindCounter}
		}
		return e.value.(*Counter), nil
	}

	c := newCounter(name)
	if r.meter != nil {
		obs, err := r.meter.Int64ObservableCounter(name,
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(c.Value())
				return nil
			}))
		if err == nil {
			c.otelInstrument = obs
		}
	}
	r.entries[name] = &entry{kind: KindCounter, value: c}
	return c, nil
}

// CreateMeter returns the named meter, creating it on first use.
func (r *Registry) CreateMeter(name string) (*Meter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		if e.kind != KindMeter {
			return nil, &ErrKindMismatch{Name: name, Existing: e.kind, Wanted: KindMeter}
		}
		return e.value.(*Meter), nil
	}

	m := newMeter(name)
	if r.meter != nil {
		obs, err := r.meter.Float64ObservableGauge(name+"_rate_1m",
			metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
				o.Observe(m.Rate1())
				return nil
			}))
		if err == nil {
			m.otelInstrument = obs
		}
	}
	r.entries[name] = &entry{kind: KindMeter, value: m}
	return m, nil
}

// CreateHistogram returns the named histogram, creating it on first use
// with the default reservoir capacity.
func (r *Registry) CreateHistogram(name string) (*Histogram, error) {
	return r.CreateHistogramWithCapacity(name, DefaultReservoirCapacity)
}

// CreateHistogramWithCapacity is CreateHistogram with an explicit
// reservoir size, mostly useful for tests.
func (r *Registry) CreateHistogramWithCapacity(name string, capacity int) (*Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		if e.kind != KindHistogram {
			return nil, &ErrKindMismatch{Name: name, Existing: e.kind, Wanted: KindHistogram}
		}
		return e.value.(*Histogram), nil
	}

	h := newHistogram(name, capacity)
	if r.meter != nil {
		if inst, err := r.meter.Float64Histogram(name); err == nil {
			h.otelInstrument = inst
		}
	}
	r.entries[name] = &entry{kind: KindHistogram, value: h}
	return h, nil
}

// CreateDataList returns the named data-list, creating it on first use.
func (r *Registry) CreateDataList(name string) (*DataList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		if e.kind != KindDataList {
			return nil, &ErrKindMismatch{Name: name, Existing: e.kind, Wanted: KindDataList}
		}
		return e.value.(*DataList), nil
	}

	d := newDataList(name)
	r.entries[name] = &entry{kind: KindDataList, value: d}
	return d, nil
}

// Report is the JSON-serializable shape returned by ReportMetrics.
type Report struct {
	Counters   map[string]int64          `json:"counters"`
	Meters     map[string]MeterReport    `json:"meters"`
	Histograms map[string]HistogramReport `json:"histograms"`
	DataLists  map[string][]float64      `json:"data_lists"`
}

// ReportMetrics renders a JSON snapshot of every registered metric. When
// clear is true, all counters, meters, and data-lists are reset to their
// initial state, and histogram reservoirs are cleared, atomically with
// respect to other reporters: the whole snapshot-and-clear runs under
// the registry's write lock so no metric update is observed twice or
// dropped between two concurrent reporters.
func (r *Registry) ReportMetrics(clear bool) (string, error) {
	snapshot := r.snapshot(clear)
	buf, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal metrics report: %w", err)
	}
	return string(buf), nil
}

func (r *Registry) snapshot(clear bool) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		Counters:   make(map[string]int64),
		Meters:     make(map[string]MeterReport),
		Histograms: make(map[string]HistogramReport),
		DataLists:  make(map[string][]float64),
	}

	for name, e := range r.entries {
		switch e.kind {
		case KindCounter:
			c := e.value.(*Counter)
			report.Counters[name] = c.Value()
			if clear {
				c.reset()
			}
		case KindMeter:
			m := e.value.(*Meter)
			report.Meters[name] = m.report()
			if clear {
				m.reset()
			}
		case KindHistogram:
			h := e.value.(*Histogram)
			report.Histograms[name] = h.report()
			if clear {
				h.reset()
			}
		case KindDataList:
			d := e.value.(*DataList)
			report.DataLists[name] = d.values()
			if clear {
				d.reset()
			}
		}
	}
	return report
}

// ResetAll clears every registered metric without producing a report.
// Exposed mainly for tests that want report_metrics(clear=true) followed
// immediately by report_metrics(clear=false) to observe an all-zero
// snapshot.
func (r *Registry) ResetAll() {
	_, _ = r.ReportMetrics(true)
}
