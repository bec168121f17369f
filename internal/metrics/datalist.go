package metrics

import "sync"

// DataList is an append-only, typed list of observations reported in
// full. Unlike a Histogram it never samples or drops entries, so it's
// only suitable for bounded-cardinality data such as small
// per-application diagnostic series, not per-request payloads.
//
// No OTel instrument models "an arbitrary append-only list of raw
// values" -- counters, gauges, and histograms all pre-aggregate. A
// plain mutex-guarded slice is the closest match for bounded
// diagnostic lists, so DataList stays on the standard library.
type DataList struct {
	mu   sync.Mutex
	name string
	data []float64
}

func newDataList(name string) *DataList {
	return &DataList{name: name}
}

// Append adds an observation to the list.
func (d *DataList) Append(v float64) {
	d.mu.Lock()
	d.data = append(d.data, v)
	d.mu.Unlock()
}

func (d *DataList) values() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.data...)
}

func (d *DataList) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = d.data[:0]
}
