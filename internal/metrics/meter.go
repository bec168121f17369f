package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// tickInterval is the period on which exponentially-weighted moving
// averages are advanced.
const tickInterval = 5 * time.Second

// ewma is an exponentially-weighted moving average over a fixed window,
// in the style of the Unix load-average / Dropwizard Meter algorithm:
// rate is accumulated between ticks and decayed by alpha on each tick.
type ewma struct {
	alpha       float64
	uncounted   int64 // events since the last tick, added atomically
	rate        float64
	initialized bool
}

func newEWMA(windowMinutes float64) *ewma {
	alpha := 1 - math.Exp(-tickInterval.Seconds()/(windowMinutes*60))
	return &ewma{alpha: alpha}
}

func (e *ewma) update(n int64) {
	atomic.AddInt64(&e.uncounted, n)
}

// tick folds the uncounted events of the last interval into the rate.
// Must be called under the Meter's lock.
func (e *ewma) tick() {
	count := atomic.SwapInt64(&e.uncounted, 0)
	instantRate := float64(count) / tickInterval.Seconds()
	if e.initialized {
		e.rate += e.alpha * (instantRate - e.rate)
	} else {
		e.rate = instantRate
		e.initialized = true
	}
}

// ratePerSecond returns the current decayed rate. Must be called under
// the Meter's lock.
func (e *ewma) ratePerSecond() float64 {
	return e.rate
}

// Meter counts events and exposes rolling 1/5/15-minute rates, advanced
// by a background ticker goroutine that each meter starts when it is
// created.
type Meter struct {
	mu         sync.Mutex
	name       string
	count      int64
	startTime  time.Time
	m1, m5, m15 *ewma
	stopCh     chan struct{}

	otelInstrument metric.Float64Observable
}

func newMeter(name string) *Meter {
	m := &Meter{
		name:      name,
		startTime: time.Now(),
		m1:        newEWMA(1),
		m5:        newEWMA(5),
		m15:       newEWMA(15),
		stopCh:    make(chan struct{}),
	}
	go m.tickLoop()
	return m
}

func (m *Meter) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.m1.tick()
			m.m5.tick()
			m.m15.tick()
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

// Mark records n events (n=1 for a single event).
func (m *Meter) Mark(n int64) {
	atomic.AddInt64(&m.count, n)
	m.m1.update(n)
	m.m5.update(n)
	m.m15.update(n)
}

// Count returns the total number of events marked since creation or the
// last reset.
func (m *Meter) Count() int64 {
	return atomic.LoadInt64(&m.count)
}

// Rate1 returns the 1-minute exponentially-weighted moving average rate,
// in events per second.
func (m *Meter) Rate1() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m1.ratePerSecond()
}

// Rate5 returns the 5-minute rate.
func (m *Meter) Rate5() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m5.ratePerSecond()
}

// Rate15 returns the 15-minute rate.
func (m *Meter) Rate15() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m15.ratePerSecond()
}

// MeanRate returns the average rate over the meter's entire lifetime.
func (m *Meter) MeanRate() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.Count()) / elapsed
}

// MeterReport is the JSON shape of a reported meter.
type MeterReport struct {
	Count    int64   `json:"count"`
	MeanRate float64 `json:"mean_rate"`
	Rate1m   float64 `json:"rate_1m"`
	Rate5m   float64 `json:"rate_5m"`
	Rate15m  float64 `json:"rate_15m"`
}

func (m *Meter) report() MeterReport {
	m.mu.Lock()
	r := MeterReport{
		Count:    m.Count(),
		MeanRate: m.MeanRate(),
		Rate1m:   m.m1.ratePerSecond(),
		Rate5m:   m.m5.ratePerSecond(),
		Rate15m:  m.m15.ratePerSecond(),
	}
	m.mu.Unlock()
	return r
}

func (m *Meter) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.count, 0)
	m.startTime = time.Now()
	m.m1 = newEWMA(1)
	m.m5 = newEWMA(5)
	m.m15 = newEWMA(15)
}

// Stop halts the meter's background tick goroutine. Registries don't
// call this during normal operation (meters live for the process
// lifetime); it exists for tests that create many short-lived meters.
func (m *Meter) Stop() {
	close(m.stopCh)
}
