package zmqfrontend

import (
	"sync"

	"github.com/clipper-ml/clipper/internal/metrics"
)

// SoftCapacity is the response queue's soft cap: entries beyond this
// depth are still accepted (the queue never blocks a producer), but
// every enqueue past the cap marks the overflow meter so operators can
// see the send thread falling behind.
const SoftCapacity = 80000

// responseEntry is one outstanding response awaiting transmission by
// the send thread.
type responseEntry struct {
	clientID  uint32
	arenaSlot int
	payload   WireResponse
}

// responseQueue is an unbounded multi-producer/single-consumer queue.
// Producers are request-handler continuations running on arbitrary
// goroutines; the sole consumer is the send thread. A mutex-guarded
// slice gives the same "never blocks a producer" guarantee as a
// lock-free MPMC ring at the scale this frontend runs at, without
// hand-rolling CAS-based ring-buffer bookkeeping.
type responseQueue struct {
	mu      sync.Mutex
	entries []responseEntry

	overflow *metrics.Counter
}

func newResponseQueue(overflow *metrics.Counter) *responseQueue {
	return &responseQueue{overflow: overflow}
}

// push enqueues entry, never blocking. Marks the overflow meter once
// the backlog exceeds SoftCapacity.
func (q *responseQueue) push(e responseEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	if depth > SoftCapacity {
		q.overflow.Increment(1)
	}
}

// drain pops up to max entries in FIFO order.
func (q *responseQueue) drain(max int) []responseEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	n := max
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]responseEntry, n)
	copy(out, q.entries[:n])
	q.entries = q.entries[n:]
	return out
}

// depth reports the current backlog, for tests and diagnostics.
func (q *responseQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
