package query

import (
	"sync"

	"github.com/clipper-ml/clipper/internal/types"
)

// Future is a one-shot cell completed by whichever of two racers
// (a worker response, a deadline timer) fires first. A mutex-guarded
// done flag resolves the race; the loser's write is silently
// discarded.
type Future struct {
	mu        sync.Mutex
	done      bool
	value     types.Response
	listeners []func(types.Response)
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{}
}

// Complete resolves the future with value if it hasn't already been
// resolved. Returns true if this call was the one that won the race.
func (f *Future) Complete(value types.Response) bool {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return false
	}
	f.done = true
	f.value = value
	listeners := f.listeners
	f.listeners = nil
	f.mu.Unlock()

	for _, l := range listeners {
		l(value)
	}
	return true
}

// OnComplete attaches a continuation invoked exactly once, with the
// future's value, either immediately (if already resolved) or when
// Complete next wins the race. OnComplete never blocks the caller.
func (f *Future) OnComplete(cb func(types.Response)) {
	f.mu.Lock()
	if f.done {
		value := f.value
		f.mu.Unlock()
		cb(value)
		return
	}
	f.listeners = append(f.listeners, cb)
	f.mu.Unlock()
}
