package query

import (
	"sync"

	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/types"
)

// StateTable is the concurrent map from StateKey to opaque
// selection-policy state. Put is last-writer-wins; Get never blocks a
// writer (sync.Map gives lock-free reads in the common case of a
// stable key set, which matches the read-heavy, append-mostly workload
// of per-user-per-model policy state).
type StateTable struct {
	m sync.Map // types.StateKey -> policy.State
}

// NewStateTable returns an empty state table.
func NewStateTable() *StateTable {
	return &StateTable{}
}

// Get returns the state stored for key, if any.
func (t *StateTable) Get(key types.StateKey) (policy.State, bool) {
	v, ok := t.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(policy.State), true
}

// Put stores state for key, overwriting any previous value.
func (t *StateTable) Put(key types.StateKey, state policy.State) {
	t.m.Store(key, state)
}

// Update performs a read-modify-write for key under per-key atomicity:
// fn is given the current state (or nil if absent) and returns the new
// state to store. Concurrent Updates for the *same* key are serialized
// via LoadOrStore + CompareAndSwap retry; Updates for different keys
// never block each other.
func (t *StateTable) Update(key types.StateKey, fn func(policy.State) policy.State) policy.State {
	for {
		old, loaded := t.m.Load(key)
		var oldState policy.State
		if loaded {
			oldState = old.(policy.State)
		}
		newState := fn(oldState)

		if !loaded {
			if actual, inserted := t.m.LoadOrStore(key, newState); !inserted {
				// Someone beat us to the first write; retry against what
				// they stored.
				_ = actual
				continue
			}
			return newState
		}

		if t.m.CompareAndSwap(key, old, newState) {
			return newState
		}
		// Lost the race to a concurrent updater; retry.
	}
}
