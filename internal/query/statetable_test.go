package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/types"
)

func TestStateTablePutGet(t *testing.T) {
	st := NewStateTable()
	key := types.StateKey{Application: "alpha", UserID: "u1", Version: "0"}

	_, ok := st.Get(key)
	assert.False(t, ok)

	st.Put(key, policy.DefaultOutputState{DefaultOutput: 7})
	got, ok := st.Get(key)
	assert.True(t, ok)
	assert.Equal(t, policy.DefaultOutputState{DefaultOutput: 7}, got)
}

// counterState is a minimal policy.State used to exercise Update's
// per-key atomicity without depending on a real policy.
type counterState int

func (c counterState) Serialize() ([]byte, error) { return nil, nil }

func TestStateTableUpdateIsAtomicPerKeyUnderConcurrency(t *testing.T) {
	st := NewStateTable()
	key := types.StateKey{Application: "alpha", UserID: "u1", Version: "0"}
	st.Put(key, counterState(0))

	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			st.Update(key, func(s policy.State) policy.State {
				return s.(counterState) + 1
			})
		}()
	}
	wg.Wait()

	got, _ := st.Get(key)
	assert.Equal(t, counterState(n), got)
}
