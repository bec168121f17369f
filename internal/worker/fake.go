package worker

import (
	"context"
	"time"

	"github.com/clipper-ml/clipper/internal/types"
)

// FakeDispatcher is an in-memory Dispatcher used by tests and as
// clipperd's dispatcher: it replies with a fixed output
// after a configurable delay, without any real model container.
type FakeDispatcher struct {
	// Output is returned by every Dispatch call.
	Output float64
	// Delay is how long Dispatch waits before calling onResult.
	Delay time.Duration
	// Err, if set, is reported instead of Output.
	Err error
}

// Dispatch implements Dispatcher.
func (f *FakeDispatcher) Dispatch(ctx context.Context, _ types.VersionedModelId, _ types.InputTensor, onResult func(output float64, err error)) {
	go func() {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			onResult(f.Output, f.Err)
		}
	}()
}
