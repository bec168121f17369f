// Package worker defines the interface to the external model-RPC path.
// The wire format that real model-container workers speak is out of
// scope here; RPC is an injected collaborator so the query processor
// can be built and tested without one running.
package worker

import (
	"context"

	"github.com/clipper-ml/clipper/internal/types"
)

// Dispatcher forwards a query to one candidate model and reports its
// prediction asynchronously via onResult. onResult may be called after
// ctx's deadline has already passed -- the processor discards late
// results once its own deadline timer has already completed the future.
type Dispatcher interface {
	Dispatch(ctx context.Context, model types.VersionedModelId, input types.InputTensor, onResult func(output float64, err error))
}
