package registrar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/clipper-ml/clipper/internal/httpapi"
	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/query"
	"github.com/clipper-ml/clipper/internal/types"
	"github.com/clipper-ml/clipper/internal/worker"
	"github.com/clipper-ml/clipper/internal/zmqfrontend"
)

func newTestRegistrar(t *testing.T, dispatcher worker.Dispatcher) (*Registrar, *query.Processor, *zmqfrontend.Frontend) {
	t.Helper()
	reg := metrics.New(noop.NewMeterProvider().Meter("test"))
	policies := policy.NewRegistry(policy.DefaultOutputPolicy{})
	proc, err := query.New(reg, policies, dispatcher)
	require.NoError(t, err)

	httpSrv := httpapi.NewServer("127.0.0.1:0", reg, proc)
	zmqFront, err := zmqfrontend.New("127.0.0.1:0", "127.0.0.1:0", reg)
	require.NoError(t, err)

	r := New(nil, proc, httpSrv, zmqFront)
	return r, proc, zmqFront
}

func testApp() types.Application {
	return types.Application{
		Name:             "alpha",
		InputType:        types.InputTypeF64,
		Policy:           policy.DefaultOutputName,
		DefaultOutput:    7.0,
		LatencySLOMicros: 20000,
		CandidateModels:  []types.VersionedModelId{{Name: "alpha_model", Version: "1"}},
	}
}

func TestZMQDispatchFuncEnqueuesResponse(t *testing.T) {
	r, proc, zmqFront := newTestRegistrar(t, &worker.FakeDispatcher{Output: 42.0, Delay: time.Millisecond})
	app := testApp()
	require.NoError(t, proc.InitApplicationState(app))

	fn := r.zmqDispatchFunc(app)
	fn(zmqfrontend.FrontendRequest{
		ClientID:  5,
		RequestID: 9,
		Input:     types.InputTensor{Type: types.InputTypeF64, F64Data: []float64{1, 2, 3}},
		Lineage:   types.NewLineage(),
		ArenaSlot: -1,
	})

	require.Eventually(t, func() bool {
		return zmqFront.QueueDepthForTest() > 0
	}, time.Second, time.Millisecond)
}

func TestZMQDispatchFuncSkipsUnregisteredApplication(t *testing.T) {
	r, _, zmqFront := newTestRegistrar(t, &worker.FakeDispatcher{Output: 1})
	app := testApp() // never InitApplicationState'd

	fn := r.zmqDispatchFunc(app)
	fn(zmqfrontend.FrontendRequest{ClientID: 1, RequestID: 1, Lineage: types.NewLineage(), ArenaSlot: -1})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, zmqFront.QueueDepthForTest())
}

func TestZMQDispatchFuncReleasesArenaSlotOnPredictError(t *testing.T) {
	r, _, zmqFront := newTestRegistrar(t, &worker.FakeDispatcher{Output: 1})
	app := testApp() // never InitApplicationState'd, so Predict always errors

	slot, err := zmqFront.ReserveSlotForTest([]byte("payload"))
	require.NoError(t, err)
	require.True(t, zmqFront.SlotInUseForTest(slot))

	fn := r.zmqDispatchFunc(app)
	fn(zmqfrontend.FrontendRequest{ClientID: 1, RequestID: 1, Lineage: types.NewLineage(), ArenaSlot: slot})

	assert.False(t, zmqFront.SlotInUseForTest(slot))
}
