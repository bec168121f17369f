package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/types"
	"github.com/clipper-ml/clipper/internal/worker"
)

func newTestProcessor(t *testing.T, dispatcher worker.Dispatcher) *Processor {
	t.Helper()
	reg := metrics.New(noop.NewMeterProvider().Meter("test"))
	policies := policy.NewRegistry(policy.DefaultOutputPolicy{})
	p, err := New(reg, policies, dispatcher)
	require.NoError(t, err)
	return p
}

func aliceQuery(app string, slo time.Duration) types.Query {
	return types.Query{
		Application:      app,
		UserID:           "u1",
		Input:            types.InputTensor{Type: types.InputTypeF64, F64Data: []float64{1, 2, 3}},
		DeadlineUnixNano: time.Now().Add(slo).UnixNano(),
		Policy:           policy.DefaultOutputName,
		Candidates:       []types.VersionedModelId{{Name: "alpha_model", Version: "1"}},
		Lineage:          types.NewLineage(),
	}
}

func TestPredictHappyPath(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{Output: 42.0, Delay: time.Millisecond})
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 7.0,
	}))

	future, err := p.Predict(context.Background(), aliceQuery("alpha", 50*time.Millisecond), 7.0)
	require.NoError(t, err)

	done := make(chan types.Response, 1)
	future.OnComplete(func(r types.Response) { done <- r })

	select {
	case r := <-done:
		assert.Equal(t, 42.0, r.Output)
		assert.False(t, r.UsedDefault)
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}
}

func TestPredictDeadlineMissReturnsDefault(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{Output: 42.0, Delay: 50 * time.Millisecond})
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 7.0,
	}))

	future, err := p.Predict(context.Background(), aliceQuery("alpha", 5*time.Millisecond), 7.0)
	require.NoError(t, err)

	done := make(chan types.Response, 1)
	future.OnComplete(func(r types.Response) { done <- r })

	select {
	case r := <-done:
		assert.Equal(t, 7.0, r.Output)
		assert.True(t, r.UsedDefault)
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}

	// The late worker response must produce no additional completion.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, done)
}

func TestPredictRejectsUnknownApplication(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{Output: 1})
	_, err := p.Predict(context.Background(), aliceQuery("never-registered", time.Second), 0)
	require.Error(t, err)
	var qpErr *Error
	assert.ErrorAs(t, err, &qpErr)
}

func TestPredictRejectsNoCandidates(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{Output: 1})
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 1.0,
	}))

	q := aliceQuery("alpha", time.Second)
	q.Candidates = nil
	_, err := p.Predict(context.Background(), q, 1.0)
	assert.Error(t, err)
}

func TestUpdateRequiresRegisteredApplication(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{})
	_, err := p.Update(types.FeedbackQuery{Application: "missing", UserID: "u1", Version: "0", Label: 1})
	assert.Error(t, err)
}

func TestInitApplicationStateIsIdempotent(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{Output: 1, Delay: 50 * time.Millisecond})
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 7.0,
	}))

	// Feed with a different default output; first-writer-wins means
	// the original 7.0 default must survive.
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 99.0,
	}))

	future, err := p.Predict(context.Background(), aliceQuery("alpha", 5*time.Millisecond), 99.0)
	require.NoError(t, err)
	done := make(chan types.Response, 1)
	future.OnComplete(func(r types.Response) { done <- r })

	select {
	case r := <-done:
		assert.Equal(t, 7.0, r.Output)
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}
}

func TestUpdateAcknowledges(t *testing.T) {
	p := newTestProcessor(t, &worker.FakeDispatcher{})
	require.NoError(t, p.InitApplicationState(types.Application{
		Name: "alpha", Policy: policy.DefaultOutputName, DefaultOutput: 1.0,
	}))

	ack, err := p.Update(types.FeedbackQuery{Application: "alpha", UserID: types.DefaultUserID, Version: "0", Label: 1})
	require.NoError(t, err)
	assert.True(t, ack.Applied)
}
