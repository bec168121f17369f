// Package query implements the Query Processor: per-query selection
// policy, deadline arithmetic, model dispatch, and default-output
// fallback.
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipper-ml/clipper/internal/metrics"
	"github.com/clipper-ml/clipper/internal/policy"
	"github.com/clipper-ml/clipper/internal/types"
	"github.com/clipper-ml/clipper/internal/worker"
)

// Error is raised for malformed dispatch state -- no candidate models,
// or an unknown selection policy. Deadline misses are never reported as
// errors; see Predict.
type Error struct {
	Cause string
}

func (e *Error) Error() string { return e.Cause }

// Processor is the Query Processor: it owns the state table and
// dispatches each query to the worker RPC path, racing the worker's
// response against a deadline timer.
type Processor struct {
	policies   *policy.Registry
	dispatcher worker.Dispatcher
	states     *StateTable
	nextID     atomic.Uint64

	appPoliciesMu sync.RWMutex
	appPolicies   map[string]policy.Policy

	queriesTotal   *metrics.Counter
	defaultsTotal  *metrics.Counter
	dispatchErrors *metrics.Counter
	latencyHist    *metrics.Histogram
}

// New constructs a Processor. policies must carry every policy name
// referenced by an Application record; dispatcher forwards requests to
// model workers.
func New(registry *metrics.Registry, policies *policy.Registry, dispatcher worker.Dispatcher) (*Processor, error) {
	queriesTotal, err := registry.CreateCounter("qp_queries_total")
	if err != nil {
		return nil, err
	}
	defaultsTotal, err := registry.CreateCounter("qp_default_responses_total")
	if err != nil {
		return nil, err
	}
	dispatchErrors, err := registry.CreateCounter("qp_dispatch_errors_total")
	if err != nil {
		return nil, err
	}
	latencyHist, err := registry.CreateHistogram("qp_end_to_end_latency_micros")
	if err != nil {
		return nil, err
	}

	return &Processor{
		policies:       policies,
		dispatcher:     dispatcher,
		states:         NewStateTable(),
		appPolicies:    make(map[string]policy.Policy),
		queriesTotal:   queriesTotal,
		defaultsTotal:  defaultsTotal,
		dispatchErrors: dispatchErrors,
		latencyHist:    latencyHist,
	}, nil
}

// StateTable exposes the concurrent (app, user, version) -> policy
// state map.
func (p *Processor) StateTable() *StateTable {
	return p.states
}

// InitApplicationState seeds state-table entries for a newly registered
// application under (name, default-user, "0") and remembers which
// policy owns that application's state. Idempotent: re-registering an
// already-known application name replaces neither its policy binding
// nor its seeded state (first-writer-wins).
func (p *Processor) InitApplicationState(app types.Application) error {
	pol, ok := p.policies.Lookup(app.Policy)
	if !ok {
		return &Error{Cause: fmt.Sprintf("unknown policy %q for application %q", app.Policy, app.Name)}
	}

	p.appPoliciesMu.Lock()
	if _, exists := p.appPolicies[app.Name]; exists {
		p.appPoliciesMu.Unlock()
		return nil
	}
	p.appPolicies[app.Name] = pol
	p.appPoliciesMu.Unlock()

	key := types.StateKey{Application: app.Name, UserID: types.DefaultUserID, Version: "0"}
	p.states.Put(key, pol.InitState(app.DefaultOutput))
	return nil
}

func (p *Processor) policyFor(app string) (policy.Policy, bool) {
	p.appPoliciesMu.RLock()
	defer p.appPoliciesMu.RUnlock()
	pol, ok := p.appPolicies[app]
	return pol, ok
}

func nowMicros() int64 {
	return time.Now().UnixNano() / int64(time.Microsecond)
}

// Predict assigns a fresh query id, selects a target model via the
// application's policy, dispatches to the worker RPC path with a
// deadline equal to now + latency_slo_micros, and arms a deadline timer
// that completes the future with the default output if the worker
// hasn't answered first. The first of worker-response and
// deadline-timer to fire wins; the loser's write is discarded by the
// Future. Predict never returns an error for a missed deadline -- only
// for malformed dispatch state.
func (p *Processor) Predict(ctx context.Context, q types.Query, defaultOutput float64) (*Future, error) {
	pol, ok := p.policyFor(q.Application)
	if !ok {
		p.dispatchErrors.Increment(1)
		return nil, &Error{Cause: fmt.Sprintf("unknown application %q", q.Application)}
	}
	if len(q.Candidates) == 0 {
		p.dispatchErrors.Increment(1)
		return nil, &Error{Cause: "no candidate models available"}
	}

	q.ID = p.nextID.Add(1)
	p.queriesTotal.Increment(1)

	key := types.StateKey{Application: q.Application, UserID: q.UserID, Version: "0"}
	state, ok := p.states.Get(key)
	if !ok {
		state = pol.InitState(defaultOutput)
		p.states.Put(key, state)
	}

	model, err := pol.Select(state, q.Candidates)
	if err != nil {
		p.dispatchErrors.Increment(1)
		return nil, &Error{Cause: err.Error()}
	}

	future := NewFuture()
	arrivalMicros := nowMicros()
	deadline := time.Unix(0, q.DeadlineUnixNano)
	q.Lineage.Mark("qp::dispatch", nowMicros())

	dispatchCtx, cancel := context.WithDeadline(ctx, deadline)

	p.dispatcher.Dispatch(dispatchCtx, model, q.Input, func(output float64, dispatchErr error) {
		if dispatchErr != nil {
			// A worker-reported error isn't a deadline miss; let the
			// deadline timer below produce the default response instead
			// of completing the future with a bogus prediction.
			p.dispatchErrors.Increment(1)
			return
		}
		q.Lineage.Mark("qp::response_received", nowMicros())
		won := future.Complete(types.Response{
			QueryID:     q.ID,
			Output:      output,
			UsedDefault: false,
			Lineage:     q.Lineage.Map(),
		})
		if won {
			p.latencyHist.Update(float64(nowMicros() - arrivalMicros))
		}
	})

	timer := time.AfterFunc(time.Until(deadline), func() {
		cancel()
		q.Lineage.Mark("qp::deadline_fired", nowMicros())
		won := future.Complete(types.Response{
			QueryID:     q.ID,
			Output:      defaultOutput,
			UsedDefault: true,
			Lineage:     q.Lineage.Map(),
		})
		if won {
			p.defaultsTotal.Increment(1)
			p.latencyHist.Update(float64(nowMicros() - arrivalMicros))
		}
	})
	future.OnComplete(func(types.Response) {
		timer.Stop()
		cancel()
	})

	return future, nil
}

// Update applies feedback to the selection-policy state for (app, user,
// version) via a read-modify-write under per-key atomicity.
func (p *Processor) Update(fb types.FeedbackQuery) (types.FeedbackAck, error) {
	pol, ok := p.policyFor(fb.Application)
	if !ok {
		return types.FeedbackAck{Applied: false}, &Error{Cause: fmt.Sprintf("unknown application %q", fb.Application)}
	}

	key := types.StateKey{Application: fb.Application, UserID: fb.UserID, Version: fb.Version}
	p.states.Update(key, func(s policy.State) policy.State {
		if s == nil {
			return s
		}
		return pol.OnFeedback(s, policy.Feedback{Label: fb.Label})
	})

	return types.FeedbackAck{Applied: true}, nil
}
