// Package policy defines the selection-policy contract used by the
// query processor to choose a candidate model and to fold feedback into
// per-key state.
package policy

import "github.com/clipper-ml/clipper/internal/types"

// State is an opaque, serializable value owned by a policy
// implementation. The processor never inspects it directly.
type State interface {
	// Serialize renders the state for storage in the state table.
	Serialize() ([]byte, error)
}

// Feedback is the label data passed to OnFeedback.
type Feedback struct {
	Label float64
}

// Policy is the contract every selection policy implements.
type Policy interface {
	// Name identifies this policy, matching the "policy" field of an
	// application record.
	Name() string

	// InitState builds the initial per-key state for a freshly
	// registered application, seeded from its configured default output.
	InitState(defaultOutput float64) State

	// Select picks one candidate model from the snapshot taken at query
	// arrival time.
	Select(state State, candidates []types.VersionedModelId) (types.VersionedModelId, error)

	// OnFeedback folds a labeled observation into state, returning the
	// (possibly new) state to store back.
	OnFeedback(state State, fb Feedback) State

	// Deserialize reconstructs a State from bytes previously produced by
	// Serialize.
	Deserialize(data []byte) (State, error)
}

// Registry maps policy names to implementations, looked up by the
// query processor using the name stored on each Application record.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry returns a registry seeded with the given policies.
func NewRegistry(policies ...Policy) *Registry {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		r.policies[p.Name()] = p
	}
	return r
}

// Lookup returns the named policy, or ok=false if unregistered.
func (r *Registry) Lookup(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}
