package policy

import (
	"encoding/json"
	"fmt"

	"github.com/clipper-ml/clipper/internal/types"
)

// DefaultOutputName is the policy name an application record must use
// to select DefaultOutputPolicy.
const DefaultOutputName = "default_output"

// DefaultOutputState holds solely the configured default value used on
// deadline miss.
type DefaultOutputState struct {
	DefaultOutput float64 `json:"default_output"`
}

// Serialize implements State.
func (s DefaultOutputState) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// DefaultOutputPolicy always picks the first candidate for selection;
// its state is solely the default output returned on a deadline miss.
type DefaultOutputPolicy struct{}

// Name implements Policy.
func (DefaultOutputPolicy) Name() string { return DefaultOutputName }

// InitState implements Policy.
func (DefaultOutputPolicy) InitState(defaultOutput float64) State {
	return DefaultOutputState{DefaultOutput: defaultOutput}
}

// Select implements Policy: pick first candidate.
func (DefaultOutputPolicy) Select(_ State, candidates []types.VersionedModelId) (types.VersionedModelId, error) {
	if len(candidates) == 0 {
		return types.VersionedModelId{}, fmt.Errorf("no candidate models available")
	}
	return candidates[0], nil
}

// OnFeedback implements Policy: the default-output policy is stateless
// with respect to feedback, so state is returned unchanged.
func (DefaultOutputPolicy) OnFeedback(state State, _ Feedback) State {
	return state
}

// Deserialize implements Policy.
func (DefaultOutputPolicy) Deserialize(data []byte) (State, error) {
	var s DefaultOutputState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserializing default-output state: %w", err)
	}
	return s, nil
}
