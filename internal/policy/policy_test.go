package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipper-ml/clipper/internal/types"
)

func TestDefaultOutputPolicySelectsFirstCandidate(t *testing.T) {
	p := DefaultOutputPolicy{}
	state := p.InitState(7.0)

	candidates := []types.VersionedModelId{
		{Name: "resnet", Version: "1"},
		{Name: "resnet", Version: "2"},
	}
	picked, err := p.Select(state, candidates)
	require.NoError(t, err)
	assert.Equal(t, candidates[0], picked)
}

func TestDefaultOutputPolicyRejectsEmptyCandidates(t *testing.T) {
	p := DefaultOutputPolicy{}
	_, err := p.Select(p.InitState(1.0), nil)
	assert.Error(t, err)
}

func TestDefaultOutputPolicySerializeRoundTrips(t *testing.T) {
	p := DefaultOutputPolicy{}
	state := p.InitState(3.5)

	data, err := state.Serialize()
	require.NoError(t, err)

	restored, err := p.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, state, restored)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(DefaultOutputPolicy{})

	p, ok := r.Lookup(DefaultOutputName)
	assert.True(t, ok)
	assert.Equal(t, DefaultOutputName, p.Name())

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}
