package appconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipper-ml/clipper/internal/types"
)

func TestStrToModels(t *testing.T) {
	models, err := StrToModels("resnet:1,resnet:2")
	require.NoError(t, err)
	assert.Equal(t, []types.VersionedModelId{
		{Name: "resnet", Version: "1"},
		{Name: "resnet", Version: "2"},
	}, models)
}

func TestStrToModelsRejectsMalformedEntries(t *testing.T) {
	_, err := StrToModels("resnet")
	assert.Error(t, err)

	_, err = StrToModels("")
	assert.Error(t, err)
}

func TestParseApplication(t *testing.T) {
	fields := map[string]string{
		"candidate_models":   "alpha_model:1",
		"input_type":         "f64",
		"policy":             "default_output",
		"default_output":     "7.0",
		"latency_slo_micros": "20000",
	}

	app, err := ParseApplication("alpha", fields)
	require.NoError(t, err)
	assert.Equal(t, "alpha", app.Name)
	assert.Equal(t, types.InputTypeF64, app.InputType)
	assert.Equal(t, 7.0, app.DefaultOutput)
	assert.EqualValues(t, 20000, app.LatencySLOMicros)
	assert.Equal(t, "default_output", app.Policy)
}

func TestParseApplicationRejectsMissingFields(t *testing.T) {
	_, err := ParseApplication("alpha", map[string]string{
		"input_type":         "f64",
		"policy":             "default_output",
		"default_output":     "7.0",
		"latency_slo_micros": "20000",
	})
	assert.Error(t, err)
}

func TestParseApplicationRejectsBadLatency(t *testing.T) {
	_, err := ParseApplication("alpha", map[string]string{
		"candidate_models":   "m:1",
		"input_type":         "f64",
		"policy":             "default_output",
		"default_output":     "7.0",
		"latency_slo_micros": "not-a-number",
	})
	assert.Error(t, err)

	_, err = ParseApplication("alpha", map[string]string{
		"candidate_models":   "m:1",
		"input_type":         "f64",
		"policy":             "default_output",
		"default_output":     "7.0",
		"latency_slo_micros": "0",
	})
	assert.Error(t, err)
}
