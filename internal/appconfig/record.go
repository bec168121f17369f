package appconfig

import (
	"fmt"
	"strconv"

	"github.com/clipper-ml/clipper/internal/types"
)

// ParseApplication converts the raw hash fields read from the
// configuration store into an Application record, validating each
// field the registrar depends on.
func ParseApplication(name string, fields map[string]string) (types.Application, error) {
	app := types.Application{Name: name}

	modelsStr, ok := fields["candidate_models"]
	if !ok {
		return app, fmt.Errorf("application %q missing candidate_models", name)
	}
	models, err := StrToModels(modelsStr)
	if err != nil {
		return app, fmt.Errorf("application %q: %w", name, err)
	}
	app.CandidateModels = models

	inputTypeStr, ok := fields["input_type"]
	if !ok {
		return app, fmt.Errorf("application %q missing input_type", name)
	}
	inputType, err := types.ParseInputType(inputTypeStr)
	if err != nil {
		return app, fmt.Errorf("application %q: %w", name, err)
	}
	app.InputType = inputType

	policy, ok := fields["policy"]
	if !ok || policy == "" {
		return app, fmt.Errorf("application %q missing policy", name)
	}
	app.Policy = policy

	defaultOutputStr, ok := fields["default_output"]
	if !ok {
		return app, fmt.Errorf("application %q missing default_output", name)
	}
	defaultOutput, err := strconv.ParseFloat(defaultOutputStr, 64)
	if err != nil {
		return app, fmt.Errorf("application %q: invalid default_output %q: %w", name, defaultOutputStr, err)
	}
	app.DefaultOutput = defaultOutput

	sloStr, ok := fields["latency_slo_micros"]
	if !ok {
		return app, fmt.Errorf("application %q missing latency_slo_micros", name)
	}
	slo, err := strconv.ParseInt(sloStr, 10, 64)
	if err != nil || slo <= 0 {
		return app, fmt.Errorf("application %q: invalid latency_slo_micros %q", name, sloStr)
	}
	app.LatencySLOMicros = slo

	return app, nil
}
