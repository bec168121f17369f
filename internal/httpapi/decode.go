package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/clipper-ml/clipper/internal/types"
)

// decodeInput parses the JSON "input" field into an InputTensor whose
// populated slice matches the application's configured input type. A
// JSON element of the wrong shape (e.g. a string where a number is
// expected) is a schema violation, reported as a processor-independent
// 400.
func decodeInput(raw json.RawMessage, inputType types.InputType) (types.InputTensor, error) {
	switch inputType {
	case types.InputTypeF64:
		var data []float64
		if err := json.Unmarshal(raw, &data); err != nil {
			return types.InputTensor{}, fmt.Errorf("input must be an array of numbers: %w", err)
		}
		return types.InputTensor{Type: inputType, F64Data: data}, nil
	case types.InputTypeF32:
		var data []float32
		if err := json.Unmarshal(raw, &data); err != nil {
			return types.InputTensor{}, fmt.Errorf("input must be an array of numbers: %w", err)
		}
		return types.InputTensor{Type: inputType, F32Data: data}, nil
	case types.InputTypeI32:
		var data []int32
		if err := json.Unmarshal(raw, &data); err != nil {
			return types.InputTensor{}, fmt.Errorf("input must be an array of integers: %w", err)
		}
		return types.InputTensor{Type: inputType, I32Data: data}, nil
	case types.InputTypeByte:
		var data []byte
		if err := json.Unmarshal(raw, &data); err != nil {
			return types.InputTensor{}, fmt.Errorf("input must be a base64 string: %w", err)
		}
		return types.InputTensor{Type: inputType, ByteData: data}, nil
	case types.InputTypeString:
		var data string
		if err := json.Unmarshal(raw, &data); err != nil {
			return types.InputTensor{}, fmt.Errorf("input must be a string: %w", err)
		}
		return types.InputTensor{Type: inputType, StrData: data}, nil
	default:
		return types.InputTensor{}, fmt.Errorf("unsupported input type %v", inputType)
	}
}
