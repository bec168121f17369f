package zmqfrontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipper-ml/clipper/internal/types"
)

func TestRequestRoundTripF64(t *testing.T) {
	req := WireRequest{
		ClientID:  7,
		RequestID: 99,
		AppName:   "alpha",
		Input:     types.InputTensor{Type: types.InputTypeF64, F64Data: []float64{1.5, -2.25, 3}},
	}

	encoded := EncodeRequest(req)
	decoded, err := DecodeRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestRequestRoundTripString(t *testing.T) {
	req := WireRequest{
		ClientID:  1,
		RequestID: 2,
		AppName:   "beta",
		Input:     types.InputTensor{Type: types.InputTypeString, StrData: "hello world"},
	}

	encoded := EncodeRequest(req)
	decoded, err := DecodeRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestDecodeRequestShortPayloadErrors(t *testing.T) {
	_, err := DecodeRequest([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := WireResponse{
		RequestID: 42,
		Output:    3.14159,
		Lineage:   map[string]int64{"qp::dispatch": 100, "qp::response_received": 150},
	}

	encoded, err := EncodeResponse(resp)
	require.NoError(t, err)

	decoded, err := DecodeResponse(encoded)
	require.NoError(t, err)
	assert.Equal(t, resp.RequestID, decoded.RequestID)
	assert.InDelta(t, resp.Output, decoded.Output, 1e-9)
	assert.Equal(t, resp.Lineage, decoded.Lineage)
}
