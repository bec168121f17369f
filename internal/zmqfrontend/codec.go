// Wire codec for the ZMQ frontend's binary request/response framing.
// All multi-byte integers are little-endian.
package zmqfrontend

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/clipper-ml/clipper/internal/types"
)

// WireRequest is a decoded client -> frontend payload (identity frame
// and empty delimiter are stripped before reaching the codec).
type WireRequest struct {
	ClientID  uint32
	RequestID uint32
	AppName   string
	Input     types.InputTensor
}

// DecodeRequest parses the request payload's fixed frame layout:
// client_id, request_id, app_name_length+app_name, input_type_code,
// input_length, input_bytes.
func DecodeRequest(payload []byte) (WireRequest, error) {
	r := byteReader{buf: payload}

	clientID, err := r.uint32()
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode client_id: %w", err)
	}
	requestID, err := r.uint32()
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode request_id: %w", err)
	}
	appNameLen, err := r.uint32()
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode app_name_length: %w", err)
	}
	appName, err := r.bytes(int(appNameLen))
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode app_name: %w", err)
	}
	typeCode, err := r.uint8()
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode input_type_code: %w", err)
	}
	inputType := types.InputType(typeCode)
	inputLen, err := r.uint32()
	if err != nil {
		return WireRequest{}, fmt.Errorf("zmqfrontend: decode input_length: %w", err)
	}

	input, err := decodeTensor(&r, inputType, int(inputLen))
	if err != nil {
		return WireRequest{}, err
	}

	return WireRequest{
		ClientID:  clientID,
		RequestID: requestID,
		AppName:   string(appName),
		Input:     input,
	}, nil
}

func decodeTensor(r *byteReader, t types.InputType, n int) (types.InputTensor, error) {
	switch t {
	case types.InputTypeF64:
		data := make([]float64, n)
		for i := range data {
			bits, err := r.uint64()
			if err != nil {
				return types.InputTensor{}, fmt.Errorf("zmqfrontend: decode f64 element %d: %w", i, err)
			}
			data[i] = math.Float64frombits(bits)
		}
		return types.InputTensor{Type: t, F64Data: data}, nil
	case types.InputTypeF32:
		data := make([]float32, n)
		for i := range data {
			bits, err := r.uint32()
			if err != nil {
				return types.InputTensor{}, fmt.Errorf("zmqfrontend: decode f32 element %d: %w", i, err)
			}
			data[i] = math.Float32frombits(bits)
		}
		return types.InputTensor{Type: t, F32Data: data}, nil
	case types.InputTypeI32:
		data := make([]int32, n)
		for i := range data {
			v, err := r.uint32()
			if err != nil {
				return types.InputTensor{}, fmt.Errorf("zmqfrontend: decode i32 element %d: %w", i, err)
			}
			data[i] = int32(v)
		}
		return types.InputTensor{Type: t, I32Data: data}, nil
	case types.InputTypeByte:
		data, err := r.bytes(n)
		if err != nil {
			return types.InputTensor{}, fmt.Errorf("zmqfrontend: decode byte payload: %w", err)
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		return types.InputTensor{Type: t, ByteData: cp}, nil
	case types.InputTypeString:
		data, err := r.bytes(n)
		if err != nil {
			return types.InputTensor{}, fmt.Errorf("zmqfrontend: decode string payload: %w", err)
		}
		return types.InputTensor{Type: t, StrData: string(data)}, nil
	default:
		return types.InputTensor{}, fmt.Errorf("zmqfrontend: unknown input_type_code %d", t)
	}
}

// EncodeRequest is the inverse of DecodeRequest, used by tests and by
// any in-process client harness.
func EncodeRequest(req WireRequest) []byte {
	var w byteWriter
	w.uint32(req.ClientID)
	w.uint32(req.RequestID)
	w.uint32(uint32(len(req.AppName)))
	w.bytes([]byte(req.AppName))
	w.uint8(uint8(req.Input.Type))
	w.uint32(uint32(req.Input.Len()))
	encodeTensor(&w, req.Input)
	return w.buf
}

func encodeTensor(w *byteWriter, t types.InputTensor) {
	switch t.Type {
	case types.InputTypeF64:
		for _, v := range t.F64Data {
			w.uint64(math.Float64bits(v))
		}
	case types.InputTypeF32:
		for _, v := range t.F32Data {
			w.uint32(math.Float32bits(v))
		}
	case types.InputTypeI32:
		for _, v := range t.I32Data {
			w.uint32(uint32(v))
		}
	case types.InputTypeByte:
		w.bytes(t.ByteData)
	case types.InputTypeString:
		w.bytes([]byte(t.StrData))
	}
}

// WireResponse is the frontend -> client payload's fixed frame layout.
type WireResponse struct {
	RequestID uint32
	Output    float64
	Lineage   map[string]int64
}

// EncodeResponse renders the response frame: request_id,
// output_type_code (always f64 -- predictions are scalars),
// output_length+output_bytes, and a length-prefixed lineage JSON blob.
func EncodeResponse(resp WireResponse) ([]byte, error) {
	lineageJSON, err := json.Marshal(resp.Lineage)
	if err != nil {
		return nil, fmt.Errorf("zmqfrontend: encode lineage: %w", err)
	}

	var w byteWriter
	w.uint32(resp.RequestID)
	w.uint8(uint8(types.InputTypeF64))
	w.uint32(1)
	w.uint64(math.Float64bits(resp.Output))
	w.uint32(uint32(len(lineageJSON)))
	w.bytes(lineageJSON)
	return w.buf, nil
}

// DecodeResponse is the inverse of EncodeResponse, used by tests and
// any in-process client harness.
func DecodeResponse(payload []byte) (WireResponse, error) {
	r := byteReader{buf: payload}

	requestID, err := r.uint32()
	if err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode request_id: %w", err)
	}
	if _, err := r.uint8(); err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode output_type_code: %w", err)
	}
	outputLen, err := r.uint32()
	if err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode output_length: %w", err)
	}
	if outputLen != 1 {
		return WireResponse{}, fmt.Errorf("zmqfrontend: unexpected output_length %d", outputLen)
	}
	outputBits, err := r.uint64()
	if err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode output: %w", err)
	}
	lineageLen, err := r.uint32()
	if err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode lineage length: %w", err)
	}
	lineageBytes, err := r.bytes(int(lineageLen))
	if err != nil {
		return WireResponse{}, fmt.Errorf("zmqfrontend: decode lineage: %w", err)
	}
	var lineage map[string]int64
	if len(lineageBytes) > 0 {
		if err := json.Unmarshal(lineageBytes, &lineage); err != nil {
			return WireResponse{}, fmt.Errorf("zmqfrontend: parse lineage json: %w", err)
		}
	}

	return WireResponse{
		RequestID: requestID,
		Output:    math.Float64frombits(outputBits),
		Lineage:   lineage,
	}, nil
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("zmqfrontend: short read: want %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) uint8() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

type byteWriter struct {
	buf []byte
}

func (w *byteWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *byteWriter) uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *byteWriter) uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
