package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInputType(t *testing.T) {
	cases := map[string]InputType{
		"f64":    InputTypeF64,
		"double": InputTypeF64,
		"f32":    InputTypeF32,
		"i32":    InputTypeI32,
		"byte":   InputTypeByte,
		"string": InputTypeString,
	}
	for in, want := range cases {
		got, err := ParseInputType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseInputType("tensor3d")
	assert.Error(t, err)
}

func TestInputTensorLen(t *testing.T) {
	assert.Equal(t, 3, InputTensor{Type: InputTypeF64, F64Data: []float64{1, 2, 3}}.Len())
	assert.Equal(t, 2, InputTensor{Type: InputTypeI32, I32Data: []int32{1, 2}}.Len())
	assert.Equal(t, 5, InputTensor{Type: InputTypeString, StrData: "hello"}.Len())
}

func TestLineagePreservesInsertionOrder(t *testing.T) {
	l := NewLineage()
	l.Mark("driver::send", 100)
	l.Mark("qp::dispatch", 150)
	l.Mark("qp::response_received", 200)
	// Overwriting an existing stage must not duplicate it or move it.
	l.Mark("driver::send", 101)

	assert.Equal(t, []string{"driver::send", "qp::dispatch", "qp::response_received"}, l.order)
	m := l.Map()
	assert.Equal(t, int64(101), m["driver::send"])
	assert.Len(t, m, 3)
}
