// Package types holds the data model shared by the query processor and
// both frontends: applications, queries, input tensors, and responses.
package types

import "fmt"

// InputType identifies the primitive element type of an application's
// input tensors.
type InputType uint8

const (
	InputTypeF64 InputType = iota
	InputTypeF32
	InputTypeI32
	InputTypeByte
	InputTypeString
)

// String renders the input type the way it appears in configuration
// records and JSON payloads.
func (t InputType) String() string {
	switch t {
	case InputTypeF64:
		return "f64"
	case InputTypeF32:
		return "f32"
	case InputTypeI32:
		return "i32"
	case InputTypeByte:
		return "byte"
	case InputTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseInputType maps a configuration-store string to an InputType.
func ParseInputType(s string) (InputType, error) {
	switch s {
	case "f64", "double":
		return InputTypeF64, nil
	case "f32", "float":
		return InputTypeF32, nil
	case "i32", "int", "integer", "ints":
		return InputTypeI32, nil
	case "byte", "bytes":
		return InputTypeByte, nil
	case "string", "utf8-string", "strings":
		return InputTypeString, nil
	default:
		return 0, fmt.Errorf("unknown input type %q", s)
	}
}

// VersionedModelId identifies one candidate model replica.
type VersionedModelId struct {
	Name    string `json:"model_name"`
	Version string `json:"model_version"`
}

func (v VersionedModelId) String() string {
	return v.Name + ":" + v.Version
}

// Application is the configuration record for one registered endpoint.
type Application struct {
	Name              string
	CandidateModels   []VersionedModelId
	InputType         InputType
	Policy            string
	DefaultOutput     float64
	LatencySLOMicros  int64
}

// InputTensor is a typed, length-prefixed vector of primitives. Exactly
// one of the typed slices is populated, matching Type.
type InputTensor struct {
	Type    InputType
	F64Data []float64
	F32Data []float32
	I32Data []int32
	ByteData []byte
	StrData string
}

// Len returns the element count of the tensor, used for wire framing.
func (t InputTensor) Len() int {
	switch t.Type {
	case InputTypeF64:
		return len(t.F64Data)
	case InputTypeF32:
		return len(t.F32Data)
	case InputTypeI32:
		return len(t.I32Data)
	case InputTypeByte:
		return len(t.ByteData)
	case InputTypeString:
		return len(t.StrData)
	default:
		return 0
	}
}

// Lineage is a flat, ordered mapping of pipeline stage name to a
// timestamp in microseconds since the Unix epoch.
type Lineage struct {
	order  []string
	stamps map[string]int64
}

// NewLineage returns an empty lineage map.
func NewLineage() *Lineage {
	return &Lineage{stamps: make(map[string]int64)}
}

// Mark records the current stage's timestamp, appending it if the stage
// name hasn't been seen before and overwriting it otherwise.
func (l *Lineage) Mark(stage string, microsSinceEpoch int64) {
	if _, ok := l.stamps[stage]; !ok {
		l.order = append(l.order, stage)
	}
	l.stamps[stage] = microsSinceEpoch
}

// Map returns the lineage as an ordinary map, for JSON encoding.
func (l *Lineage) Map() map[string]int64 {
	out := make(map[string]int64, len(l.stamps))
	for k, v := range l.stamps {
		out[k] = v
	}
	return out
}

// StateKey identifies one selection-policy state entry.
type StateKey struct {
	Application string
	UserID      string
	Version     string
}

// DefaultUserID is the synthetic user used to seed policy state at
// application-registration time, before any real user has queried it.
const DefaultUserID = "default"

// Query is the ephemeral unit of work created on request arrival.
type Query struct {
	ID               uint64
	Application      string
	UserID           string
	Input            InputTensor
	DeadlineUnixNano int64
	Policy           string
	Candidates       []VersionedModelId
	Lineage          *Lineage
}

// Response is returned to the caller once a Query is resolved, either by
// a worker reply or by the deadline timer.
type Response struct {
	QueryID      uint64
	Output       float64
	UsedDefault  bool
	Lineage      map[string]int64
}

// FeedbackQuery carries a labeled observation back into the selection
// policy's state.
type FeedbackQuery struct {
	Application string
	UserID      string
	Version     string
	Label       float64
}

// FeedbackAck acknowledges that feedback was applied.
type FeedbackAck struct {
	Applied bool
}
