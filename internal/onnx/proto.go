package onnx

import (
	"encoding/binary"
	"math"
)

// ONNX protobuf data structures (hand-written, structural subset).

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64           // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID // Opset version(s)
	ProducerName    string          // Framework name (e.g., "pytorch", "tf")
	ProducerVersion string          // Framework version
	Domain          string          // Model domain
	ModelVersion    int64           // Model version number
	Graph           *GraphProto     // Computation graph
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes, in definition order
	Initializers []TensorProto    // Weight tensors
	Inputs       []ValueInfoProto // Graph inputs
	Outputs      []ValueInfoProto // Graph outputs
	ValueInfo    []ValueInfoProto // Intermediate tensor info
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string           // Node name (optional)
	OpType     string           // Operation type (e.g., "Conv", "MatMul", "Relu")
	Inputs     []string         // Input tensor names
	Outputs    []string         // Output tensor names
	Attributes []AttributeProto // Operation attributes
	Domain     string           // Custom domain (empty for default)
}

// TensorProto represents a weight/initializer tensor.
type TensorProto struct {
	Name         string    // Tensor name
	DataType     int32     // Element data type
	Dims         []int64   // Tensor shape
	RawData      []byte    // Raw little-endian data (most common)
	FloatData    []float32 // Float32 data (legacy)
	DoubleData   []float64 // Float64 data (legacy)
	DataLocation int32     // 0 = inline, 1 = external file
}

// ValueInfoProto describes a tensor's element type and static shape.
// Dynamic dimensions are recorded as -1.
type ValueInfoProto struct {
	Name     string
	ElemType int32
	Dims     []int64
}

// AttributeProto represents a node attribute.
type AttributeProto struct {
	Name    string    // Attribute name
	Type    int32     // Attribute type
	F       float32   // FLOAT value
	I       int64     // INT value
	S       []byte    // STRING value
	Floats  []float32 // FLOATS array
	Ints    []int64   // INTS array
	Strings [][]byte  // STRINGS array
}

// OperatorSetID identifies opset version.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for default)
	Version int64  // Opset version number
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1  // float32
	TensorProtoUint8     = 2  // uint8
	TensorProtoInt8      = 3  // int8
	TensorProtoInt32     = 6  // int32
	TensorProtoInt64     = 7  // int64
	TensorProtoFloat16   = 10 // float16
	TensorProtoDouble    = 11 // float64
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1 // FLOAT
	AttributeProtoInt       = 2 // INT
	AttributeProtoString    = 3 // STRING
	AttributeProtoTensor    = 4 // TENSOR
	AttributeProtoGraph     = 5 // GRAPH
	AttributeProtoFloats    = 6 // FLOATS
	AttributeProtoInts      = 7 // INTS
	AttributeProtoStrings   = 8 // STRINGS
)

// dataLocationExternal marks tensors whose data lives outside the model file.
const dataLocationExternal = 1

// NumElements returns the product of the tensor dims.
// A scalar (no dims) has one element.
func (t *TensorProto) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Float64s decodes the tensor values for float32/float64 tensors.
// Returns false when the tensor is stored externally, is of another type,
// or carries no inline data.
func (t *TensorProto) Float64s() ([]float64, bool) {
	if t.DataLocation == dataLocationExternal {
		return nil, false
	}

	switch t.DataType {
	case TensorProtoFloat:
		if len(t.RawData) > 0 {
			out := make([]float64, len(t.RawData)/4)
			for i := range out {
				out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.RawData[i*4:])))
			}
			return out, true
		}
		if len(t.FloatData) > 0 {
			out := make([]float64, len(t.FloatData))
			for i, v := range t.FloatData {
				out[i] = float64(v)
			}
			return out, true
		}
	case TensorProtoDouble:
		if len(t.RawData) > 0 {
			out := make([]float64, len(t.RawData)/8)
			for i := range out {
				out[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.RawData[i*8:]))
			}
			return out, true
		}
		if len(t.DoubleData) > 0 {
			return t.DoubleData, true
		}
	}
	return nil, false
}

// Value returns the attribute payload as a Go value selected by the attribute type:
// int64, float64, string, []int64, []float64 or []string. Tensor and graph
// attributes are not decoded and return nil.
func (a *AttributeProto) Value() any {
	switch a.Type {
	case AttributeProtoInt:
		return a.I
	case AttributeProtoFloat:
		return float64(a.F)
	case AttributeProtoString:
		return string(a.S)
	case AttributeProtoInts:
		return append([]int64(nil), a.Ints...)
	case AttributeProtoFloats:
		out := make([]float64, len(a.Floats))
		for i, f := range a.Floats {
			out[i] = float64(f)
		}
		return out
	case AttributeProtoStrings:
		out := make([]string, len(a.Strings))
		for i, s := range a.Strings {
			out[i] = string(s)
		}
		return out
	default:
		return nil
	}
}

// InitializerMap returns the graph initializers keyed by name.
func (g *GraphProto) InitializerMap() map[string]*TensorProto {
	out := make(map[string]*TensorProto, len(g.Initializers))
	for i := range g.Initializers {
		out[g.Initializers[i].Name] = &g.Initializers[i]
	}
	return out
}

// Shape returns the recorded dims of a named tensor, looking through
// value_info, outputs and inputs in that order.
func (g *GraphProto) Shape(name string) ([]int64, bool) {
	for _, infos := range [][]ValueInfoProto{g.ValueInfo, g.Outputs, g.Inputs} {
		for i := range infos {
			if infos[i].Name == name && len(infos[i].Dims) > 0 {
				return infos[i].Dims, true
			}
		}
	}
	return nil, false
}
