package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// field is the value side of one protobuf field. Handlers consume the value
// through one of the typed readers; fields left unread are skipped.
type field struct {
	num protowire.Number
	typ protowire.Type
	buf []byte
	n   int
}

// walk calls handle for every field of the message in b.
func walk(b []byte, handle func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := &field{num: num, typ: typ, buf: b}
		if err := handle(f); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if f.n == 0 {
			f.n = protowire.ConsumeFieldValue(num, typ, b)
			if f.n < 0 {
				return protowire.ParseError(f.n)
			}
		}
		b = b[f.n:]
	}
	return nil
}

var errWireType = errors.New("unexpected wire type")

func (f *field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, errWireType
	}
	v, n := protowire.ConsumeBytes(f.buf)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	f.n = n
	return v, nil
}

func (f *field) str() (string, error) {
	v, err := f.bytes()
	return string(v), err
}

func (f *field) varint() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, errWireType
	}
	v, n := protowire.ConsumeVarint(f.buf)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	f.n = n
	return int64(v), nil //nolint:gosec // G115: protobuf int64 fields are two's complement varints.
}

func (f *field) int32() (int32, error) {
	v, err := f.varint()
	return int32(v), err //nolint:gosec // G115: ONNX enum fields fit in int32.
}

func (f *field) float32() (float32, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, errWireType
	}
	v, n := protowire.ConsumeFixed32(f.buf)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	f.n = n
	return math.Float32frombits(v), nil
}

// message decodes an embedded message with read.
func (f *field) message(read func([]byte) error) error {
	data, err := f.bytes()
	if err != nil {
		return err
	}
	return read(data)
}

// int64s reads a repeated int64 field in packed or unpacked form.
func (f *field) int64s() ([]int64, error) {
	if f.typ == protowire.VarintType {
		v, err := f.varint()
		return []int64{v}, err
	}
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	var out []int64
	for len(data) > 0 {
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, int64(v)) //nolint:gosec // G115: see varint.
		data = data[n:]
	}
	return out, nil
}

// float32s reads a repeated float field in packed or unpacked form.
func (f *field) float32s() ([]float32, error) {
	if f.typ == protowire.Fixed32Type {
		v, err := f.float32()
		return []float32{v}, err
	}
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, len(data)/4)
	for len(data) > 0 {
		v, n := protowire.ConsumeFixed32(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float32frombits(v))
		data = data[n:]
	}
	return out, nil
}

// float64s reads a repeated double field in packed or unpacked form.
func (f *field) float64s() ([]float64, error) {
	if f.typ == protowire.Fixed64Type {
		v, n := protowire.ConsumeFixed64(f.buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		f.n = n
		return []float64{math.Float64frombits(v)}, nil
	}
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(data)/8)
	for len(data) > 0 {
		v, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float64frombits(v))
		data = data[n:]
	}
	return out, nil
}

// readModelProto reads ModelProto message.
func readModelProto(b []byte, m *ModelProto) error {
	return walk(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // ir_version
			m.IRVersion, err = f.varint()
		case 2: // producer_name
			m.ProducerName, err = f.str()
		case 3: // producer_version
			m.ProducerVersion, err = f.str()
		case 4: // domain
			m.Domain, err = f.str()
		case 5: // model_version
			m.ModelVersion, err = f.varint()
		case 7: // graph
			m.Graph = &GraphProto{}
			err = f.message(func(data []byte) error { return readGraphProto(data, m.Graph) })
		case 8: // opset_import
			var opset OperatorSetID
			err = f.message(func(data []byte) error { return readOperatorSetID(data, &opset) })
			m.OpsetImport = append(m.OpsetImport, opset)
		}
		return err
	})
}

// readGraphProto reads GraphProto message.
func readGraphProto(b []byte, m *GraphProto) error {
	return walk(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // node
			var node NodeProto
			err = f.message(func(data []byte) error { return readNodeProto(data, &node) })
			m.Nodes = append(m.Nodes, node)
		case 2: // name
			m.Name, err = f.str()
		case 5: // initializer
			var t TensorProto
			err = f.message(func(data []byte) error { return readTensorProto(data, &t) })
			m.Initializers = append(m.Initializers, t)
		case 11, 12, 13: // input, output, value_info
			var vi ValueInfoProto
			err = f.message(func(data []byte) error { return readValueInfoProto(data, &vi) })
			switch f.num {
			case 11:
				m.Inputs = append(m.Inputs, vi)
			case 12:
				m.Outputs = append(m.Outputs, vi)
			default:
				m.ValueInfo = append(m.ValueInfo, vi)
			}
		}
		return err
	})
}

// readNodeProto reads NodeProto message.
func readNodeProto(b []byte, m *NodeProto) error {
	return walk(b, func(f *field) error {
		var err error
		var s string
		switch f.num {
		case 1: // input
			s, err = f.str()
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			s, err = f.str()
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = f.str()
		case 4: // op_type
			m.OpType, err = f.str()
		case 5: // attribute
			var attr AttributeProto
			err = f.message(func(data []byte) error { return readAttributeProto(data, &attr) })
			m.Attributes = append(m.Attributes, attr)
		case 7: // domain
			m.Domain, err = f.str()
		}
		return err
	})
}

// readTensorProto reads TensorProto message.
func readTensorProto(b []byte, m *TensorProto) error {
	return walk(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // dims
			var dims []int64
			dims, err = f.int64s()
			m.Dims = append(m.Dims, dims...)
		case 2: // data_type
			m.DataType, err = f.int32()
		case 4: // float_data
			var vals []float32
			vals, err = f.float32s()
			m.FloatData = append(m.FloatData, vals...)
		case 8: // name
			m.Name, err = f.str()
		case 9: // raw_data
			m.RawData, err = f.bytes()
		case 10: // double_data
			var vals []float64
			vals, err = f.float64s()
			m.DoubleData = append(m.DoubleData, vals...)
		case 14: // data_location
			m.DataLocation, err = f.int32()
		}
		return err
	})
}

// readValueInfoProto reads ValueInfoProto, flattening TypeProto.tensor_type.
func readValueInfoProto(b []byte, m *ValueInfoProto) error {
	return walk(b, func(f *field) error {
		switch f.num {
		case 1: // name
			var err error
			m.Name, err = f.str()
			return err
		case 2: // type
			return f.message(func(data []byte) error { return readTypeProto(data, m) })
		}
		return nil
	})
}

// readTypeProto reads TypeProto and its tensor_type into m.
func readTypeProto(b []byte, m *ValueInfoProto) error {
	return walk(b, func(f *field) error {
		if f.num != 1 { // tensor_type
			return nil
		}
		return f.message(func(data []byte) error {
			return walk(data, func(tf *field) error {
				var err error
				switch tf.num {
				case 1: // elem_type
					m.ElemType, err = tf.int32()
				case 2: // shape
					err = tf.message(func(shape []byte) error { return readTensorShapeProto(shape, m) })
				}
				return err
			})
		})
	})
}

// readTensorShapeProto reads TensorShapeProto dims into m.
func readTensorShapeProto(b []byte, m *ValueInfoProto) error {
	return walk(b, func(f *field) error {
		if f.num != 1 { // dim
			return nil
		}
		dim := int64(-1)
		err := f.message(func(data []byte) error {
			return walk(data, func(df *field) error {
				if df.num != 1 { // dim_value; dim_param stays dynamic
					return nil
				}
				v, err := df.varint()
				if err == nil {
					dim = v
				}
				return err
			})
		})
		m.Dims = append(m.Dims, dim)
		return err
	})
}

// readAttributeProto reads AttributeProto message.
func readAttributeProto(b []byte, m *AttributeProto) error {
	return walk(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // name
			m.Name, err = f.str()
		case 2: // f
			m.F, err = f.float32()
		case 3: // i
			m.I, err = f.varint()
		case 4: // s
			m.S, err = f.bytes()
		case 7: // floats
			var vals []float32
			vals, err = f.float32s()
			m.Floats = append(m.Floats, vals...)
		case 8: // ints
			var vals []int64
			vals, err = f.int64s()
			m.Ints = append(m.Ints, vals...)
		case 9: // strings
			var s []byte
			s, err = f.bytes()
			m.Strings = append(m.Strings, s)
		case 20: // type
			m.Type, err = f.int32()
		}
		return err
	})
}

// readOperatorSetID reads OperatorSetID message.
func readOperatorSetID(b []byte, m *OperatorSetID) error {
	return walk(b, func(f *field) error {
		var err error
		switch f.num {
		case 1: // domain
			m.Domain, err = f.str()
		case 2: // version
			m.Version, err = f.varint()
		}
		return err
	})
}
