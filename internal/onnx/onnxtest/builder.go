// Package onnxtest builds ONNX protobuf payloads for tests.
package onnxtest

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is an encoded protobuf message under construction.
type Message []byte

// Varint appends a varint field.
func (m Message) Varint(num int, v int64) Message {
	m = protowire.AppendTag(m, protowire.Number(num), protowire.VarintType)
	return protowire.AppendVarint(m, uint64(v)) //nolint:gosec // G115: two's complement, as protobuf does.
}

// String appends a string field.
func (m Message) String(num int, s string) Message {
	m = protowire.AppendTag(m, protowire.Number(num), protowire.BytesType)
	return protowire.AppendString(m, s)
}

// Bytes appends a bytes field.
func (m Message) Bytes(num int, b []byte) Message {
	m = protowire.AppendTag(m, protowire.Number(num), protowire.BytesType)
	return protowire.AppendBytes(m, b)
}

// Embed appends an embedded message field.
func (m Message) Embed(num int, sub Message) Message {
	return m.Bytes(num, sub)
}

// Float appends a fixed32 float field.
func (m Message) Float(num int, v float32) Message {
	m = protowire.AppendTag(m, protowire.Number(num), protowire.Fixed32Type)
	return protowire.AppendFixed32(m, math.Float32bits(v))
}

// PackedInts appends a packed repeated int64 field.
func (m Message) PackedInts(num int, vs ...int64) Message {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: see Varint.
	}
	return m.Bytes(num, packed)
}

// PackedFloats appends a packed repeated float field.
func (m Message) PackedFloats(num int, vs ...float32) Message {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return m.Bytes(num, packed)
}

// Attribute type codes mirrored from onnx.proto.
const (
	attrFloat  = 1
	attrInt    = 2
	attrString = 3
	attrInts   = 7
)

// IntAttr encodes an INT attribute.
func IntAttr(name string, v int64) Message {
	return Message{}.String(1, name).Varint(20, attrInt).Varint(3, v)
}

// IntsAttr encodes an INTS attribute.
func IntsAttr(name string, vs ...int64) Message {
	return Message{}.String(1, name).Varint(20, attrInts).PackedInts(8, vs...)
}

// FloatAttr encodes a FLOAT attribute.
func FloatAttr(name string, v float32) Message {
	return Message{}.String(1, name).Varint(20, attrFloat).Float(2, v)
}

// StringAttr encodes a STRING attribute.
func StringAttr(name, v string) Message {
	return Message{}.String(1, name).Varint(20, attrString).String(4, v)
}

// Node describes a graph node.
type Node struct {
	Name    string
	OpType  string
	Inputs  []string
	Outputs []string
	Attrs   []Message
}

func (n Node) encode() Message {
	var m Message
	for _, in := range n.Inputs {
		m = m.String(1, in)
	}
	for _, out := range n.Outputs {
		m = m.String(2, out)
	}
	if n.Name != "" {
		m = m.String(3, n.Name)
	}
	m = m.String(4, n.OpType)
	for _, a := range n.Attrs {
		m = m.Embed(5, a)
	}
	return m
}

// Graph accumulates a GraphProto.
type Graph struct {
	msg Message
}

// NewGraph starts a graph with the given name.
func NewGraph(name string) *Graph {
	return &Graph{msg: Message{}.String(2, name)}
}

// Node appends a node.
func (g *Graph) Node(n Node) *Graph {
	g.msg = g.msg.Embed(1, n.encode())
	return g
}

// Initializer appends a float32 initializer stored as raw_data.
func (g *Graph) Initializer(name string, dims []int64, values []float32) *Graph {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	t := Message{}.PackedInts(1, dims...).Varint(2, 1).String(8, name).Bytes(9, raw)
	g.msg = g.msg.Embed(5, t)
	return g
}

// ExternalInitializer appends a float32 initializer whose data lives outside the file.
func (g *Graph) ExternalInitializer(name string, dims []int64) *Graph {
	t := Message{}.PackedInts(1, dims...).Varint(2, 1).String(8, name).Varint(14, 1)
	g.msg = g.msg.Embed(5, t)
	return g
}

// Input appends a graph input. Negative dims are encoded as dynamic.
func (g *Graph) Input(name string, dims ...int64) *Graph {
	g.msg = g.msg.Embed(11, valueInfo(name, dims))
	return g
}

// Output appends a graph output.
func (g *Graph) Output(name string, dims ...int64) *Graph {
	g.msg = g.msg.Embed(12, valueInfo(name, dims))
	return g
}

// ValueInfo appends an intermediate tensor description.
func (g *Graph) ValueInfo(name string, dims ...int64) *Graph {
	g.msg = g.msg.Embed(13, valueInfo(name, dims))
	return g
}

// Model wraps the graph in a ModelProto with IR version 7 and opset 13.
func (g *Graph) Model() []byte {
	opset := Message{}.String(1, "").Varint(2, 13)
	return Message{}.
		Varint(1, 7).
		String(2, "onnxtest").
		Embed(8, opset).
		Embed(7, g.msg)
}

func valueInfo(name string, dims []int64) Message {
	var shape Message
	for _, d := range dims {
		var dim Message
		if d >= 0 {
			dim = dim.Varint(1, d)
		} else {
			dim = dim.String(2, "batch")
		}
		shape = shape.Embed(1, dim)
	}
	tensorType := Message{}.Varint(1, 1).Embed(2, shape)
	typ := Message{}.Embed(1, tensorType)
	return Message{}.String(1, name).Embed(2, typ)
}
