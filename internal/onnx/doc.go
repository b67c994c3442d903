// Package onnx decodes the structural parts of ONNX model files.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package decodes the protobuf wire format with google.golang.org/protobuf/encoding/protowire
// into hand-written message structs, without generated code. Only the fields needed to profile
// a network's layers are kept: graph nodes, attributes, initializers and tensor shapes.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, MatMul, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Tensor element type and static shape
//
// Example usage:
//
//	model, err := onnx.ParseFile("resnet50.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, node := range model.Graph.Nodes {
//	    fmt.Printf("Op: %s (type: %s)\n", node.Name, node.OpType)
//	}
package onnx
