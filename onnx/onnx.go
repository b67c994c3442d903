// Package onnx reads the structure of ONNX (Open Neural Network Exchange) models
// for pruning analysis.
//
// Only the parts of the protobuf schema that describe structure are decoded:
// graph nodes, attributes, initializer shapes and data, and value shapes.
// The package does not run inference.
//
// # Example Usage
//
//	info, err := onnx.GetModelInfo("resnet18.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Opset:", info.OpsetVersion)
//	fmt.Println("Operators:", info.Operators())
//
//	// Derive the model analysis document used by the pruning evaluator.
//	doc, err := onnx.Profile("resnet18.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Prunable layers:", len(doc.PrunableNodes()))
//
// # Prunable Layers
//
// Conv, Gemm and MatMul nodes whose weight input is an initializer are
// reported as prunable. See [Profile] for how params and flops are counted.
package onnx

import (
	"github.com/born-ml/sparsify/internal/analysis"
	internalonnx "github.com/born-ml/sparsify/internal/onnx"
)

// ModelProto is a decoded ONNX model.
type ModelProto = internalonnx.ModelProto

// GraphProto is a decoded ONNX graph.
type GraphProto = internalonnx.GraphProto

// NodeProto is a decoded ONNX graph node.
type NodeProto = internalonnx.NodeProto

// ModelInfo summarizes a model. Use [GetModelInfo] to inspect a file.
type ModelInfo = internalonnx.ModelInfo

// ModelAnalysis is the structural analysis document produced by [Profile].
type ModelAnalysis = analysis.ModelAnalysis

// ProfileOptions configures [Profile].
type ProfileOptions = analysis.ProfileOptions

// DefaultProfileOptions returns options using one goroutine per CPU.
func DefaultProfileOptions() ProfileOptions {
	return analysis.DefaultProfileOptions()
}

// Parse decodes an ONNX model from raw bytes.
//
// This is useful when the model is embedded in the binary or loaded
// from a network source.
func Parse(data []byte) (*ModelProto, error) {
	return internalonnx.Parse(data)
}

// ParseFile decodes the ONNX model at path.
func ParseFile(path string) (*ModelProto, error) {
	return internalonnx.ParseFile(path)
}

// GetModelInfo extracts metadata from an ONNX file.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Producer: %s\n", info.ProducerName)
//	fmt.Printf("Inputs: %v\n", info.InputNames)
//	fmt.Printf("Weights: %d tensors, %d values\n", info.WeightCount, info.WeightElements)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// Profile parses the ONNX file at path and derives its structural analysis.
//
// For each graph node:
//   - id is the first output name
//   - params counts the elements of every initializer input
//   - prunable_params counts the weight elements of Conv, Gemm and MatMul
//   - flops is 2 x weight elements, times the output spatial size for Conv
//   - prunable_equation_sensitivity is the mean absolute weight
func Profile(path string, opts ...ProfileOptions) (*ModelAnalysis, error) {
	o := DefaultProfileOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return analysis.ProfileFile(path, o)
}

// ProfileModel derives the structural analysis of an already parsed model.
func ProfileModel(model *ModelProto, opts ...ProfileOptions) (*ModelAnalysis, error) {
	o := DefaultProfileOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return analysis.FromONNX(model, o)
}
