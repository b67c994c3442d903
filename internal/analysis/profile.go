package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/sparsify/internal/onnx"
	"github.com/born-ml/sparsify/internal/parallel"
	"github.com/go-logr/logr"
)

// ErrNoGraph is returned when an ONNX model carries no graph.
var ErrNoGraph = errors.New("onnx model has no graph")

// prunableOps are the op types whose second input is a prunable weight.
var prunableOps = map[string]bool{
	"Conv":   true,
	"Gemm":   true,
	"MatMul": true,
}

// ProfileOptions configures FromONNX.
type ProfileOptions struct {
	// Parallel controls the weight magnitude reduction.
	Parallel parallel.Config
	// Logger receives per-node debug output. The zero value discards.
	Logger logr.Logger
}

// DefaultProfileOptions returns options using all CPUs.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{Parallel: parallel.DefaultConfig()}
}

// ProfileFile parses the ONNX model at path and profiles it.
func ProfileFile(path string, opts ProfileOptions) (*ModelAnalysis, error) {
	model, err := onnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return FromONNX(model, opts)
}

// FromONNX derives a structural analysis from a parsed ONNX model.
//
// Every graph node becomes one NodeAnalysis whose id is the node's first
// output name. Conv, Gemm and MatMul nodes whose weight (second input) is an
// initializer are prunable.
func FromONNX(model *onnx.ModelProto, opts ProfileOptions) (*ModelAnalysis, error) {
	if model == nil || model.Graph == nil {
		return nil, ErrNoGraph
	}
	graph := model.Graph
	inits := graph.InitializerMap()

	out := &ModelAnalysis{Nodes: make([]NodeAnalysis, 0, len(graph.Nodes))}
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		na, err := profileNode(graph, node, inits, opts.Parallel)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, node.OpType, err)
		}
		opts.Logger.V(1).Info("profiled node", "id", na.ID, "op", na.OpType,
			"prunable", na.Prunable, "params", na.Params, "flops", na.Flops)
		out.Nodes = append(out.Nodes, na)
	}
	return out, nil
}

func profileNode(graph *onnx.GraphProto, node *onnx.NodeProto, inits map[string]*onnx.TensorProto, cfg parallel.Config) (NodeAnalysis, error) {
	na := NodeAnalysis{
		ID:         nodeID(node),
		OpType:     node.OpType,
		Attributes: make(map[string]any, len(node.Attributes)),
	}
	if na.ID == "" {
		return na, errors.New("node has neither outputs nor a name")
	}

	for i := range node.Attributes {
		attr := &node.Attributes[i]
		if v := attr.Value(); v != nil {
			na.Attributes[attr.Name] = v
		}
	}

	for _, in := range node.Inputs {
		if t, ok := inits[in]; ok {
			na.Params += t.NumElements()
		}
	}

	if !prunableOps[node.OpType] || len(node.Inputs) < 2 {
		return na, nil
	}
	weight, ok := inits[node.Inputs[1]]
	if !ok {
		return na, nil
	}

	na.Prunable = true
	na.PrunableParams = weight.NumElements()
	na.Flops = 2 * float64(na.PrunableParams)
	if node.OpType == "Conv" && len(node.Outputs) > 0 {
		na.Flops *= float64(spatialSize(graph, node.Outputs[0]))
	}
	na.PrunableEquationSensitivity = meanMagnitude(weight, cfg)
	return na, nil
}

// nodeID names a node by its first output, falling back to the node name.
func nodeID(node *onnx.NodeProto) string {
	for _, out := range node.Outputs {
		if out != "" {
			return out
		}
	}
	return node.Name
}

// spatialSize is the product of the output dims after batch and channel.
// Unknown or dynamic shapes count as 1.
func spatialSize(graph *onnx.GraphProto, output string) int64 {
	dims, ok := graph.Shape(output)
	if !ok || len(dims) < 3 {
		return 1
	}
	size := int64(1)
	for _, d := range dims[2:] {
		if d <= 0 {
			return 1
		}
		size *= d
	}
	return size
}

// meanMagnitude is the mean absolute weight value, or 0 when the data is not inline.
func meanMagnitude(weight *onnx.TensorProto, cfg parallel.Config) float64 {
	values, ok := weight.Float64s()
	if !ok || len(values) == 0 {
		return 0
	}
	sum := parallel.Sum(len(values), func(i int) float64 {
		return math.Abs(values[i])
	}, cfg)
	return sum / float64(len(values))
}
