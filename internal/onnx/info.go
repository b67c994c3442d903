package onnx

import "sort"

// ModelInfo summarizes an ONNX model without profiling it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string // graph inputs that are not initializers
	OutputNames     []string
	NodeCount       int
	WeightCount     int
	WeightElements  int64
	OpTypes         map[string]int // op type -> node count
}

// Info extracts a ModelInfo from a parsed model.
func Info(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		OpTypes:         make(map[string]int),
	}

	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			info.OpsetVersion = opset.Version
			break
		}
	}

	g := proto.Graph
	if g == nil {
		return info
	}

	inits := g.InitializerMap()
	for i := range g.Inputs {
		if _, ok := inits[g.Inputs[i].Name]; !ok {
			info.InputNames = append(info.InputNames, g.Inputs[i].Name)
		}
	}
	for i := range g.Outputs {
		info.OutputNames = append(info.OutputNames, g.Outputs[i].Name)
	}
	for i := range g.Nodes {
		info.OpTypes[g.Nodes[i].OpType]++
	}
	for i := range g.Initializers {
		info.WeightElements += g.Initializers[i].NumElements()
	}
	info.NodeCount = len(g.Nodes)
	info.WeightCount = len(g.Initializers)
	return info
}

// GetModelInfo parses the file at path and summarizes it.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Info(proto), nil
}

// Operators returns the distinct op types, sorted.
func (m *ModelInfo) Operators() []string {
	ops := make([]string, 0, len(m.OpTypes))
	for op := range m.OpTypes {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
