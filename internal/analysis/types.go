package analysis

import (
	"fmt"
	"strconv"

	"k8s.io/utils/ptr"
)

// ModelAnalysis is the structural analysis of a model.
type ModelAnalysis struct {
	Nodes []NodeAnalysis `json:"nodes" yaml:"nodes"`
}

// NodeAnalysis describes one node of the model graph.
type NodeAnalysis struct {
	ID                          string         `json:"id" yaml:"id"`
	OpType                      string         `json:"op_type,omitempty" yaml:"op_type,omitempty"`
	Prunable                    bool           `json:"prunable" yaml:"prunable"`
	Params                      int64          `json:"params" yaml:"params"`
	PrunableParams              int64          `json:"prunable_params" yaml:"prunable_params"`
	Flops                       float64        `json:"flops" yaml:"flops"`
	Attributes                  map[string]any `json:"attributes" yaml:"attributes"`
	PrunableEquationSensitivity float64        `json:"prunable_equation_sensitivity" yaml:"prunable_equation_sensitivity"`
}

// Node returns the node with the given id.
func (m *ModelAnalysis) Node(id string) (*NodeAnalysis, bool) {
	for i := range m.Nodes {
		if m.Nodes[i].ID == id {
			return &m.Nodes[i], true
		}
	}
	return nil, false
}

// PrunableNodes returns the prunable nodes in document order.
func (m *ModelAnalysis) PrunableNodes() []*NodeAnalysis {
	var out []*NodeAnalysis
	for i := range m.Nodes {
		if m.Nodes[i].Prunable {
			out = append(out, &m.Nodes[i])
		}
	}
	return out
}

// OpMeasurements is a sparsity -> value table for one op (or the whole model).
// Keys are sparsity levels rendered as strings, e.g. "0.0", "0.85".
type OpMeasurements struct {
	ID                     string             `json:"id,omitempty" yaml:"id,omitempty"`
	Measurements           map[string]float64 `json:"measurements" yaml:"measurements"`
	BaselineMeasurementKey string             `json:"baseline_measurement_key" yaml:"baseline_measurement_key"`
}

// Parse converts the string-keyed table to float keys and resolves the
// baseline key. An empty baseline key means 0.0.
func (o *OpMeasurements) Parse() (map[float64]float64, float64, error) {
	baseline := 0.0
	if o.BaselineMeasurementKey != "" {
		v, err := strconv.ParseFloat(o.BaselineMeasurementKey, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("op %q: invalid baseline_measurement_key %q: %w", o.ID, o.BaselineMeasurementKey, err)
		}
		baseline = v
	}

	if len(o.Measurements) == 0 {
		return nil, baseline, nil
	}
	out := make(map[float64]float64, len(o.Measurements))
	for key, value := range o.Measurements {
		sparsity, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("op %q: invalid measurement key %q: %w", o.ID, key, err)
		}
		out[sparsity] = value
	}
	return out, baseline, nil
}

// PerfAnalysis is the performance profile of a model.
type PerfAnalysis struct {
	Baseline PerfBaseline `json:"baseline" yaml:"baseline"`
	Pruning  PerfPruning  `json:"pruning" yaml:"pruning"`
}

// PerfBaseline holds the unpruned whole-model timing.
type PerfBaseline struct {
	Model ModelMeasurement `json:"model" yaml:"model"`
}

// ModelMeasurement is a single whole-model measurement.
type ModelMeasurement struct {
	Measurement *float64 `json:"measurement" yaml:"measurement"`
}

// PerfPruning holds the per-sparsity timing tables.
type PerfPruning struct {
	Model OpMeasurements   `json:"model" yaml:"model"`
	Ops   []OpMeasurements `json:"ops" yaml:"ops"`
}

// Op returns the timing table of the op with the given id.
func (p *PerfAnalysis) Op(id string) (*OpMeasurements, bool) {
	return findOp(p.Pruning.Ops, id)
}

// BaselineTime returns the whole-model baseline timing. It falls back to the
// baseline entry of the whole-model pruning table when no baseline run is recorded.
func (p *PerfAnalysis) BaselineTime() *float64 {
	if p.Baseline.Model.Measurement != nil {
		return ptr.To(*p.Baseline.Model.Measurement)
	}
	key := p.Pruning.Model.BaselineMeasurementKey
	if key == "" {
		key = "0.0"
	}
	if v, ok := p.Pruning.Model.Measurements[key]; ok {
		return ptr.To(v)
	}
	return nil
}

// LossAnalysis is the loss sensitivity profile of a model.
type LossAnalysis struct {
	Pruning LossPruning `json:"pruning" yaml:"pruning"`
}

// LossPruning holds the per-sparsity loss tables.
type LossPruning struct {
	Ops []OpMeasurements `json:"ops" yaml:"ops"`
}

// Op returns the loss table of the op with the given id.
func (l *LossAnalysis) Op(id string) (*OpMeasurements, bool) {
	return findOp(l.Pruning.Ops, id)
}

func findOp(ops []OpMeasurements, id string) (*OpMeasurements, bool) {
	for i := range ops {
		if ops[i].ID == id {
			return &ops[i], true
		}
	}
	return nil, false
}
