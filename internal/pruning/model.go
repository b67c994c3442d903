package pruning

import (
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/metrics"
	"github.com/born-ml/sparsify/internal/sensitivity"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/utils/ptr"
)

// Option configures a ModelEvaluator.
type Option func(*ModelEvaluator)

// WithLogger sets the logger. The default discards.
func WithLogger(logger logr.Logger) Option {
	return func(m *ModelEvaluator) { m.logger = logger }
}

// WithRecorder sets the metrics recorder. The default records nothing.
func WithRecorder(r *metrics.Recorder) Option {
	return func(m *ModelEvaluator) { m.recorder = r }
}

// ModelEvaluator solves the layer sparsity assignment for one model.
//
// The node evaluators are static. The per-node settings are the mutable
// evaluation state, updated by EvalBaseline, EvalPruning and
// ApplyNodeOverrides. A ModelEvaluator is not safe for concurrent use.
type ModelEvaluator struct {
	nodes    []*NodeEvaluator
	index    map[string]int
	settings []NodeSetting

	perfRescaler sensitivity.Rescaler
	lossRescaler sensitivity.Rescaler
	baselineTime *float64

	logger   logr.Logger
	recorder *metrics.Recorder
}

// NewModelEvaluator builds one NodeEvaluator per prunable node of model, in
// document order, and the shared perf and loss rescalers. perf and loss may be nil.
func NewModelEvaluator(model *analysis.ModelAnalysis, perf *analysis.PerfAnalysis, loss *analysis.LossAnalysis, opts ...Option) (*ModelEvaluator, error) {
	if model == nil {
		return nil, errors.New("model analysis is required")
	}

	m := &ModelEvaluator{
		index:  make(map[string]int),
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, na := range model.PrunableNodes() {
		if _, dup := m.index[na.ID]; dup {
			return nil, fmt.Errorf("duplicate prunable node id %q", na.ID)
		}
		node, err := NewNodeEvaluator(na.ID, model, perf, loss)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", na.ID, err)
		}
		m.index[na.ID] = len(m.nodes)
		m.nodes = append(m.nodes, node)

		m.perfRescaler.AddSeries(node.AvailablePerf().Series)
		m.lossRescaler.AddSeries(node.AvailableLoss().Series)
	}
	m.settings = make([]NodeSetting, len(m.nodes))

	if perf != nil {
		m.baselineTime = perf.BaselineTime()
	}

	m.logger.V(1).Info("model evaluator ready", "nodes", len(m.nodes),
		"perfAnalysis", perf != nil, "lossAnalysis", loss != nil)
	return m, nil
}

// Nodes returns the node evaluators in model order.
func (m *ModelEvaluator) Nodes() []*NodeEvaluator {
	return append([]*NodeEvaluator(nil), m.nodes...)
}

// NodeSettings returns a copy of the per-node state, indexed like Nodes.
func (m *ModelEvaluator) NodeSettings() []NodeSetting {
	out := make([]NodeSetting, len(m.settings))
	for i, s := range m.settings {
		out[i] = NodeSetting{
			BaselineSparsity: copyPtr(s.BaselineSparsity),
			Sparsity:         copyPtr(s.Sparsity),
			Overridden:       s.Overridden,
		}
	}
	return out
}

// NodeSetting returns the state of the node with the given id.
func (m *ModelEvaluator) NodeSetting(id string) (NodeSetting, bool) {
	i, ok := m.index[id]
	if !ok {
		return NodeSetting{}, false
	}
	return m.NodeSettings()[i], true
}

// PerfRescaler returns the shared perf rescaler.
func (m *ModelEvaluator) PerfRescaler() *sensitivity.Rescaler { return &m.perfRescaler }

// LossRescaler returns the shared loss rescaler.
func (m *ModelEvaluator) LossRescaler() *sensitivity.Rescaler { return &m.lossRescaler }

// BaselineTime returns the whole-model baseline timing, or nil without perf data.
func (m *ModelEvaluator) BaselineTime() *float64 { return copyPtr(m.baselineTime) }

// EvalBaseline solves the assignment for loss only at sparsity and stores the
// result as every node's baseline sparsity.
func (m *ModelEvaluator) EvalBaseline(sparsity float64) {
	start := time.Now()
	result := m.optimizeSparsity(ptr.To(sparsity), 1, nil)
	for i := range m.settings {
		m.settings[i].BaselineSparsity = result[i]
	}
	m.observe(metrics.PhaseBaseline, start, result)
}

// EvalPruning solves the assignment for settings and stores it as every
// node's sparsity, clearing overrides.
func (m *ModelEvaluator) EvalPruning(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	start := time.Now()
	result := m.optimizeSparsity(settings.Sparsity, settings.BalancePerfLoss, &settings)
	for i := range m.settings {
		m.settings[i].Sparsity = result[i]
		m.settings[i].Overridden = false
	}
	m.observe(metrics.PhasePruning, start, result)
	return nil
}

// ApplyNodeOverrides pins nodes to the given sparsities, bypassing the
// optimizer and filters. No override is applied if any id is unknown.
func (m *ModelEvaluator) ApplyNodeOverrides(overrides []NodeOverride) error {
	for _, o := range overrides {
		if _, ok := m.index[o.NodeID]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, o.NodeID)
		}
	}
	for _, o := range overrides {
		i := m.index[o.NodeID]
		m.settings[i].Sparsity = copyPtr(o.Sparsity)
		m.settings[i].Overridden = true
	}
	if len(overrides) > 0 {
		m.logger.V(1).Info("applied node overrides", "count", len(overrides))
	}
	return nil
}

func (m *ModelEvaluator) observe(phase string, start time.Time, result []*float64) {
	assigned := 0
	for _, s := range result {
		if s != nil {
			assigned++
		}
	}
	elapsed := time.Since(start)
	m.recorder.ObservePhase(phase, elapsed)
	m.recorder.SetAssigned(phase, assigned)
	m.logger.V(1).Info("evaluation pass complete", "phase", phase,
		"nodes", len(result), "assigned", assigned, "elapsed", elapsed)
}

// ToDictValues renders the per-node records and the model aggregate.
func (m *ModelEvaluator) ToDictValues() ([]NodeValues, ModelValues) {
	start := time.Now()
	defer func() { m.recorder.ObservePhase(metrics.PhaseReport, time.Since(start)) }()

	nodes := make([]NodeValues, len(m.nodes))
	for i, node := range m.nodes {
		s := m.settings[i]
		nodes[i] = node.EvalValues(s.Sparsity, s.BaselineSparsity, s.Overridden)
	}
	return nodes, m.aggregate(nodes)
}

// Report returns ToDictValues as one document.
func (m *ModelEvaluator) Report() Report {
	nodes, model := m.ToDictValues()
	return Report{NodeValues: nodes, ModelValues: model}
}

func (m *ModelEvaluator) aggregate(nodes []NodeValues) ModelValues {
	var (
		recovery, lossSens, perfSens []float64
		paramsBase, params           []float64
		flopsBase, flops             []float64
		timeSaved                    []float64
	)
	for _, n := range nodes {
		recovery = appendSet(recovery, n.EstRecovery)
		lossSens = appendSet(lossSens, n.EstLossSensitivity)
		perfSens = appendSet(perfSens, n.EstPerfSensitivity)
		paramsBase = appendSet(paramsBase, n.ParamsBaseline)
		params = appendSet(params, n.Params)
		flopsBase = appendSet(flopsBase, n.FlopsBaseline)
		flops = appendSet(flops, n.Flops)
		if n.EstTimeBaseline != nil && n.EstTime != nil {
			timeSaved = append(timeSaved, *n.EstTimeBaseline-*n.EstTime)
		}
	}

	v := ModelValues{
		EstRecovery:        mean(recovery),
		EstLossSensitivity: mean(lossSens),
		EstPerfSensitivity: mean(perfSens),
		EstTimeBaseline:    copyPtr(m.baselineTime),
		ParamsBaseline:     floats.Sum(paramsBase),
		Params:             floats.Sum(params),
		FlopsBaseline:      floats.Sum(flopsBase),
		Flops:              floats.Sum(flops),
	}
	if m.baselineTime != nil {
		est := *m.baselineTime - floats.Sum(timeSaved)
		v.EstTime = ptr.To(est)
		v.EstTimeGain = ratio(*m.baselineTime, est)
	}
	v.Compression = ratio(v.ParamsBaseline, v.Params)
	v.FlopsGain = ratio(v.FlopsBaseline, v.Flops)
	return v
}

func appendSet(values []float64, v *float64) []float64 {
	if v == nil {
		return values
	}
	return append(values, *v)
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return ptr.To(stat.Mean(values, nil))
}

// ratio returns num/den, or nil when den is zero.
func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	return ptr.To(num / den)
}
