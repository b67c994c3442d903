package pruning

import (
	"fmt"

	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/sensitivity"
	"github.com/spf13/cast"
	"k8s.io/utils/ptr"
)

// ReferenceSparsities are the levels sampled for the per-node sensitivity lists.
var ReferenceSparsities = []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 0.95, 0.99}

// EvalSensitivitySparsity is the level at which est_*_sensitivity are reported.
const EvalSensitivitySparsity = 0.95

// SeriesSource tells whether a series was measured or synthesized.
type SeriesSource int

const (
	// SourceMeasured series come from a perf or loss analysis document.
	SourceMeasured SeriesSource = iota
	// SourceFallback series are structural proxies: flops for perf, the
	// equation sensitivity estimate for loss.
	SourceFallback
)

// String returns the source name.
func (s SeriesSource) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "measured"
}

// AvailableSeries is the series the optimizer uses for one metric.
type AvailableSeries struct {
	Source SeriesSource
	Series *sensitivity.Series
}

// NodeEvaluator holds the static series of one prunable node.
// It is immutable after construction.
type NodeEvaluator struct {
	node analysis.NodeAnalysis

	params       *sensitivity.Series
	flops        *sensitivity.Series
	perf         *sensitivity.Series // nil when no measured data
	loss         *sensitivity.Series // nil when no measured data
	lossEstimate *sensitivity.Series
}

// NewNodeEvaluator builds the series for nodeID. perf and loss may be nil.
func NewNodeEvaluator(nodeID string, model *analysis.ModelAnalysis, perf *analysis.PerfAnalysis, loss *analysis.LossAnalysis) (*NodeEvaluator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: %q (no model analysis)", ErrNodeNotFound, nodeID)
	}
	node, ok := model.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}

	n := &NodeEvaluator{node: *node}
	numParams := node.PrunableParams

	n.params = sensitivity.NewSeries(map[float64]float64{
		0: float64(node.Params),
		1: float64(node.Params - node.PrunableParams),
	}, 0, numParams, sensitivity.Decreasing)

	var flops map[float64]float64
	if node.Flops != 0 {
		flops = map[float64]float64{0: node.Flops, 1: 0}
	}
	n.flops = sensitivity.NewSeries(flops, 0, numParams, sensitivity.Decreasing)

	if perf != nil {
		if op, ok := perf.Op(nodeID); ok {
			s, err := measuredSeries(op, numParams, sensitivity.Decreasing)
			if err != nil {
				return nil, fmt.Errorf("perf analysis: %w", err)
			}
			n.perf = s
		}
	}
	if loss != nil {
		if op, ok := loss.Op(nodeID); ok {
			s, err := measuredSeries(op, numParams, sensitivity.Increasing)
			if err != nil {
				return nil, fmt.Errorf("loss analysis: %w", err)
			}
			n.loss = s
		}
	}

	n.lossEstimate = sensitivity.NewSeries(map[float64]float64{
		0: 0,
		1: node.PrunableEquationSensitivity,
	}, 0, numParams, sensitivity.Increasing)

	return n, nil
}

func measuredSeries(op *analysis.OpMeasurements, numParams int64, dir sensitivity.Direction) (*sensitivity.Series, error) {
	values, baseline, err := op.Parse()
	if err != nil {
		return nil, err
	}
	return sensitivity.NewSeries(values, baseline, numParams, dir), nil
}

// ID returns the node id.
func (n *NodeEvaluator) ID() string { return n.node.ID }

// Analysis returns the node's structural analysis.
func (n *NodeEvaluator) Analysis() analysis.NodeAnalysis { return n.node }

// NumParams returns the node's total parameter count.
func (n *NodeEvaluator) NumParams() int64 { return n.node.Params }

// NumPrunableParams returns the node's prunable parameter count.
func (n *NodeEvaluator) NumPrunableParams() int64 { return n.node.PrunableParams }

// NumFlops returns the node's flop count.
func (n *NodeEvaluator) NumFlops() float64 { return n.node.Flops }

// ParamsSeries returns the synthetic params series.
func (n *NodeEvaluator) ParamsSeries() *sensitivity.Series { return n.params }

// FlopsSeries returns the synthetic flops series.
func (n *NodeEvaluator) FlopsSeries() *sensitivity.Series { return n.flops }

// PerfSeries returns the measured perf series, or nil.
func (n *NodeEvaluator) PerfSeries() *sensitivity.Series { return n.perf }

// LossSeries returns the measured loss series, or nil.
func (n *NodeEvaluator) LossSeries() *sensitivity.Series { return n.loss }

// LossEstimateSeries returns the equation sensitivity estimate.
func (n *NodeEvaluator) LossEstimateSeries() *sensitivity.Series { return n.lossEstimate }

// AvailablePerf returns the measured perf series when it has data, else the flops series.
func (n *NodeEvaluator) AvailablePerf() AvailableSeries {
	if n.perf != nil && n.perf.HasData() {
		return AvailableSeries{Source: SourceMeasured, Series: n.perf}
	}
	return AvailableSeries{Source: SourceFallback, Series: n.flops}
}

// AvailableLoss returns the measured loss series when it has data, else the estimate.
func (n *NodeEvaluator) AvailableLoss() AvailableSeries {
	if n.loss != nil && n.loss.HasData() {
		return AvailableSeries{Source: SourceMeasured, Series: n.loss}
	}
	return AvailableSeries{Source: SourceFallback, Series: n.lossEstimate}
}

// StructurallyPruned reports a grouped convolution (group > 1).
func (n *NodeEvaluator) StructurallyPruned() bool {
	group, ok := n.node.Attributes["group"]
	if !ok {
		return false
	}
	g, err := cast.ToInt64E(group)
	return err == nil && g > 1
}

// Recovery scores how likely the node is to recover accuracy at sparsity,
// relative to its loss-only baseline sparsity. 1 means no added risk.
func (n *NodeEvaluator) Recovery(sparsity, baselineSparsity *float64) *float64 {
	loss := n.AvailableLoss().Series
	target := loss.EstimatedSensitivity(sparsity)
	baseline := loss.EstimatedSensitivity(baselineSparsity)

	if isFalsy(sparsity) || equalPtr(target, baseline) {
		return ptr.To(1.0)
	}
	if isFalsy(baselineSparsity) {
		return ptr.To(0.0)
	}
	if target == nil || baseline == nil || *baseline == 0 {
		return nil
	}
	return ptr.To((*baseline-*target)/(*baseline) + 1)
}

// OptimizationCosts combines the rescaled loss and perf cost curves as
// balance*loss + (1-balance)*perf. A missing component counts as 0; a point
// where both are missing has a nil cost.
func (n *NodeEvaluator) OptimizationCosts(balance float64, perfRescaler, lossRescaler *sensitivity.Rescaler) []sensitivity.CostPoint {
	perf := n.AvailablePerf()
	perfCosts := perf.Series.Costs(perfRescaler, perf.Source == SourceFallback)
	lossCosts := n.AvailableLoss().Series.Costs(lossRescaler, false)

	out := make([]sensitivity.CostPoint, len(perfCosts))
	for i := range out {
		out[i].Sparsity = perfCosts[i].Sparsity
		p, l := perfCosts[i].Cost, lossCosts[i].Cost
		if p == nil && l == nil {
			continue
		}
		out[i].Cost = ptr.To(balance*ptr.Deref(l, 0) + (1-balance)*ptr.Deref(p, 0))
	}
	return out
}

// EvalValues renders the report record for the node at sparsity.
func (n *NodeEvaluator) EvalValues(sparsity, baselineSparsity *float64, overridden bool) NodeValues {
	perf := n.AvailablePerf()
	loss := n.AvailableLoss()
	evalAt := ptr.To(EvalSensitivitySparsity)

	v := NodeValues{
		NodeID:             n.ID(),
		Sparsity:           copyPtr(sparsity),
		Overridden:         overridden,
		PerfSensitivities:  samples(perf.Series),
		LossSensitivities:  samples(loss.Series),
		EstRecovery:        n.Recovery(sparsity, baselineSparsity),
		EstLossSensitivity: loss.Series.EstimatedSensitivity(evalAt),
		EstPerfSensitivity: perf.Series.EstimatedSensitivity(evalAt),
		ParamsBaseline:     n.params.Baseline(),
		Params:             n.params.EstimatedValue(sparsity),
		Compression:        n.params.EstimatedGain(sparsity),
		FlopsBaseline:      n.flops.Baseline(),
		Flops:              n.flops.EstimatedValue(sparsity),
		FlopsGain:          n.flops.EstimatedGain(sparsity),
	}
	if perf.Source == SourceMeasured {
		v.EstTime = perf.Series.EstimatedValue(sparsity)
		v.EstTimeBaseline = perf.Series.Baseline()
		v.EstTimeGain = perf.Series.EstimatedGain(sparsity)
	}
	return v
}

func samples(s *sensitivity.Series) []SensitivitySample {
	out := make([]SensitivitySample, len(ReferenceSparsities))
	for i, sp := range ReferenceSparsities {
		out[i] = SensitivitySample{Sparsity: sp, Value: s.EstimatedSensitivity(ptr.To(sp))}
	}
	return out
}

func isFalsy(v *float64) bool {
	return v == nil || *v == 0
}

func equalPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr.To(*v)
}
