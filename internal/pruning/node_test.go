package pruning

import (
	"encoding/json"
	"testing"

	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/sensitivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

func singleNode(na analysis.NodeAnalysis) *analysis.ModelAnalysis {
	na.Prunable = true
	return &analysis.ModelAnalysis{Nodes: []analysis.NodeAnalysis{na}}
}

func TestNewNodeEvaluatorNotFound(t *testing.T) {
	_, err := NewNodeEvaluator("missing", singleNode(analysis.NodeAnalysis{ID: "a"}), nil, nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = NewNodeEvaluator("a", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNodeEvaluatorSeries(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{
		ID: "a", Params: 1200, PrunableParams: 1000, Flops: 400, PrunableEquationSensitivity: 0.3,
	})
	n, err := NewNodeEvaluator("a", model, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "a", n.ID())
	assert.Equal(t, int64(1200), n.NumParams())
	assert.Equal(t, int64(1000), n.NumPrunableParams())
	assert.Equal(t, 400.0, n.NumFlops())

	assert.Equal(t, 1200.0, *n.ParamsSeries().Baseline())
	assert.InDelta(t, 700.0, *n.ParamsSeries().EstimatedValue(ptr.To(0.5)), 1e-9)
	assert.InDelta(t, 200.0, *n.FlopsSeries().EstimatedValue(ptr.To(0.5)), 1e-9)
	assert.Nil(t, n.PerfSeries())
	assert.Nil(t, n.LossSeries())
	assert.InDelta(t, 0.15, *n.LossEstimateSeries().EstimatedSensitivity(ptr.To(0.5)), 1e-9)

	perf := n.AvailablePerf()
	assert.Equal(t, SourceFallback, perf.Source)
	assert.Same(t, n.FlopsSeries(), perf.Series)

	loss := n.AvailableLoss()
	assert.Equal(t, SourceFallback, loss.Source)
	assert.Same(t, n.LossEstimateSeries(), loss.Series)
}

func TestNodeEvaluatorZeroFlops(t *testing.T) {
	n, err := NewNodeEvaluator("a", singleNode(analysis.NodeAnalysis{ID: "a", Params: 10, PrunableParams: 10}), nil, nil)
	require.NoError(t, err)
	assert.False(t, n.FlopsSeries().HasData())

	v := n.EvalValues(ptr.To(0.5), nil, false)
	assert.Nil(t, v.Flops)
	assert.Nil(t, v.FlopsGain)
	assert.Nil(t, v.EstPerfSensitivity)
}

func TestNodeEvaluatorMeasured(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{ID: "a", Params: 100, PrunableParams: 100, Flops: 50})
	perf := &analysis.PerfAnalysis{Pruning: analysis.PerfPruning{Ops: []analysis.OpMeasurements{
		{ID: "a", Measurements: map[string]float64{"0.0": 4, "0.5": 3, "0.9": 2}, BaselineMeasurementKey: "0.0"},
	}}}
	loss := &analysis.LossAnalysis{Pruning: analysis.LossPruning{Ops: []analysis.OpMeasurements{
		{ID: "a", Measurements: map[string]float64{"0.0": 0, "0.5": 0.1, "0.9": 0.5}, BaselineMeasurementKey: "0.0"},
	}}}

	n, err := NewNodeEvaluator("a", model, perf, loss)
	require.NoError(t, err)
	assert.Equal(t, SourceMeasured, n.AvailablePerf().Source)
	assert.Equal(t, SourceMeasured, n.AvailableLoss().Source)

	v := n.EvalValues(ptr.To(0.5), ptr.To(0.5), false)
	assert.Equal(t, 3.0, *v.EstTime)
	assert.Equal(t, 4.0, *v.EstTimeBaseline)
	assert.InDelta(t, 4.0/3.0, *v.EstTimeGain, 1e-9)
	assert.Equal(t, 1.0, *v.EstRecovery)
}

func TestNodeEvaluatorMissingEntryFallsBack(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{ID: "a", Params: 100, PrunableParams: 100, Flops: 50})
	perf := &analysis.PerfAnalysis{Pruning: analysis.PerfPruning{Ops: []analysis.OpMeasurements{
		{ID: "other", Measurements: map[string]float64{"0.0": 4}},
	}}}
	loss := &analysis.LossAnalysis{}

	n, err := NewNodeEvaluator("a", model, perf, loss)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, n.AvailablePerf().Source)
	assert.Equal(t, SourceFallback, n.AvailableLoss().Source)
	assert.Nil(t, n.EvalValues(ptr.To(0.5), nil, false).EstTime)
}

func TestNodeEvaluatorBadMeasurements(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{ID: "a"})
	loss := &analysis.LossAnalysis{Pruning: analysis.LossPruning{Ops: []analysis.OpMeasurements{
		{ID: "a", Measurements: map[string]float64{"half": 1}},
	}}}
	_, err := NewNodeEvaluator("a", model, nil, loss)
	assert.Error(t, err)
}

func TestStructurallyPruned(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  bool
	}{
		{"no attributes", nil, false},
		{"group 1 from onnx", map[string]any{"group": int64(1)}, false},
		{"group 2 from json", map[string]any{"group": float64(2)}, true},
		{"group 32 from yaml", map[string]any{"group": 32}, true},
		{"group as string", map[string]any{"group": "4"}, true},
		{"unparseable group", map[string]any{"group": "depthwise"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNodeEvaluator("a", singleNode(analysis.NodeAnalysis{ID: "a", Attributes: tt.attrs}), nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.StructurallyPruned())
		})
	}
}

func TestRecovery(t *testing.T) {
	n, err := NewNodeEvaluator("a", singleNode(analysis.NodeAnalysis{
		ID: "a", Params: 100, PrunableParams: 100, PrunableEquationSensitivity: 0.5,
	}), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, *n.Recovery(nil, ptr.To(0.3)))
	assert.Equal(t, 1.0, *n.Recovery(ptr.To(0.0), ptr.To(0.3)))
	assert.Equal(t, 0.0, *n.Recovery(ptr.To(0.5), nil))
	assert.Equal(t, 0.0, *n.Recovery(ptr.To(0.5), ptr.To(0.0)))
	assert.Equal(t, 1.0, *n.Recovery(ptr.To(0.5), ptr.To(0.5)))
	assert.InDelta(t, 1.5, *n.Recovery(ptr.To(0.4), ptr.To(0.8)), 1e-9)
	assert.InDelta(t, 0.0, *n.Recovery(ptr.To(0.8), ptr.To(0.4)), 1e-9)
}

func TestRecoveryZeroBaselineSensitivity(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{ID: "a", Params: 100, PrunableParams: 100})
	loss := &analysis.LossAnalysis{Pruning: analysis.LossPruning{Ops: []analysis.OpMeasurements{
		{ID: "a", Measurements: map[string]float64{"0.0": 0, "0.5": 0, "1.0": 1}},
	}}}
	n, err := NewNodeEvaluator("a", model, nil, loss)
	require.NoError(t, err)
	assert.Nil(t, n.Recovery(ptr.To(0.8), ptr.To(0.3)))
}

func TestOptimizationCosts(t *testing.T) {
	n, err := NewNodeEvaluator("a", singleNode(analysis.NodeAnalysis{
		ID: "a", Params: 100, PrunableParams: 100, Flops: 200, PrunableEquationSensitivity: 0.4,
	}), nil, nil)
	require.NoError(t, err)

	var perfR, lossR sensitivity.Rescaler
	perfR.AddSeries(n.AvailablePerf().Series)
	lossR.AddSeries(n.AvailableLoss().Series)

	// Perf is the flops fallback, so every perf cost is the rescaled maximum.
	perfOnly := n.OptimizationCosts(0, &perfR, &lossR)
	require.Len(t, perfOnly, sensitivity.CostSteps)
	for _, c := range perfOnly {
		assert.InDelta(t, 1.0, *c.Cost, 1e-12)
	}

	lossOnly := n.OptimizationCosts(1, &perfR, &lossR)
	assert.InDelta(t, 0.0, *lossOnly[0].Cost, 1e-12)
	assert.InDelta(t, 0.5, *lossOnly[50].Cost, 1e-12)

	mixed := n.OptimizationCosts(0.25, &perfR, &lossR)
	assert.InDelta(t, 0.25*0.5+0.75, *mixed[50].Cost, 1e-12)
}

func TestOptimizationCostsMeasuredPerfInterpolates(t *testing.T) {
	model := singleNode(analysis.NodeAnalysis{ID: "a", Params: 100, PrunableParams: 100, Flops: 200})
	perf := &analysis.PerfAnalysis{Pruning: analysis.PerfPruning{Ops: []analysis.OpMeasurements{
		{ID: "a", Measurements: map[string]float64{"0.0": 10, "1.0": 0}},
	}}}
	n, err := NewNodeEvaluator("a", model, perf, nil)
	require.NoError(t, err)

	var perfR, lossR sensitivity.Rescaler
	perfR.AddSeries(n.AvailablePerf().Series)
	lossR.AddSeries(n.AvailableLoss().Series)

	costs := n.OptimizationCosts(0, &perfR, &lossR)
	assert.InDelta(t, 0.0, *costs[0].Cost, 1e-12)
	assert.InDelta(t, 0.3, *costs[30].Cost, 1e-12)
}

func TestOptimizationCostsNoData(t *testing.T) {
	// No flops and a loss table without measurements.
	model := singleNode(analysis.NodeAnalysis{ID: "a", Params: 100, PrunableParams: 100})
	loss := &analysis.LossAnalysis{Pruning: analysis.LossPruning{Ops: []analysis.OpMeasurements{{ID: "a"}}}}
	n, err := NewNodeEvaluator("a", model, nil, loss)
	require.NoError(t, err)

	// The empty table falls back to the estimate, which always has data.
	assert.Equal(t, SourceFallback, n.AvailableLoss().Source)
	assert.Equal(t, SourceFallback, n.AvailablePerf().Source)
	assert.False(t, n.AvailablePerf().Series.HasData())
	costs := n.OptimizationCosts(0, &sensitivity.Rescaler{}, &sensitivity.Rescaler{})
	assert.NotNil(t, costs[len(costs)-1].Cost)
}

func TestEvalValuesSamples(t *testing.T) {
	n, err := NewNodeEvaluator("a", singleNode(analysis.NodeAnalysis{
		ID: "a", Params: 100, PrunableParams: 100, Flops: 200, PrunableEquationSensitivity: 0.5,
	}), nil, nil)
	require.NoError(t, err)

	v := n.EvalValues(ptr.To(0.5), ptr.To(0.5), true)
	assert.True(t, v.Overridden)
	require.Len(t, v.LossSensitivities, len(ReferenceSparsities))
	assert.Equal(t, 0.0, v.LossSensitivities[0].Sparsity)
	assert.Nil(t, v.LossSensitivities[0].Value)
	assert.InDelta(t, 0.1, *v.LossSensitivities[1].Value, 1e-12)
	assert.InDelta(t, 0.475, *v.EstLossSensitivity, 1e-12)
	assert.InDelta(t, 190.0, *v.EstPerfSensitivity, 1e-9)

	assert.Equal(t, 100.0, *v.ParamsBaseline)
	assert.InDelta(t, 50.0, *v.Params, 1e-9)
	assert.InDelta(t, 2.0, *v.Compression, 1e-9)
	assert.InDelta(t, 2.0, *v.FlopsGain, 1e-9)
	assert.Nil(t, v.EstTime)
}

func TestSensitivitySampleEncoding(t *testing.T) {
	samples := []SensitivitySample{{Sparsity: 0}, {Sparsity: 0.4, Value: ptr.To(0.1)}}

	data, err := json.Marshal(samples)
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,null],[0.4,0.1]]`, string(data))

	var back []SensitivitySample
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, samples, back)

	assert.Error(t, json.Unmarshal([]byte(`[[0.1]]`), &back))

	y, err := yaml.Marshal(samples)
	require.NoError(t, err)
	var generic [][]any
	require.NoError(t, yaml.Unmarshal(y, &generic))
	require.Len(t, generic, 2)
	assert.Equal(t, 0.4, generic[1][0])
	assert.Nil(t, generic[0][1])
}

func TestSeriesSourceString(t *testing.T) {
	assert.Equal(t, "measured", SourceMeasured.String())
	assert.Equal(t, "fallback", SourceFallback.String())
}
