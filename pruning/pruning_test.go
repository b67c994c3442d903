package pruning_test

import (
	"errors"
	"testing"

	"github.com/born-ml/sparsify/pruning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

// mockEvaluator implements pruning.Evaluator for testing callers.
type mockEvaluator struct {
	baseline  []float64
	overrides []pruning.NodeOverride
}

func (m *mockEvaluator) EvalBaseline(sparsity float64) { m.baseline = append(m.baseline, sparsity) }

func (m *mockEvaluator) EvalPruning(s pruning.Settings) error { return s.Validate() }

func (m *mockEvaluator) ApplyNodeOverrides(o []pruning.NodeOverride) error {
	m.overrides = append(m.overrides, o...)
	return nil
}

func (m *mockEvaluator) NodeSettings() []pruning.NodeSetting { return nil }

func (m *mockEvaluator) ToDictValues() ([]pruning.NodeValues, pruning.ModelValues) {
	return nil, pruning.ModelValues{}
}

func (m *mockEvaluator) Report() pruning.Report { return pruning.Report{} }

// TestEvaluatorInterface verifies that mockEvaluator implements pruning.Evaluator.
func TestEvaluatorInterface(_ *testing.T) {
	var _ pruning.Evaluator = &mockEvaluator{}
}

func model() *pruning.ModelAnalysis {
	return &pruning.ModelAnalysis{Nodes: []pruning.NodeAnalysis{
		{ID: "conv1", Prunable: true, Params: 1000, PrunableParams: 1000, Flops: 500, PrunableEquationSensitivity: 0.1},
		{ID: "fc1", Prunable: true, Params: 2000, PrunableParams: 2000, Flops: 500, PrunableEquationSensitivity: 0.5},
	}}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := pruning.NewEvaluator(model(), nil, nil)
	require.NoError(t, err)

	eval.EvalBaseline(0.5)
	s := pruning.DefaultSettings()
	s.Sparsity = ptr.To(0.5)
	require.NoError(t, eval.EvalPruning(s))

	report := eval.Report()
	require.Len(t, report.NodeValues, 2)
	assert.Nil(t, report.NodeValues[0].Sparsity)
	require.NotNil(t, report.NodeValues[1].Sparsity)
	assert.LessOrEqual(t, *report.NodeValues[1].Sparsity, pruning.MaxNodeSparsity)

	err = eval.ApplyNodeOverrides([]pruning.NodeOverride{{NodeID: "missing"}})
	assert.True(t, errors.Is(err, pruning.ErrUnknownNode))
}

func TestNewEvaluatorNilModel(t *testing.T) {
	eval, err := pruning.NewEvaluator(nil, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, eval)
}

func TestParseMaskType(t *testing.T) {
	mt, err := pruning.ParseMaskType("channel")
	require.NoError(t, err)
	assert.Equal(t, pruning.MaskChannel, mt)

	_, err = pruning.ParseMaskType("random")
	assert.ErrorIs(t, err, pruning.ErrInvalidSettings)
}

func TestLoadOptional(t *testing.T) {
	perf, err := pruning.LoadPerfAnalysis("")
	require.NoError(t, err)
	assert.Nil(t, perf)

	loss, err := pruning.LoadLossAnalysis("")
	require.NoError(t, err)
	assert.Nil(t, loss)
}
