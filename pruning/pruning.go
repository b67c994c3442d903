// Package pruning recommends per-layer sparsity for a neural network.
//
// The evaluator combines three analysis documents:
//
//   - a model structural analysis (params, flops, attributes per layer),
//     produced by onnx.Profile or any external tool
//   - an optional performance analysis (layer timings at several sparsities)
//   - an optional loss analysis (layer loss deltas at several sparsities)
//
// Missing performance data falls back to flops; missing loss data falls back
// to each layer's weight magnitude estimate.
//
// # Example Usage
//
//	model, _ := pruning.LoadModelAnalysis("model.json")
//	perf, _ := pruning.LoadPerfAnalysis("perf.json") // "" for none
//
//	eval, err := pruning.NewEvaluator(model, perf, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eval.EvalBaseline(0.85)
//
//	settings := pruning.DefaultSettings()
//	settings.Sparsity = ptr.To(0.85)
//	settings.FilterMinPerfGain = ptr.To(1.05)
//	if err := eval.EvalPruning(settings); err != nil {
//	    log.Fatal(err)
//	}
//
//	report := eval.Report()
//	for _, n := range report.NodeValues {
//	    fmt.Println(n.NodeID, n.Sparsity)
//	}
package pruning

import (
	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/metrics"
	internal "github.com/born-ml/sparsify/internal/pruning"
	"github.com/go-logr/logr"
)

// Evaluator solves the layer sparsity assignment for one model.
//
// This interface hides the internal implementation and allows for
// mocking in tests. Calls run in order: EvalBaseline, EvalPruning,
// ApplyNodeOverrides, then Report or ToDictValues. An Evaluator is not
// safe for concurrent use.
type Evaluator interface {
	// EvalBaseline computes the loss-only assignment at sparsity. It is the
	// reference for recovery estimates and filters.
	EvalBaseline(sparsity float64)

	// EvalPruning computes the balanced assignment for settings and clears
	// any overrides.
	EvalPruning(settings Settings) error

	// ApplyNodeOverrides pins nodes to fixed sparsities. Returns an error
	// wrapping ErrUnknownNode, and applies nothing, if any id is unknown.
	ApplyNodeOverrides(overrides []NodeOverride) error

	// NodeSettings returns the per-node state in model order.
	NodeSettings() []NodeSetting

	// ToDictValues renders the per-node records and the model aggregate.
	ToDictValues() ([]NodeValues, ModelValues)

	// Report returns ToDictValues as one document.
	Report() Report
}

// Settings is one pruning request.
type Settings = internal.Settings

// MaskType is the sparsity structure a request targets.
type MaskType = internal.MaskType

// Supported mask types.
const (
	MaskUnstructured = internal.MaskUnstructured
	MaskBlock4       = internal.MaskBlock4
	MaskChannel      = internal.MaskChannel
	MaskFilter       = internal.MaskFilter
)

// NodeSetting is the evaluation state of one node.
type NodeSetting = internal.NodeSetting

// NodeOverride pins a node to a sparsity.
type NodeOverride = internal.NodeOverride

// NodeValues is the per-node report record.
type NodeValues = internal.NodeValues

// ModelValues is the whole-model report record.
type ModelValues = internal.ModelValues

// Report is the evaluator output.
type Report = internal.Report

// SensitivitySample is a [sparsity, value] pair in a report.
type SensitivitySample = internal.SensitivitySample

// Option configures NewEvaluator.
type Option = internal.Option

// Analysis documents.
type (
	ModelAnalysis  = analysis.ModelAnalysis
	NodeAnalysis   = analysis.NodeAnalysis
	PerfAnalysis   = analysis.PerfAnalysis
	LossAnalysis   = analysis.LossAnalysis
	OpMeasurements = analysis.OpMeasurements
)

// Errors.
var (
	ErrNodeNotFound    = internal.ErrNodeNotFound
	ErrUnknownNode     = internal.ErrUnknownNode
	ErrInvalidSettings = internal.ErrInvalidSettings
)

// MaxNodeSparsity caps every node assignment.
const MaxNodeSparsity = internal.MaxNodeSparsity

// DefaultSettings returns an unstructured request with an even balance and no target.
func DefaultSettings() Settings {
	return internal.DefaultSettings()
}

// ParseMaskType validates a mask type name.
func ParseMaskType(name string) (MaskType, error) {
	return internal.ParseMaskType(name)
}

// WithLogger sets the evaluator logger.
func WithLogger(logger logr.Logger) Option {
	return internal.WithLogger(logger)
}

// WithRecorder records evaluation metrics into r.
func WithRecorder(r *metrics.Recorder) Option {
	return internal.WithRecorder(r)
}

// NewEvaluator builds an evaluator over the prunable nodes of model.
// perf and loss may be nil.
func NewEvaluator(model *ModelAnalysis, perf *PerfAnalysis, loss *LossAnalysis, opts ...Option) (Evaluator, error) {
	eval, err := internal.NewModelEvaluator(model, perf, loss, opts...)
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// LoadModelAnalysis reads a model analysis document (.json, .yaml or .yml).
func LoadModelAnalysis(path string) (*ModelAnalysis, error) {
	return analysis.LoadModelAnalysis(path)
}

// LoadPerfAnalysis reads a performance analysis document. An empty path returns nil.
func LoadPerfAnalysis(path string) (*PerfAnalysis, error) {
	return analysis.LoadPerfAnalysis(path)
}

// LoadLossAnalysis reads a loss analysis document. An empty path returns nil.
func LoadLossAnalysis(path string) (*LossAnalysis, error) {
	return analysis.LoadLossAnalysis(path)
}
