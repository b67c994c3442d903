package pruning

import (
	"fmt"
	"math"
)

// MaskType is the sparsity structure a pruning plan targets.
// The evaluator records it but does not change behavior by mask.
type MaskType string

// Supported mask types.
const (
	MaskUnstructured MaskType = "unstructured"
	MaskBlock4       MaskType = "block4"
	MaskChannel      MaskType = "channel"
	MaskFilter       MaskType = "filter"
)

// ParseMaskType validates a mask type name. An empty name means unstructured.
func ParseMaskType(name string) (MaskType, error) {
	switch MaskType(name) {
	case "", MaskUnstructured:
		return MaskUnstructured, nil
	case MaskBlock4, MaskChannel, MaskFilter:
		return MaskType(name), nil
	default:
		return "", fmt.Errorf("%w: unknown mask type %q", ErrInvalidSettings, name)
	}
}

// Settings is one pruning request.
type Settings struct {
	MaskType MaskType
	// Sparsity is the target fraction of parameters to prune. Nil means no target.
	Sparsity *float64
	// BalancePerfLoss weights loss against performance: 0 optimizes
	// performance only, 1 optimizes loss only.
	BalancePerfLoss float64

	FilterMinSparsity *float64
	FilterMinPerfGain *float64
	FilterMinRecovery *float64
}

// DefaultSettings returns an unstructured request with an even balance and no target.
func DefaultSettings() Settings {
	return Settings{MaskType: MaskUnstructured, BalancePerfLoss: 0.5}
}

// Validate checks value ranges and the mask type.
func (s Settings) Validate() error {
	if _, err := ParseMaskType(string(s.MaskType)); err != nil {
		return err
	}
	if !inUnitRange(s.BalancePerfLoss) {
		return fmt.Errorf("%w: balance_perf_loss %v outside [0, 1]", ErrInvalidSettings, s.BalancePerfLoss)
	}
	if s.Sparsity != nil && !inUnitRange(*s.Sparsity) {
		return fmt.Errorf("%w: sparsity %v outside [0, 1]", ErrInvalidSettings, *s.Sparsity)
	}
	if s.FilterMinSparsity != nil && !inUnitRange(*s.FilterMinSparsity) {
		return fmt.Errorf("%w: filter_min_sparsity %v outside [0, 1]", ErrInvalidSettings, *s.FilterMinSparsity)
	}
	for name, v := range map[string]*float64{
		"filter_min_perf_gain": s.FilterMinPerfGain,
		"filter_min_recovery":  s.FilterMinRecovery,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidSettings, name)
		}
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// NodeSetting is the evaluation state of one node.
type NodeSetting struct {
	// BaselineSparsity is the loss-only assignment from EvalBaseline.
	BaselineSparsity *float64
	// Sparsity is the assignment from EvalPruning or an override.
	Sparsity   *float64
	Overridden bool
}

// NodeOverride pins one node to a sparsity. A nil Sparsity pins it to "not pruned".
type NodeOverride struct {
	NodeID   string   `json:"node_id" yaml:"node_id" mapstructure:"node_id"`
	Sparsity *float64 `json:"sparsity" yaml:"sparsity" mapstructure:"sparsity"`
}
