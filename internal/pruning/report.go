package pruning

import (
	"encoding/json"
	"fmt"
)

// SensitivitySample is a sensitivity value at a reference sparsity.
// It encodes as the pair [sparsity, value].
type SensitivitySample struct {
	Sparsity float64
	Value    *float64
}

// MarshalJSON encodes the sample as a two-element array.
func (s SensitivitySample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Sparsity, s.Value})
}

// UnmarshalJSON decodes a two-element array.
func (s *SensitivitySample) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 || pair[0] == nil {
		return fmt.Errorf("sensitivity sample: want [sparsity, value], got %s", data)
	}
	s.Sparsity, s.Value = *pair[0], pair[1]
	return nil
}

// MarshalYAML encodes the sample as a two-element sequence.
func (s SensitivitySample) MarshalYAML() (any, error) {
	return []any{s.Sparsity, s.Value}, nil
}

// NodeValues is the per-node report record.
type NodeValues struct {
	NodeID            string              `json:"node_id" yaml:"node_id"`
	Sparsity          *float64            `json:"sparsity" yaml:"sparsity"`
	Overridden        bool                `json:"overridden" yaml:"overridden"`
	PerfSensitivities []SensitivitySample `json:"perf_sensitivities" yaml:"perf_sensitivities"`
	LossSensitivities []SensitivitySample `json:"loss_sensitivities" yaml:"loss_sensitivities"`

	EstRecovery        *float64 `json:"est_recovery" yaml:"est_recovery"`
	EstLossSensitivity *float64 `json:"est_loss_sensitivity" yaml:"est_loss_sensitivity"`
	EstPerfSensitivity *float64 `json:"est_perf_sensitivity" yaml:"est_perf_sensitivity"`

	EstTime         *float64 `json:"est_time" yaml:"est_time"`
	EstTimeBaseline *float64 `json:"est_time_baseline" yaml:"est_time_baseline"`
	EstTimeGain     *float64 `json:"est_time_gain" yaml:"est_time_gain"`

	ParamsBaseline *float64 `json:"params_baseline" yaml:"params_baseline"`
	Params         *float64 `json:"params" yaml:"params"`
	Compression    *float64 `json:"compression" yaml:"compression"`

	FlopsBaseline *float64 `json:"flops_baseline" yaml:"flops_baseline"`
	Flops         *float64 `json:"flops" yaml:"flops"`
	FlopsGain     *float64 `json:"flops_gain" yaml:"flops_gain"`
}

// ModelValues aggregates NodeValues over the whole model.
type ModelValues struct {
	EstRecovery        *float64 `json:"est_recovery" yaml:"est_recovery"`
	EstLossSensitivity *float64 `json:"est_loss_sensitivity" yaml:"est_loss_sensitivity"`
	EstPerfSensitivity *float64 `json:"est_perf_sensitivity" yaml:"est_perf_sensitivity"`

	EstTime         *float64 `json:"est_time" yaml:"est_time"`
	EstTimeBaseline *float64 `json:"est_time_baseline" yaml:"est_time_baseline"`
	EstTimeGain     *float64 `json:"est_time_gain" yaml:"est_time_gain"`

	ParamsBaseline float64  `json:"params_baseline" yaml:"params_baseline"`
	Params         float64  `json:"params" yaml:"params"`
	Compression    *float64 `json:"compression" yaml:"compression"`

	FlopsBaseline float64  `json:"flops_baseline" yaml:"flops_baseline"`
	Flops         float64  `json:"flops" yaml:"flops"`
	FlopsGain     *float64 `json:"flops_gain" yaml:"flops_gain"`
}

// Report is the full evaluator output.
type Report struct {
	NodeValues  []NodeValues `json:"node_values" yaml:"node_values"`
	ModelValues ModelValues  `json:"model_values" yaml:"model_values"`
}
