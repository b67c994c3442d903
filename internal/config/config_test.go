package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/sparsify/internal/pruning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse(args))
	cfg, err := Load(fs)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "unstructured", cfg.Pruning.MaskType)
	assert.Equal(t, 0.5, cfg.Pruning.BalancePerfLoss)
	assert.Nil(t, cfg.Pruning.Sparsity)
	assert.Nil(t, cfg.Pruning.FilterMinPerfGain)
	assert.Nil(t, cfg.Pruning.EffectiveBaselineSparsity())
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Zero(t, cfg.Profile.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFlags(t *testing.T) {
	cfg := parse(t,
		"--model-analysis", "model.json",
		"--perf-analysis", "perf.yaml",
		"--sparsity", "0.8",
		"--balance", "0.25",
		"--filter-min-recovery", "0.9",
		"--format", "yaml",
		"--workers", "3",
	)

	assert.Equal(t, "model.json", cfg.Analysis.Model)
	assert.Equal(t, "perf.yaml", cfg.Analysis.Perf)
	assert.Empty(t, cfg.Analysis.Loss)
	assert.Equal(t, ptr.To(0.8), cfg.Pruning.Sparsity)
	assert.Equal(t, 0.25, cfg.Pruning.BalancePerfLoss)
	assert.Equal(t, ptr.To(0.9), cfg.Pruning.FilterMinRecovery)
	assert.Nil(t, cfg.Pruning.FilterMinSparsity, "unset flags stay nil")
	assert.Equal(t, ptr.To(0.8), cfg.Pruning.EffectiveBaselineSparsity())
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.Equal(t, 3, cfg.Profile.Workers)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SPARSIFY_PRUNING_SPARSITY", "0.5")
	t.Setenv("SPARSIFY_PRUNING_FILTER_MIN_PERF_GAIN", "1.2")
	t.Setenv("SPARSIFY_LOG_LEVEL", "debug")

	cfg := parse(t, "--sparsity", "0.7")
	assert.Equal(t, ptr.To(0.7), cfg.Pruning.Sparsity, "flags win over env")
	assert.Equal(t, ptr.To(1.2), cfg.Pruning.FilterMinPerfGain)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparsify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analysis:
  model: from-file.json
pruning:
  sparsity: 0.6
  baseline_sparsity: 0.9
  mask_type: block4
  node_overrides:
    - node_id: conv1
      sparsity: 0.3
    - node_id: fc
output:
  format: yaml
`), 0o600))

	cfg := parse(t, "--config", path, "--format", "json")
	assert.Equal(t, "from-file.json", cfg.Analysis.Model)
	assert.Equal(t, ptr.To(0.6), cfg.Pruning.Sparsity)
	assert.Equal(t, ptr.To(0.9), cfg.Pruning.EffectiveBaselineSparsity())
	assert.Equal(t, "json", cfg.Output.Format, "flags win over the file")
	require.Len(t, cfg.Pruning.NodeOverrides, 2)
	assert.Equal(t, pruning.NodeOverride{NodeID: "conv1", Sparsity: ptr.To(0.3)}, cfg.Pruning.NodeOverrides[0])
	assert.Equal(t, "fc", cfg.Pruning.NodeOverrides[1].NodeID)
	assert.Nil(t, cfg.Pruning.NodeOverrides[1].Sparsity)

	s, err := cfg.Pruning.Settings()
	require.NoError(t, err)
	assert.Equal(t, pruning.MaskBlock4, s.MaskType)
	assert.Equal(t, ptr.To(0.6), s.Sparsity)
}

func TestLoadMissingFile(t *testing.T) {
	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}))
	_, err := Load(fs)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "ok", args: []string{"--sparsity", "0.9"}},
		{name: "balance", args: []string{"--balance", "1.5"}, wantErr: true},
		{name: "sparsity", args: []string{"--sparsity", "-0.1"}, wantErr: true},
		{name: "baseline", args: []string{"--baseline-sparsity", "2"}, wantErr: true},
		{name: "mask", args: []string{"--mask-type", "diagonal"}, wantErr: true},
		{name: "format", args: []string{"--format", "xml"}, wantErr: true},
		{name: "log level", args: []string{"--log-level", "trace"}, wantErr: true},
		{name: "workers", args: []string{"--workers", "-2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parse(t, tt.args...).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSettingsError(t *testing.T) {
	err := parse(t, "--balance", "3").Validate()
	assert.ErrorIs(t, err, pruning.ErrInvalidSettings)
}
