// Package config loads sparsify configuration.
//
// Sources, highest priority first:
//
//  1. Command-line flags that were set explicitly
//  2. SPARSIFY_* environment variables (SPARSIFY_PRUNING_SPARSITY=0.8)
//  3. The YAML file named by --config
//  4. Defaults
//
// Optional numeric settings (target sparsity, filters) stay nil unless one of
// the sources sets them.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/logging"
	"github.com/born-ml/sparsify/internal/pruning"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "SPARSIFY"

// Config is the full sparsify configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Pruning  PruningConfig  `mapstructure:"pruning"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Profile  ProfileConfig  `mapstructure:"profile"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalysisConfig names the input documents.
type AnalysisConfig struct {
	ONNX  string `mapstructure:"onnx"`
	Model string `mapstructure:"model"`
	Perf  string `mapstructure:"perf"`
	Loss  string `mapstructure:"loss"`
}

// PruningConfig holds the pruning request.
type PruningConfig struct {
	MaskType          string                 `mapstructure:"mask_type"`
	Sparsity          *float64               `mapstructure:"sparsity"`
	BalancePerfLoss   float64                `mapstructure:"balance_perf_loss"`
	FilterMinSparsity *float64               `mapstructure:"filter_min_sparsity"`
	FilterMinPerfGain *float64               `mapstructure:"filter_min_perf_gain"`
	FilterMinRecovery *float64               `mapstructure:"filter_min_recovery"`
	BaselineSparsity  *float64               `mapstructure:"baseline_sparsity"`
	NodeOverrides     []pruning.NodeOverride `mapstructure:"node_overrides"`
}

// OutputConfig selects where the result document goes.
type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// MetricsConfig selects where the metrics dump goes. Empty disables it.
type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

// ProfileConfig tunes the ONNX profiler.
type ProfileConfig struct {
	// Workers is the goroutine count for weight statistics. 0 means one per CPU.
	Workers int `mapstructure:"workers"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":            "log.level",
	"log-format":           "log.format",
	"model":                "analysis.onnx",
	"model-analysis":       "analysis.model",
	"perf-analysis":        "analysis.perf",
	"loss-analysis":        "analysis.loss",
	"mask-type":            "pruning.mask_type",
	"sparsity":             "pruning.sparsity",
	"balance":              "pruning.balance_perf_loss",
	"filter-min-sparsity":  "pruning.filter_min_sparsity",
	"filter-min-perf-gain": "pruning.filter_min_perf_gain",
	"filter-min-recovery":  "pruning.filter_min_recovery",
	"baseline-sparsity":    "pruning.baseline_sparsity",
	"out":                  "output.path",
	"format":               "output.format",
	"metrics-out":          "metrics.path",
	"workers":              "profile.workers",
}

// envKeys are bound explicitly so keys without defaults are still read from the environment.
var envKeys = []string{
	"log.level", "log.format",
	"analysis.onnx", "analysis.model", "analysis.perf", "analysis.loss",
	"pruning.mask_type", "pruning.sparsity", "pruning.balance_perf_loss",
	"pruning.filter_min_sparsity", "pruning.filter_min_perf_gain", "pruning.filter_min_recovery",
	"pruning.baseline_sparsity",
	"output.path", "output.format",
	"metrics.path",
	"profile.workers",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("pruning.mask_type", string(pruning.MaskUnstructured))
	v.SetDefault("pruning.balance_perf_loss", 0.5)
	v.SetDefault("output.format", string(analysis.FormatJSON))
	v.SetDefault("profile.workers", 0)
}

// NewFlagSet returns a flag set with every configuration flag registered.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML configuration file")

	fs.String("log-level", "info", "log level: info, debug, error")
	fs.String("log-format", "console", "log format: console, json")

	fs.String("model", "", "ONNX model file")
	fs.String("model-analysis", "", "model structural analysis document (json or yaml)")
	fs.String("perf-analysis", "", "performance analysis document")
	fs.String("loss-analysis", "", "loss analysis document")

	fs.String("mask-type", string(pruning.MaskUnstructured), "mask type: unstructured, block4, channel, filter")
	fs.Float64("sparsity", 0, "target overall sparsity in [0, 1]")
	fs.Float64("balance", 0.5, "loss weight against performance in [0, 1]")
	fs.Float64("filter-min-sparsity", 0, "clear node assignments below this sparsity")
	fs.Float64("filter-min-perf-gain", 0, "clear node assignments below this estimated speedup")
	fs.Float64("filter-min-recovery", 0, "clear node assignments below this estimated recovery")
	fs.Float64("baseline-sparsity", 0, "sparsity of the loss-only baseline pass (defaults to --sparsity)")

	fs.String("out", "", "output file, stdout when empty")
	fs.String("format", string(analysis.FormatJSON), "output format: json, yaml")
	fs.String("metrics-out", "", "write Prometheus text metrics to this file")
	fs.Int("workers", 0, "profiler goroutines, 0 for one per CPU")
	return fs
}

// Load resolves the configuration from a parsed flag set. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if fs != nil {
		if path, err := fs.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}

		fs.Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				v.Set(key, f.Value.String())
			}
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Settings converts the pruning section to evaluator settings.
func (p PruningConfig) Settings() (pruning.Settings, error) {
	mask, err := pruning.ParseMaskType(p.MaskType)
	if err != nil {
		return pruning.Settings{}, err
	}
	s := pruning.Settings{
		MaskType:          mask,
		Sparsity:          p.Sparsity,
		BalancePerfLoss:   p.BalancePerfLoss,
		FilterMinSparsity: p.FilterMinSparsity,
		FilterMinPerfGain: p.FilterMinPerfGain,
		FilterMinRecovery: p.FilterMinRecovery,
	}
	return s, s.Validate()
}

// EffectiveBaselineSparsity is the baseline pass target: BaselineSparsity,
// else Sparsity, else nil (no baseline pass).
func (p PruningConfig) EffectiveBaselineSparsity() *float64 {
	if p.BaselineSparsity != nil {
		return p.BaselineSparsity
	}
	return p.Sparsity
}

// LoggingOptions returns the logging section as logger options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}

// Validate checks the sections that every command uses.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LoggingOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := analysis.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Pruning.Settings(); err != nil {
		errs = append(errs, err)
	}
	if b := c.Pruning.BaselineSparsity; b != nil && (*b < 0 || *b > 1) {
		errs = append(errs, fmt.Errorf("%w: baseline_sparsity %v outside [0, 1]", pruning.ErrInvalidSettings, *b))
	}
	if c.Profile.Workers < 0 {
		errs = append(errs, fmt.Errorf("profile.workers must be >= 0, got %d", c.Profile.Workers))
	}
	return errors.Join(errs...)
}
