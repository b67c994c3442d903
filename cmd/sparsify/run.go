package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/born-ml/sparsify/internal/analysis"
	"github.com/born-ml/sparsify/internal/config"
	"github.com/born-ml/sparsify/internal/logging"
	"github.com/born-ml/sparsify/internal/metrics"
	"github.com/born-ml/sparsify/internal/onnx"
	"github.com/born-ml/sparsify/internal/pruning"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage error")

func usage(w io.Writer) {
	fmt.Fprintf(w, "sparsify %s - layer sparsity recommendations\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "  info       Summarize an ONNX model (--model)")
	fmt.Fprintln(w, "  analyze    Write the model structural analysis of an ONNX model")
	fmt.Fprintln(w, "  optimize   Recommend per-layer sparsity and write the report")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'sparsify <command> --help' for flags.")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var cmd func(*env) error
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "sparsify %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	case "info":
		cmd = infoCmd
	case "analyze":
		cmd = analyzeCmd
	case "optimize":
		cmd = optimizeCmd
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	e, err := newEnv(args[0], args[1:], stdout, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "sparsify %s: %v\n", args[0], err)
		return exitUsage
	}

	err = cmd(e)
	if werr := e.writeMetrics(); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		e.logger.Error(err, "command failed")
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

// env is the per-invocation state shared by commands.
type env struct {
	cfg      *config.Config
	logger   logr.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	stdout   io.Writer
}

func newEnv(name string, args []string, stdout, stderr io.Writer) (*env, error) {
	fs := config.NewFlagSet(name)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments %v", fs.Args())
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return nil, err
	}
	logger = logger.WithName(name).WithValues("run", uuid.NewString())

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, registry: reg, recorder: rec, stdout: stdout}, nil
}

// write encodes v to the configured output.
func (e *env) write(v any) error {
	format, err := analysis.ParseFormat(e.cfg.Output.Format)
	if err != nil {
		return err
	}
	if p := e.cfg.Output.Path; p != "" && p != "-" {
		if err := analysis.WriteFile(p, format, v); err != nil {
			return err
		}
		e.logger.Info("wrote output", "path", p, "format", format)
		return nil
	}
	return analysis.Encode(e.stdout, format, v)
}

func (e *env) writeMetrics() error {
	path := e.cfg.Metrics.Path
	if path == "" {
		return nil
	}
	f, err := os.Create(path) //nolint:gosec // G304: Path is provided by user.
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := metrics.WriteText(f, e.registry); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (e *env) profileOptions() analysis.ProfileOptions {
	opts := analysis.DefaultProfileOptions()
	if w := e.cfg.Profile.Workers; w > 0 {
		opts.Parallel = opts.Parallel.WithWorkers(w)
	}
	opts.Logger = e.logger
	return opts
}

func infoCmd(e *env) error {
	if e.cfg.Analysis.ONNX == "" {
		return fmt.Errorf("%w: --model is required", errUsage)
	}
	info, err := onnx.GetModelInfo(e.cfg.Analysis.ONNX)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Model: %s\n", e.cfg.Analysis.ONNX)
	fmt.Fprintf(e.stdout, "  IR version:  %d\n", info.IRVersion)
	fmt.Fprintf(e.stdout, "  Opset:       %d\n", info.OpsetVersion)
	if info.ProducerName != "" {
		fmt.Fprintf(e.stdout, "  Producer:    %s %s\n", info.ProducerName, info.ProducerVersion)
	}
	fmt.Fprintf(e.stdout, "  Inputs:      %v\n", info.InputNames)
	fmt.Fprintf(e.stdout, "  Outputs:     %v\n", info.OutputNames)
	fmt.Fprintf(e.stdout, "  Nodes:       %d\n", info.NodeCount)
	fmt.Fprintf(e.stdout, "  Weights:     %d (%d elements)\n", info.WeightCount, info.WeightElements)
	for _, op := range info.Operators() {
		fmt.Fprintf(e.stdout, "    %-20s %d\n", op, info.OpTypes[op])
	}
	return nil
}

func analyzeCmd(e *env) error {
	if e.cfg.Analysis.ONNX == "" {
		return fmt.Errorf("%w: --model is required", errUsage)
	}
	model, err := analysis.ProfileFile(e.cfg.Analysis.ONNX, e.profileOptions())
	if err != nil {
		return err
	}
	e.logger.Info("profiled model", "nodes", len(model.Nodes), "prunable", len(model.PrunableNodes()))
	return e.write(model)
}

// loadModel reads the structural analysis, profiling the ONNX model when no document is given.
func (e *env) loadModel() (*analysis.ModelAnalysis, error) {
	switch {
	case e.cfg.Analysis.Model != "":
		return analysis.LoadModelAnalysis(e.cfg.Analysis.Model)
	case e.cfg.Analysis.ONNX != "":
		return analysis.ProfileFile(e.cfg.Analysis.ONNX, e.profileOptions())
	default:
		return nil, fmt.Errorf("%w: --model-analysis or --model is required", errUsage)
	}
}

func optimizeCmd(e *env) error {
	start := time.Now()

	model, err := e.loadModel()
	if err != nil {
		return err
	}
	perf, err := analysis.LoadPerfAnalysis(e.cfg.Analysis.Perf)
	if err != nil {
		return err
	}
	loss, err := analysis.LoadLossAnalysis(e.cfg.Analysis.Loss)
	if err != nil {
		return err
	}
	settings, err := e.cfg.Pruning.Settings()
	if err != nil {
		return err
	}

	eval, err := pruning.NewModelEvaluator(model, perf, loss,
		pruning.WithLogger(e.logger), pruning.WithRecorder(e.recorder))
	if err != nil {
		return err
	}

	if b := e.cfg.Pruning.EffectiveBaselineSparsity(); b != nil {
		eval.EvalBaseline(*b)
	}
	if err := eval.EvalPruning(settings); err != nil {
		return err
	}
	if len(e.cfg.Pruning.NodeOverrides) > 0 {
		if err := eval.ApplyNodeOverrides(e.cfg.Pruning.NodeOverrides); err != nil {
			return err
		}
	}

	report := eval.Report()

	e.logger.Info("optimized model",
		"nodes", len(report.NodeValues),
		"perf", perf != nil,
		"loss", loss != nil,
		"elapsed", time.Since(start))
	return e.write(report)
}
