// Package analysis defines the three input documents of the pruning evaluator
// and a structural profiler that derives the model document from an ONNX file.
//
// The documents are:
//
//   - ModelAnalysis: per-node structure (params, flops, attributes).
//   - PerfAnalysis: per-node and whole-model timings at several sparsities.
//   - LossAnalysis: per-node loss deltas at several sparsities.
//
// Documents are JSON or YAML, selected by file extension:
//
//	model, err := analysis.LoadModelAnalysis("model.json")
//	perf, err := analysis.LoadPerfAnalysis("perf.yaml") // nil when path is ""
package analysis
