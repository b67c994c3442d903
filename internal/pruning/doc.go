// Package pruning recommends a per-layer sparsity assignment for a model.
//
// A ModelEvaluator is built from a model structural analysis and optional
// performance and loss analyses. It runs in a fixed sequence:
//
//	eval, err := pruning.NewModelEvaluator(model, perf, loss)
//	eval.EvalBaseline(0.85)            // loss-only reference assignment
//	err = eval.EvalPruning(settings)   // balanced assignment with filters
//	err = eval.ApplyNodeOverrides(pins)
//	nodes, totals := eval.ToDictValues()
//
// Each prunable node gets a 100-point cost curve that blends its rescaled
// loss and performance sensitivities. The curves of all nodes share one
// normalized axis, so a single greedy walk in ascending cost order can fill
// the parameter budget across the whole model.
package pruning
