// Package sensitivity models how a layer's metrics respond to pruning.
//
// A Series wraps a sparsity -> value measurement table for one metric of one
// layer (parameter count, flops, inference time or loss). From the raw table it
// derives a smoothed monotonic sequence and an optimization sequence that never
// decreases with sparsity, regardless of the metric's direction:
//
//	raw           (0.0, 10ms) (0.5, 7ms) (0.9, 7.5ms)   Decreasing
//	smoothed      (0.0, 10ms) (0.5, 7ms) (0.9, 7ms)
//	optimization  (0.0,  0ms) (0.5, 3ms) (0.9, 3ms)
//
// A Rescaler collects the optimization ranges of many series so their costs can
// be compared on one [0, 1] axis:
//
//	var perf sensitivity.Rescaler
//	for _, s := range series {
//	    perf.AddSeries(s)
//	}
//	costs := series[0].Costs(&perf, false)
package sensitivity
