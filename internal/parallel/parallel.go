// Package parallel provides chunked parallel loops for the sparsify profiler.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4096, // Weight tensors are large and the per-item work is tiny.
	}
}

// WithWorkers returns a copy of cfg using n workers.
// A value below 2 disables parallelism.
func (cfg Config) WithWorkers(n int) Config {
	cfg.NumWorkers = n
	cfg.Enabled = n > 1
	return cfg
}

// chunks splits [0, n) into contiguous ranges sized for cfg.
// Returns a single range when parallelism is disabled or n is too small.
func chunks(n int, cfg Config) [][2]int {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < cfg.MinChunkSize {
		return [][2]int{{0, n}}
	}

	size := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ranges := chunks(n, cfg)
	if len(ranges) == 1 {
		for i := ranges[0][0]; i < ranges[0][1]; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	for _, r := range ranges {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(r[0], r[1])
	}
	wg.Wait()
}

// Sum returns the sum of f(i) for i in [0, n).
// Each chunk accumulates locally and partial sums are added in chunk order,
// so the result is deterministic for a given Config.
func Sum(n int, f func(i int) float64, cfg Config) float64 {
	ranges := chunks(n, cfg)
	partial := make([]float64, len(ranges))

	For(len(ranges), func(k int) {
		var acc float64
		for i := ranges[k][0]; i < ranges[k][1]; i++ {
			acc += f(i)
		}
		partial[k] = acc
	}, Config{Enabled: len(ranges) > 1, NumWorkers: len(ranges), MinChunkSize: 1})

	var total float64
	for _, p := range partial {
		total += p
	}
	return total
}
