package sensitivity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"k8s.io/utils/ptr"
)

// Direction declares how a metric is expected to move as sparsity grows.
type Direction int

const (
	// Increasing metrics grow with sparsity (loss).
	Increasing Direction = iota
	// Decreasing metrics shrink with sparsity (time, params, flops).
	Decreasing
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Decreasing {
		return "decreasing"
	}
	return "increasing"
}

// CostSteps is the number of points produced by Series.Costs, at sparsity i/CostSteps.
const CostSteps = 100

// Point is one (sparsity, value) sample of a series.
type Point struct {
	Sparsity float64
	Value    float64
}

// CostPoint is one sample of an optimization cost curve.
// Cost is nil when the series carries no data.
type CostPoint struct {
	Sparsity float64
	Cost     *float64
}

// Series models one metric of one layer as a function of sparsity.
// It is immutable once built.
type Series struct {
	direction Direction
	numParams int64

	baseline *float64

	raw          []Point
	smoothed     []Point
	optimization []Point

	valueMin, valueMax         float64
	smoothedMin, smoothedMax   float64
	optimizedMin, optimizedMax float64

	rawInterp *interp.PiecewiseLinear
	optInterp *interp.PiecewiseLinear
}

// NewSeries builds a series from a sparsity -> value table.
// A nil or empty table yields a series without data whose queries return nil.
func NewSeries(measurements map[float64]float64, baselineKey float64, numParams int64, dir Direction) *Series {
	s := &Series{direction: dir, numParams: numParams}

	for sparsity, value := range measurements {
		if math.IsNaN(sparsity) {
			continue
		}
		s.raw = append(s.raw, Point{Sparsity: sparsity, Value: value})
		if sparsity == baselineKey {
			s.baseline = ptr.To(value)
		}
	}
	if len(s.raw) == 0 {
		return s
	}

	// Order by pruned parameter count; the sparsity tie-break keeps the order
	// total when numParams is zero.
	params := float64(numParams)
	sort.Slice(s.raw, func(i, j int) bool {
		pi, pj := s.raw[i].Sparsity*params, s.raw[j].Sparsity*params
		if pi != pj {
			return pi < pj
		}
		return s.raw[i].Sparsity < s.raw[j].Sparsity
	})

	s.smoothed = make([]Point, len(s.raw))
	s.valueMin, s.valueMax = s.raw[0].Value, s.raw[0].Value
	for i, p := range s.raw {
		s.valueMin = min(s.valueMin, p.Value)
		s.valueMax = max(s.valueMax, p.Value)

		value := p.Value
		if i > 0 {
			prev := s.smoothed[i-1].Value
			if dir == Increasing {
				value = max(value, prev)
			} else {
				value = min(value, prev)
			}
		}
		s.smoothed[i] = Point{Sparsity: p.Sparsity, Value: value}
	}

	s.smoothedMin, s.smoothedMax = s.smoothed[0].Value, s.smoothed[0].Value
	for _, p := range s.smoothed {
		s.smoothedMin = min(s.smoothedMin, p.Value)
		s.smoothedMax = max(s.smoothedMax, p.Value)
	}

	s.optimization = make([]Point, len(s.smoothed))
	for i, p := range s.smoothed {
		value := p.Value
		if dir == Decreasing {
			value = s.smoothedMax - value
		}
		s.optimization[i] = Point{Sparsity: p.Sparsity, Value: value}
	}

	s.optimizedMin, s.optimizedMax = s.optimization[0].Value, s.optimization[0].Value
	for _, p := range s.optimization {
		s.optimizedMin = min(s.optimizedMin, p.Value)
		s.optimizedMax = max(s.optimizedMax, p.Value)
	}

	s.rawInterp = fitLinear(s.raw)
	s.optInterp = fitLinear(s.optimization)

	return s
}

// fitLinear fits a piecewise-linear interpolant over points sorted by sparsity.
// Returns nil for fewer than two points; callers treat that as a constant.
func fitLinear(points []Point) *interp.PiecewiseLinear {
	if len(points) < 2 {
		return nil
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.Sparsity, p.Value
	}
	// xs are strictly increasing: map keys are unique and NaN keys are dropped.
	pl := &interp.PiecewiseLinear{}
	if err := pl.Fit(xs, ys); err != nil {
		return nil
	}
	return pl
}

// predict interpolates points at sparsity, clamping to the endpoints.
func predict(pl *interp.PiecewiseLinear, points []Point, sparsity float64) float64 {
	if pl == nil {
		return points[0].Value
	}
	first, last := points[0], points[len(points)-1]
	if sparsity <= first.Sparsity {
		return first.Value
	}
	if sparsity >= last.Sparsity {
		return last.Value
	}
	return pl.Predict(sparsity)
}

// HasData reports whether the series was built from any measurements.
func (s *Series) HasData() bool { return len(s.raw) > 0 }

// Direction returns the series direction.
func (s *Series) Direction() Direction { return s.direction }

// NumParams returns the layer parameter count used for ordering.
func (s *Series) NumParams() int64 { return s.numParams }

// Points returns the raw points in pruned-parameter order.
func (s *Series) Points() []Point { return append([]Point(nil), s.raw...) }

// Smoothed returns the monotonic smoothed points.
func (s *Series) Smoothed() []Point { return append([]Point(nil), s.smoothed...) }

// Optimization returns the non-decreasing optimization points.
func (s *Series) Optimization() []Point { return append([]Point(nil), s.optimization...) }

// ValueMin returns the smallest raw value.
func (s *Series) ValueMin() float64 { return s.valueMin }

// ValueMax returns the largest raw value.
func (s *Series) ValueMax() float64 { return s.valueMax }

// SmoothedMin returns the smallest smoothed value.
func (s *Series) SmoothedMin() float64 { return s.smoothedMin }

// SmoothedMax returns the largest smoothed value.
func (s *Series) SmoothedMax() float64 { return s.smoothedMax }

// OptimizedMin returns the smallest optimization value.
func (s *Series) OptimizedMin() float64 { return s.optimizedMin }

// OptimizedMax returns the largest optimization value.
func (s *Series) OptimizedMax() float64 { return s.optimizedMax }

// Baseline returns the value measured at the baseline key, or nil.
func (s *Series) Baseline() *float64 {
	if s.baseline == nil {
		return nil
	}
	return ptr.To(*s.baseline)
}

// falsy reports whether a sparsity means "not pruned".
func falsy(sparsity *float64) bool {
	return sparsity == nil || *sparsity == 0
}

// EstimatedValue interpolates the raw measurements at sparsity.
// A nil or zero sparsity returns the baseline value.
func (s *Series) EstimatedValue(sparsity *float64) *float64 {
	if !s.HasData() {
		return nil
	}
	if falsy(sparsity) {
		return s.Baseline()
	}
	return ptr.To(predict(s.rawInterp, s.raw, *sparsity))
}

// EstimatedGain returns baseline / EstimatedValue(sparsity).
// It is 1 for an unpruned layer and 0 when either side is zero or missing.
func (s *Series) EstimatedGain(sparsity *float64) *float64 {
	if !s.HasData() {
		return nil
	}
	if falsy(sparsity) {
		return ptr.To(1.0)
	}
	baseline := ptr.Deref(s.baseline, 0)
	estimated := ptr.Deref(s.EstimatedValue(sparsity), 0)
	if baseline == 0 || estimated == 0 {
		return ptr.To(0.0)
	}
	return ptr.To(baseline / estimated)
}

// EstimatedSensitivity returns the change from baseline at sparsity, signed so
// that a larger value always means more sensitive to pruning.
func (s *Series) EstimatedSensitivity(sparsity *float64) *float64 {
	if !s.HasData() || falsy(sparsity) {
		return nil
	}
	baseline := ptr.Deref(s.baseline, 0)
	estimated := ptr.Deref(s.EstimatedValue(sparsity), 0)
	if s.direction == Decreasing {
		return ptr.To(baseline - estimated)
	}
	return ptr.To(estimated - baseline)
}

// Costs samples the rescaled optimization series at sparsity 0, 0.01, ..., 0.99.
// With useMax every point takes the series' optimized maximum instead of the
// interpolated value.
func (s *Series) Costs(r *Rescaler, useMax bool) []CostPoint {
	out := make([]CostPoint, CostSteps)
	for i := range out {
		sparsity := float64(i) / CostSteps
		out[i].Sparsity = sparsity
		if len(s.optimization) == 0 {
			continue
		}

		value := s.optimizedMax
		if !useMax {
			value = predict(s.optInterp, s.optimization, sparsity)
		}
		out[i].Cost = r.Rescale(&value)
	}
	return out
}
