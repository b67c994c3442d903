package sensitivity

import "k8s.io/utils/ptr"

// Rescaler normalizes values onto [0, 1] using the running min/max of every
// series added to it. The zero value is ready to use.
type Rescaler struct {
	minVal *float64
	maxVal *float64
}

// AddRescaleSeries widens the running range to include [minV, maxV].
func (r *Rescaler) AddRescaleSeries(minV, maxV float64) {
	if r.minVal == nil || minV < *r.minVal {
		r.minVal = ptr.To(minV)
	}
	if r.maxVal == nil || maxV > *r.maxVal {
		r.maxVal = ptr.To(maxV)
	}
}

// AddSeries feeds the optimized range of s. Series without data are ignored.
func (r *Rescaler) AddSeries(s *Series) {
	if s == nil || !s.HasData() {
		return
	}
	r.AddRescaleSeries(s.OptimizedMin(), s.OptimizedMax())
}

// Range returns the accumulated range; ok is false before the first add.
func (r *Rescaler) Range() (minV, maxV float64, ok bool) {
	if r.minVal == nil || r.maxVal == nil {
		return 0, 0, false
	}
	return *r.minVal, *r.maxVal, true
}

// Rescale maps value into the accumulated range. Values outside the range
// are not clamped. A zero-width or empty range divides by one.
func (r *Rescaler) Rescale(value *float64) *float64 {
	if value == nil {
		return nil
	}
	minV := ptr.Deref(r.minVal, 0)
	denom := 1.0
	if r.maxVal != nil && *r.maxVal-minV != 0 {
		denom = *r.maxVal - minV
	}
	return ptr.To((*value - minV) / denom)
}
