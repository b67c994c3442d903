package sensitivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/utils/ptr"
)

func TestRescalerEmpty(t *testing.T) {
	var r Rescaler
	_, _, ok := r.Range()
	assert.False(t, ok)
	assert.Nil(t, r.Rescale(nil))
	// Identity before anything is added.
	assert.Equal(t, 0.7, *r.Rescale(ptr.To(0.7)))
}

func TestRescalerAccumulates(t *testing.T) {
	var r Rescaler
	r.AddRescaleSeries(2, 4)
	r.AddRescaleSeries(1, 3)
	r.AddRescaleSeries(2.5, 6)

	minV, maxV, ok := r.Range()
	assert.True(t, ok)
	assert.Equal(t, 1.0, minV)
	assert.Equal(t, 6.0, maxV)
	assert.InDelta(t, 0.0, *r.Rescale(ptr.To(1.0)), 1e-12)
	assert.InDelta(t, 0.5, *r.Rescale(ptr.To(3.5)), 1e-12)
	assert.InDelta(t, 1.0, *r.Rescale(ptr.To(6.0)), 1e-12)
	// Out of range values are not clamped.
	assert.InDelta(t, 1.2, *r.Rescale(ptr.To(7.0)), 1e-12)
}

func TestRescalerZeroWidth(t *testing.T) {
	var r Rescaler
	r.AddRescaleSeries(3, 3)
	assert.Equal(t, 0.0, *r.Rescale(ptr.To(3.0)))
	assert.Equal(t, 2.0, *r.Rescale(ptr.To(5.0)))
}

func TestRescalerIdempotent(t *testing.T) {
	var once, twice Rescaler
	once.AddRescaleSeries(0.2, 1.7)
	twice.AddRescaleSeries(0.2, 1.7)
	twice.AddRescaleSeries(0.2, 1.7)

	for _, v := range []float64{-1, 0, 0.2, 0.9, 1.7, 3} {
		assert.Equal(t, *once.Rescale(ptr.To(v)), *twice.Rescale(ptr.To(v)))
	}
}

func TestRescalerAddSeries(t *testing.T) {
	var r Rescaler
	r.AddSeries(nil)
	r.AddSeries(NewSeries(nil, 0, 10, Increasing))
	_, _, ok := r.Range()
	assert.False(t, ok)

	r.AddSeries(perfSeries())
	minV, maxV, ok := r.Range()
	assert.True(t, ok)
	assert.Equal(t, 0.0, minV)
	assert.Equal(t, 3.0, maxV)
}
