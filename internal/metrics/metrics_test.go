package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObservePhase(PhasePruning, 3*time.Millisecond)
	r.SetAssigned(PhasePruning, 7)
	r.IncFiltered(FilterFirstNode)
	r.IncFiltered(FilterMinPerfGain)
	r.IncFiltered(FilterMinPerfGain)

	assert.Equal(t, 7.0, testutil.ToFloat64(r.assigned.WithLabelValues(PhasePruning)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.filtered.WithLabelValues(FilterMinPerfGain)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.filtered.WithLabelValues(FilterFirstNode)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObservePhase(PhaseBaseline, time.Second)
		r.SetAssigned(PhaseBaseline, 1)
		r.IncFiltered(FilterStructural)
	})
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.SetAssigned(PhaseBaseline, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()
	assert.True(t, strings.Contains(out, `sparsify_evaluation_assigned_nodes{phase="baseline"} 3`), out)
}
