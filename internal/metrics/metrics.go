// Package metrics instruments evaluation passes with Prometheus collectors.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "sparsify"

// Evaluation phases.
const (
	PhaseBaseline = "baseline"
	PhasePruning  = "pruning"
	PhaseReport   = "report"
)

// Reasons a node assignment is cleared by the restriction pass.
const (
	FilterFirstNode   = "first_node"
	FilterStructural  = "structurally_pruned"
	FilterMinSparsity = "min_sparsity"
	FilterMinPerfGain = "min_perf_gain"
	FilterMinRecovery = "min_recovery"
)

// Recorder holds the evaluation collectors. A nil *Recorder records nothing.
type Recorder struct {
	duration *prometheus.HistogramVec
	assigned *prometheus.GaugeVec
	filtered *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "duration_seconds",
				Help:      "Wall time of one evaluation phase.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"phase"},
		),
		assigned: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "assigned_nodes",
				Help:      "Nodes holding a non-null sparsity after a phase.",
			},
			[]string{"phase"},
		),
		filtered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evaluation",
				Name:      "filtered_nodes_total",
				Help:      "Node assignments cleared by the restriction pass, by reason.",
			},
			[]string{"filter"},
		),
	}

	for _, c := range []prometheus.Collector{r.duration, r.assigned, r.filtered} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// ObservePhase records the duration of phase.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetAssigned records how many nodes hold an assignment after phase.
func (r *Recorder) SetAssigned(phase string, n int) {
	if r == nil {
		return
	}
	r.assigned.WithLabelValues(phase).Set(float64(n))
}

// IncFiltered counts one assignment cleared for reason.
func (r *Recorder) IncFiltered(reason string) {
	if r == nil {
		return
	}
	r.filtered.WithLabelValues(reason).Inc()
}

// WriteText writes every metric family of g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
