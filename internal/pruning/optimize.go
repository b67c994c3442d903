package pruning

import (
	"sort"

	"github.com/born-ml/sparsify/internal/metrics"
	"k8s.io/utils/ptr"
)

// MaxNodeSparsity caps every assignment.
const MaxNodeSparsity = 0.95

type costEntry struct {
	node         int
	sparseParams float64
	sparsity     float64
	cost         float64
}

// optimizeSparsity assigns a sparsity to every node so the pruned parameter
// total stays within target * Σparams. The result is indexed like m.nodes;
// nil means not pruned.
//
// Points of all nodes are pooled and walked in ascending cost order. Each
// point replaces its node's previous tentative assignment; the walk stops at
// the first point that would push the total over target.
func (m *ModelEvaluator) optimizeSparsity(target *float64, balance float64, settings *Settings) []*float64 {
	result := make([]*float64, len(m.nodes))
	if target == nil {
		return result
	}

	var pool []costEntry
	totalParams := 0.0
	for i, node := range m.nodes {
		params := float64(node.NumParams())
		totalParams += params

		costs := node.OptimizationCosts(balance, &m.perfRescaler, &m.lossRescaler)
		if len(costs) == 0 || costs[len(costs)-1].Cost == nil {
			m.logger.V(1).Info("skipping node without cost data", "node", node.ID())
			continue
		}
		for _, c := range costs {
			if c.Cost == nil {
				continue
			}
			pool = append(pool, costEntry{
				node:         i,
				sparseParams: c.Sparsity * params,
				sparsity:     c.Sparsity,
				cost:         *c.Cost,
			})
		}
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].cost < pool[j].cost })

	targetParams := *target * totalParams
	nodeParams := make([]float64, len(m.nodes))
	total := 0.0
	for _, e := range pool {
		next := total - nodeParams[e.node] + e.sparseParams
		if next > targetParams {
			break
		}
		total = next
		nodeParams[e.node] = e.sparseParams
		result[e.node] = ptr.To(e.sparsity)
	}

	m.applyRestrictions(result, settings)
	return result
}

// applyRestrictions caps assignments at MaxNodeSparsity and, for a pruning
// pass, clears the first node, structurally pruned nodes and every node that
// fails a configured filter.
func (m *ModelEvaluator) applyRestrictions(result []*float64, settings *Settings) {
	for i, s := range result {
		if s != nil && *s > MaxNodeSparsity {
			result[i] = ptr.To(MaxNodeSparsity)
		}
	}
	if settings == nil {
		return
	}

	drop := func(i int, reason string) {
		if result[i] == nil {
			return
		}
		result[i] = nil
		m.recorder.IncFiltered(reason)
		m.logger.V(1).Info("cleared node assignment", "node", m.nodes[i].ID(), "reason", reason)
	}

	for i, node := range m.nodes {
		switch {
		case i == 0:
			drop(i, metrics.FilterFirstNode)
			continue
		case node.StructurallyPruned():
			drop(i, metrics.FilterStructural)
			continue
		case result[i] == nil:
			continue
		}

		sparsity := result[i]
		if limit := settings.FilterMinSparsity; limit != nil && *sparsity < *limit {
			drop(i, metrics.FilterMinSparsity)
			continue
		}
		if limit := settings.FilterMinPerfGain; limit != nil {
			gain := node.AvailablePerf().Series.EstimatedGain(sparsity)
			if gain == nil || *gain < *limit {
				drop(i, metrics.FilterMinPerfGain)
				continue
			}
		}
		if limit := settings.FilterMinRecovery; limit != nil {
			recovery := node.Recovery(sparsity, m.settings[i].BaselineSparsity)
			if recovery == nil || *recovery < *limit {
				drop(i, metrics.FilterMinRecovery)
			}
		}
	}
}
