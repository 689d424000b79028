// Package reconcile matches raw transaction streams to their owning
// positions. It filters, groups, and orders; it does not mutate inputs
// and does not touch storage.
package reconcile

import (
	"sort"

	"github.com/trustnet/trust-engine/internal/model"
)

// Group pairs one position with its transactions, ordered by timestamp
// ascending. A group may be empty when no transactions reference the
// position.
type Group struct {
	Position     model.Position
	Transactions []model.Transaction
}

// Filter selects which positions and transactions participate in a
// reconciliation pass. Simulation and real records are never mixed in
// one report, so the simulation flag is part of the filter, not an
// afterthought.
type Filter struct {
	EntityID          string
	IncludeSimulation bool
}

// matches reports whether a position passes the filter.
func (f Filter) matches(p model.Position) bool {
	if f.EntityID != "" && p.EntityID != f.EntityID {
		return false
	}
	return p.IsSimulation == f.IncludeSimulation
}

// Reconcile groups transactions by position id, ordered within each group
// by timestamp ascending with a stable insertion-order tie-break (same
// block trades can share a timestamp). Positions that fail the filter are
// dropped before grouping, together with their transactions. The output
// preserves the input position order and contains one group per surviving
// position, possibly empty.
func Reconcile(positions []model.Position, transactions []model.Transaction, f Filter) []Group {
	kept := make([]model.Position, 0, len(positions))
	keptIDs := make(map[string]int, len(positions))
	for _, p := range positions {
		if !f.matches(p) {
			continue
		}
		keptIDs[p.ID] = len(kept)
		kept = append(kept, p)
	}

	byPosition := make(map[string][]model.Transaction, len(kept))
	for _, tx := range transactions {
		if _, ok := keptIDs[tx.PositionID]; !ok {
			continue
		}
		if tx.IsSimulation != f.IncludeSimulation {
			continue
		}
		byPosition[tx.PositionID] = append(byPosition[tx.PositionID], tx)
	}

	groups := make([]Group, len(kept))
	for i, p := range kept {
		txs := byPosition[p.ID]
		ordered := make([]model.Transaction, len(txs))
		copy(ordered, txs)
		sort.SliceStable(ordered, func(a, b int) bool {
			return ordered[a].Timestamp.Before(ordered[b].Timestamp)
		})
		groups[i] = Group{Position: p, Transactions: ordered}
	}
	return groups
}
