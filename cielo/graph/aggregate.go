package graph

import "sort"

const (
	// DefaultThreshold is the minimum inflow+outflow for a relation to be kept at all.
	DefaultThreshold = 50.0
	// DefaultMaxEdges keeps the top 7 counterparties plus one overflow edge.
	DefaultMaxEdges = 8
)

// Aggregate turns the relations reported for source into at most maxEdges edges.
//
// Relations below threshold are dropped. The rest are ranked by volume (stable, so ties keep
// their reported order) and the first maxEdges-1 become direct edges. Whatever is left is
// folded into a single edge towards OverflowAddress, emitted only if it carries volume.
func Aggregate(source Address, relations []Relation, maxEdges int, threshold float64) []Edge {
	kept := make([]Relation, 0, len(relations))
	for _, r := range relations {
		if r.Volume() < threshold {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return nil
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Volume() > kept[j].Volume()
	})

	direct := maxEdges - 1
	if direct < 0 {
		direct = 0
	}
	if direct > len(kept) {
		direct = len(kept)
	}

	edges := make([]Edge, 0, direct+1)
	for _, r := range kept[:direct] {
		edges = append(edges, Edge{
			Source:   source,
			Target:   r.Counterparty,
			TotalIn:  r.Inflow,
			TotalOut: r.Outflow,
		})
	}

	var tailIn, tailOut float64
	for _, r := range kept[direct:] {
		tailIn += r.Inflow
		tailOut += r.Outflow
	}
	if tailIn+tailOut > 0 {
		edges = append(edges, Edge{
			Source:   source,
			Target:   OverflowAddress,
			TotalIn:  tailIn,
			TotalOut: tailOut,
		})
	}

	return edges
}
