package tracking

import (
	"fmt"
	"math"

	"github.com/banshee-data/unitmatch/internal/monitoring"
)

// PruneKey selects the edge attribute compared by Prune.
type PruneKey string

const (
	PruneWeight     PruneKey = "weight"      // dissimilarity of the assignment
	PruneTimeDelta  PruneKey = "time_delta"  // seconds between sessions
	PruneDepthDelta PruneKey = "depth_delta" // micrometres between depths
)

// ParsePruneKey validates a key name.
func ParsePruneKey(s string) (PruneKey, error) {
	switch k := PruneKey(s); k {
	case PruneWeight, PruneTimeDelta, PruneDepthDelta:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPruneKey, s)
	}
}

func (e Edge) value(key PruneKey) float64 {
	switch key {
	case PruneTimeDelta:
		return e.TimeDelta.Seconds()
	case PruneDepthDelta:
		return e.DepthDelta
	default:
		return e.Weight
	}
}

// Prune removes every edge whose key value exceeds threshold and returns the
// number of edges removed. Each edge is judged on its own value, so the result
// does not depend on traversal order and a second call removes nothing.
func (g *Graph) Prune(key PruneKey, threshold float64) (int, error) {
	if _, err := ParsePruneKey(string(key)); err != nil {
		return 0, err
	}
	if math.IsNaN(threshold) || threshold < 0 {
		return 0, fmt.Errorf("%w: %v", ErrNegativeThreshold, threshold)
	}

	removed := 0
	for _, id := range g.edgeIDs() {
		e, _ := g.edge(id.lo, id.hi)
		if e.value(key) > threshold {
			g.removeEdge(id.lo, id.hi)
			removed++
		}
	}
	return removed, nil
}

// ResolveDuplicates enforces that no connected component holds two units of
// the same session. For every session appearing more than once in a
// component, the unit with the lowest mean edge weight keeps its edges and the
// others are disconnected; ties keep the unit inserted first. The nodes
// themselves stay in the graph as singletons. Returns the number of edges cut.
func (g *Graph) ResolveDuplicates() int {
	removed := 0
	for _, comp := range g.Components() {
		if len(comp) < 2 {
			continue
		}

		var order []string
		bySession := make(map[string][]int64)
		for _, h := range comp {
			s := g.nodes[h].Session
			if _, ok := bySession[s]; !ok {
				order = append(order, s)
			}
			bySession[s] = append(bySession[s], h)
		}

		for _, s := range order {
			dups := bySession[s]
			if len(dups) < 2 {
				continue
			}

			keep := int64(-1)
			best := math.Inf(1)
			for _, h := range dups {
				if mean, ok := g.meanWeight(h); ok && mean < best {
					keep, best = h, mean
				}
			}

			for _, h := range dups {
				if h == keep {
					continue
				}
				for _, n := range g.neighbours(h) {
					if g.removeEdge(h, n) {
						removed++
					}
				}
			}
			if keep >= 0 {
				monitoring.Logf("[tracking] group %q: kept %s among %d units of session %s", g.ChannelGroup, g.nodes[keep], len(dups), s)
			}
		}
	}
	return removed
}

// Prune applies Graph.Prune to every channel group.
func (r *Result) Prune(key PruneKey, threshold float64) (int, error) {
	total := 0
	for _, group := range r.ChannelGroups() {
		n, err := r.Graphs[group].Prune(key, threshold)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ResolveDuplicates applies Graph.ResolveDuplicates to every channel group.
func (r *Result) ResolveDuplicates() int {
	total := 0
	for _, group := range r.ChannelGroups() {
		total += r.Graphs[group].ResolveDuplicates()
	}
	return total
}
