package tracking

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// IdentifiedUnit is one physical unit followed across sessions.
type IdentifiedUnit struct {
	ID                   uuid.UUID      `json:"id"`
	ChannelGroup         string         `json:"channel_group"`
	Units                map[string]int `json:"units"` // session -> unit label
	AverageDissimilarity float64        `json:"average_dissimilarity"`
}

// Sessions returns the sessions the unit was found in, sorted.
func (u IdentifiedUnit) Sessions() []string {
	out := make([]string, 0, len(u.Units))
	for s := range u.Units {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Identify reduces every connected component of two or more units to an
// IdentifiedUnit. Singletons produce nothing. Components still holding two
// units of one session return ErrUnresolvedDuplicates; run ResolveDuplicates first.
func (g *Graph) Identify() ([]IdentifiedUnit, error) {
	var out []IdentifiedUnit
	for _, comp := range g.Components() {
		if len(comp) < 2 {
			continue
		}

		units := make(map[string]int, len(comp))
		var weights []float64
		for _, h := range comp {
			k := g.nodes[h]
			if prev, dup := units[k.Session]; dup {
				return nil, fmt.Errorf("%w: group %q session %s units %d and %d",
					ErrUnresolvedDuplicates, g.ChannelGroup, k.Session, prev, k.Unit)
			}
			units[k.Session] = k.Unit
			for _, n := range g.neighbours(h) {
				if n > h {
					w, _ := g.g.Weight(h, n)
					weights = append(weights, w)
				}
			}
		}

		out = append(out, IdentifiedUnit{
			ID:                   uuid.New(),
			ChannelGroup:         g.ChannelGroup,
			Units:                units,
			AverageDissimilarity: stat.Mean(weights, nil),
		})
	}
	return out, nil
}

// Identify runs Graph.Identify on every channel group.
func (r *Result) Identify() (map[string][]IdentifiedUnit, error) {
	out := make(map[string][]IdentifiedUnit, len(r.Graphs))
	for _, group := range r.ChannelGroups() {
		ids, err := r.Graphs[group].Identify()
		if err != nil {
			return nil, err
		}
		out[group] = ids
	}
	return out, nil
}
