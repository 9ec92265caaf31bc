package tracking

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// UnitKey identifies a unit within one channel group's graph.
type UnitKey struct {
	Session string
	Unit    int
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%s/%d", k.Session, k.Unit)
}

// Compare orders keys by session, then unit label.
func (k UnitKey) Compare(o UnitKey) int {
	if c := cmp.Compare(k.Session, o.Session); c != 0 {
		return c
	}
	return cmp.Compare(k.Unit, o.Unit)
}

// Edge is an undirected edge between two units. From always sorts before To.
type Edge struct {
	From       UnitKey
	To         UnitKey
	Weight     float64
	TimeDelta  time.Duration
	DepthDelta float64
}

// EdgeAttributes are the metadata deltas attached after graph construction.
type EdgeAttributes struct {
	TimeDelta  time.Duration
	DepthDelta float64
}

type edgeID struct{ lo, hi int64 }

func newEdgeID(a, b int64) edgeID {
	if a > b {
		a, b = b, a
	}
	return edgeID{lo: a, hi: b}
}

// Graph is the undirected weighted unit graph of one channel group.
//
// Nodes live in an arena: a node's handle is its index in insertion order
// and the adjacency structure only stores handles.
type Graph struct {
	ChannelGroup string

	nodes   []UnitKey
	handles map[UnitKey]int64
	g       *simple.WeightedUndirectedGraph
	attrs   map[edgeID]EdgeAttributes
}

// NewGraph returns an empty graph for a channel group.
func NewGraph(channelGroup string) *Graph {
	return &Graph{
		ChannelGroup: channelGroup,
		handles:      make(map[UnitKey]int64),
		g:            simple.NewWeightedUndirectedGraph(0, 0),
		attrs:        make(map[edgeID]EdgeAttributes),
	}
}

// Clone returns a deep copy with the same arena handles.
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.ChannelGroup)
	for _, k := range g.nodes {
		c.AddNode(k)
	}
	for _, e := range g.Edges() {
		_ = c.AddEdge(e)
	}
	return c
}

// AddNode inserts k if absent and returns its handle.
func (g *Graph) AddNode(k UnitKey) int64 {
	if h, ok := g.handles[k]; ok {
		return h
	}
	h := int64(len(g.nodes))
	g.nodes = append(g.nodes, k)
	g.handles[k] = h
	g.g.AddNode(simple.Node(h))
	return h
}

// Handle returns the handle of k.
func (g *Graph) Handle(k UnitKey) (int64, bool) {
	h, ok := g.handles[k]
	return h, ok
}

// Key returns the unit stored under handle h.
func (g *Graph) Key(h int64) UnitKey {
	return g.nodes[h]
}

// Nodes returns every unit in arena order.
func (g *Graph) Nodes() []UnitKey {
	return slices.Clone(g.nodes)
}

// NodeCount returns the number of nodes, isolated ones included.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of surviving edges.
func (g *Graph) EdgeCount() int {
	return len(g.attrs)
}

// AddEdge inserts or replaces the edge between e.From and e.To, creating the
// nodes when needed. Self loops are rejected.
func (g *Graph) AddEdge(e Edge) error {
	if e.From == e.To {
		return fmt.Errorf("self loop on %s", e.From)
	}
	a := g.AddNode(e.From)
	b := g.AddNode(e.To)
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(a), simple.Node(b), e.Weight))
	g.attrs[newEdgeID(a, b)] = EdgeAttributes{TimeDelta: e.TimeDelta, DepthDelta: e.DepthDelta}
	return nil
}

// Edge returns the edge between two units.
func (g *Graph) Edge(a, b UnitKey) (Edge, bool) {
	ha, ok := g.handles[a]
	if !ok {
		return Edge{}, false
	}
	hb, ok := g.handles[b]
	if !ok {
		return Edge{}, false
	}
	return g.edge(ha, hb)
}

func (g *Graph) edge(a, b int64) (Edge, bool) {
	attrs, ok := g.attrs[newEdgeID(a, b)]
	if !ok {
		return Edge{}, false
	}
	w, _ := g.g.Weight(a, b)
	from, to := g.nodes[a], g.nodes[b]
	if from.Compare(to) > 0 {
		from, to = to, from
	}
	return Edge{From: from, To: to, Weight: w, TimeDelta: attrs.TimeDelta, DepthDelta: attrs.DepthDelta}, true
}

// Edges returns every edge ordered by (From, To).
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.attrs))
	for id := range g.attrs {
		e, _ := g.edge(id.lo, id.hi)
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		if c := x.From.Compare(y.From); c != 0 {
			return c
		}
		return x.To.Compare(y.To)
	})
	return edges
}

// edgeIDs returns the handle pairs of every edge in ascending order.
func (g *Graph) edgeIDs() []edgeID {
	ids := make([]edgeID, 0, len(g.attrs))
	for id := range g.attrs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(x, y edgeID) int {
		if c := cmp.Compare(x.lo, y.lo); c != 0 {
			return c
		}
		return cmp.Compare(x.hi, y.hi)
	})
	return ids
}

func (g *Graph) setAttributes(a, b int64, attrs EdgeAttributes) {
	id := newEdgeID(a, b)
	if _, ok := g.attrs[id]; ok {
		g.attrs[id] = attrs
	}
}

func (g *Graph) removeEdge(a, b int64) bool {
	id := newEdgeID(a, b)
	if _, ok := g.attrs[id]; !ok {
		return false
	}
	g.g.RemoveEdge(a, b)
	delete(g.attrs, id)
	return true
}

// neighbours returns the handles adjacent to h in ascending order.
func (g *Graph) neighbours(h int64) []int64 {
	nodes := graph.NodesOf(g.g.From(h))
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	slices.Sort(out)
	return out
}

// Components returns the connected components as sorted handle lists,
// ordered by their lowest handle. Isolated nodes form singleton components.
func (g *Graph) Components() [][]int64 {
	cc := topo.ConnectedComponents(g.g)
	out := make([][]int64, len(cc))
	for i, comp := range cc {
		ids := make([]int64, len(comp))
		for j, n := range comp {
			ids[j] = n.ID()
		}
		slices.Sort(ids)
		out[i] = ids
	}
	slices.SortFunc(out, func(x, y []int64) int {
		return cmp.Compare(x[0], y[0])
	})
	return out
}

// meanWeight returns the mean weight of h's current edges.
func (g *Graph) meanWeight(h int64) (float64, bool) {
	nb := g.neighbours(h)
	if len(nb) == 0 {
		return 0, false
	}
	var sum float64
	for _, n := range nb {
		w, _ := g.g.Weight(h, n)
		sum += w
	}
	return sum / float64(len(nb)), true
}
