// Package analytics builds a GraphFrame over a vertex/edge description
// and runs PageRank, connected components, landmark shortest paths,
// triangle counting, label propagation, a generic Pregel BSP loop and
// motif matching against it. Backed by gonum.org/v1/gonum's graph/simple
// concrete graphs for the pieces that map cleanly onto them
// (ConnectedComponents, BFS distances); the rest is a hand-rolled walk
// over the same CSR-like adjacency, since gonum's own PageRank/label-
// propagation/Pregel helpers don't expose the exact knobs (damping +
// max_iter + L1-delta convergence, synchronous-update label ties) this
// package's callers need.
package analytics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Vertex is one input vertex: an external id plus free-form attributes.
type Vertex struct {
	ID         string
	Attributes map[string]any
}

// Edge is one input edge: a directed (src,dst) pair plus optional
// typed attributes. Every endpoint must name a vertex present in the
// frame's vertex set.
type Edge struct {
	Src, Dst   string
	Attributes map[string]any
}

// GraphFrame is an immutable snapshot of vertices and edges. Algorithms
// never mutate it; building a new frame is the only way to change it,
// matching the snapshot/no-partial-write policy the rest of the engine
// follows for shared state.
type GraphFrame struct {
	ids    []string       // CSR vertex order: the order vertices were given in
	index  map[string]int // external id -> CSR row / gonum node id
	attrs  []map[string]any
	out    [][]int // per-vertex sorted out-neighbour rows
	in     [][]int // per-vertex sorted in-neighbour rows
	eattrs map[[2]int]map[string]any

	directed   *simple.DirectedGraph
	undirected *simple.UndirectedGraph
}

// NewGraphFrame builds a frame from a vertex/edge description, validating
// that every edge endpoint names a known vertex.
func NewGraphFrame(vertices []Vertex, edges []Edge) (*GraphFrame, error) {
	index := make(map[string]int, len(vertices))
	ids := make([]string, len(vertices))
	attrs := make([]map[string]any, len(vertices))
	for i, v := range vertices {
		if _, dup := index[v.ID]; dup {
			return nil, fmt.Errorf("analytics: duplicate vertex id %q", v.ID)
		}
		index[v.ID] = i
		ids[i] = v.ID
		attrs[i] = v.Attributes
	}

	g := &GraphFrame{
		ids:        ids,
		index:      index,
		attrs:      attrs,
		out:        make([][]int, len(vertices)),
		in:         make([][]int, len(vertices)),
		eattrs:     make(map[[2]int]map[string]any),
		directed:   simple.NewDirectedGraph(),
		undirected: simple.NewUndirectedGraph(),
	}
	for i := range ids {
		g.directed.AddNode(simple.Node(i))
		g.undirected.AddNode(simple.Node(i))
	}

	for _, e := range edges {
		s, ok := index[e.Src]
		if !ok {
			return nil, fmt.Errorf("analytics: edge references unknown vertex %q", e.Src)
		}
		d, ok := index[e.Dst]
		if !ok {
			return nil, fmt.Errorf("analytics: edge references unknown vertex %q", e.Dst)
		}
		g.out[s] = append(g.out[s], d)
		g.in[d] = append(g.in[d], s)
		g.eattrs[[2]int{s, d}] = e.Attributes
		if !g.directed.HasEdgeFromTo(int64(s), int64(d)) {
			g.directed.SetEdge(simple.Edge{F: simple.Node(s), T: simple.Node(d)})
		}
		if s != d && !g.undirected.HasEdgeBetween(int64(s), int64(d)) {
			g.undirected.SetEdge(simple.Edge{F: simple.Node(s), T: simple.Node(d)})
		}
	}
	for i := range g.out {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}
	return g, nil
}

// Order is the number of vertices.
func (g *GraphFrame) Order() int { return len(g.ids) }

// VertexID returns the external id of CSR row i.
func (g *GraphFrame) VertexID(i int) string { return g.ids[i] }

// row looks up the CSR row for an external vertex id.
func (g *GraphFrame) row(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// OutNeighbors returns id's sorted out-edge targets.
func (g *GraphFrame) OutNeighbors(id string) []string {
	i, ok := g.row(id)
	if !ok {
		return nil
	}
	return g.rows(g.out[i])
}

// InNeighbors returns id's sorted in-edge sources.
func (g *GraphFrame) InNeighbors(id string) []string {
	i, ok := g.row(id)
	if !ok {
		return nil
	}
	return g.rows(g.in[i])
}

func (g *GraphFrame) rows(rows []int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = g.ids[r]
	}
	return out
}

// gonumNode adapts a CSR row into the graph.Node gonum's simple package
// expects.
func gonumNode(row int) graph.Node { return simple.Node(row) }
