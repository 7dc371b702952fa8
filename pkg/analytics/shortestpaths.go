package analytics

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// Unreachable is the +∞ sentinel for a vertex with no path from a
// landmark.
var Unreachable = math.Inf(1)

// ShortestPaths runs one BFS per landmark over the directed view and
// returns, for every vertex, its hop-count distance from each landmark.
// A vertex absent from a landmark's reachable set maps to Unreachable.
func ShortestPaths(g *GraphFrame, landmarks []string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, g.Order())
	for _, id := range g.ids {
		row := make(map[string]float64, len(landmarks))
		for _, lm := range landmarks {
			row[lm] = Unreachable
		}
		out[id] = row
	}

	for _, lm := range landmarks {
		start, ok := g.row(lm)
		if !ok {
			continue
		}
		out[lm][lm] = 0

		depth := map[int64]int{int64(start): 0}
		bf := traverse.BreadthFirst{
			Visit: func(u, v graph.Node) {
				depth[v.ID()] = depth[u.ID()] + 1
			},
		}
		bf.Walk(g.directed, gonumNode(start), func(graph.Node, int) bool { return false })

		for row, d := range depth {
			out[g.ids[row]][lm] = float64(d)
		}
	}
	return out
}
