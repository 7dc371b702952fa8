package analytics

import "gonum.org/v1/gonum/graph/topo"

// ConnectedComponents returns each vertex's component root: two vertices
// map to the same root iff they're in the same weakly-connected
// component of the undirected view. The root is the lowest CSR row in
// the component, so results are deterministic run to run.
func ConnectedComponents(g *GraphFrame) map[string]string {
	out := make(map[string]string, g.Order())
	for _, comp := range topo.ConnectedComponents(g.undirected) {
		root := comp[0].ID()
		for _, n := range comp {
			if n.ID() < root {
				root = n.ID()
			}
		}
		for _, n := range comp {
			out[g.ids[n.ID()]] = g.ids[root]
		}
	}
	return out
}
