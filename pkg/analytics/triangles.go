package analytics

// TriangleCount enumerates ordered triangles v1<v2<v3 (CSR row order) via
// adjacency-intersection over the undirected view and returns the total.
func TriangleCount(g *GraphFrame) int {
	neighbors := make([][]int, g.Order())
	for v1 := range g.ids {
		set := make(map[int]bool)
		for _, n := range g.out[v1] {
			set[n] = true
		}
		for _, n := range g.in[v1] {
			set[n] = true
		}
		delete(set, v1)
		row := make([]int, 0, len(set))
		for n := range set {
			row = append(row, n)
		}
		neighbors[v1] = row
	}

	adj := make([]map[int]bool, g.Order())
	for v, row := range neighbors {
		m := make(map[int]bool, len(row))
		for _, n := range row {
			m[n] = true
		}
		adj[v] = m
	}

	count := 0
	for v1 := range g.ids {
		for _, v2 := range neighbors[v1] {
			if v2 <= v1 {
				continue
			}
			for _, v3 := range neighbors[v2] {
				if v3 <= v2 {
					continue
				}
				if adj[v1][v3] {
					count++
				}
			}
		}
	}
	return count
}
