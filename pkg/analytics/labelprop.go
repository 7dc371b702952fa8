package analytics

// LabelPropagation assigns each vertex its own id as the initial label,
// then repeatedly has every vertex adopt the most frequent label among
// its undirected neighbors, ties broken by the lowest label id. The
// update is synchronous (every vertex reads the prior round's labels).
// Stops at max_iter or once a round changes nothing.
func LabelPropagation(g *GraphFrame, maxIter int) map[string]string {
	n := g.Order()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	neighbors := make([][]int, n)
	for v := 0; v < n; v++ {
		set := make(map[int]bool)
		for _, u := range g.out[v] {
			set[u] = true
		}
		for _, u := range g.in[v] {
			set[u] = true
		}
		delete(set, v)
		row := make([]int, 0, len(set))
		for u := range set {
			row = append(row, u)
		}
		neighbors[v] = row
	}

	next := make([]int, n)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for v := 0; v < n; v++ {
			if len(neighbors[v]) == 0 {
				next[v] = labels[v]
				continue
			}
			counts := make(map[int]int, len(neighbors[v]))
			for _, u := range neighbors[v] {
				counts[labels[u]]++
			}
			best, bestCount := labels[v], -1
			for label, c := range counts {
				if c > bestCount || (c == bestCount && label < best) {
					best, bestCount = label, c
				}
			}
			next[v] = best
			if best != labels[v] {
				changed = true
			}
		}
		copy(labels, next)
		if !changed {
			break
		}
	}

	out := make(map[string]string, n)
	for i, id := range g.ids {
		out[id] = g.ids[labels[i]]
	}
	return out
}
