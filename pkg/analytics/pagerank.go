package analytics

// PageRank runs power iteration to convergence or max_iter, whichever
// comes first. Initial rank is uniform (1/|V|); a sink (out-degree 0)
// distributes its rank uniformly over every vertex rather than losing
// it, so the total stays 1.0 even in graphs with sinks.
func PageRank(g *GraphFrame, damping float64, maxIter int) map[string]float64 {
	n := g.Order()
	rank := make([]float64, n)
	if n == 0 {
		return map[string]float64{}
	}
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	next := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		var sinkMass float64
		for i := range next {
			next[i] = (1 - damping) / float64(n)
		}
		for i := 0; i < n; i++ {
			if len(g.out[i]) == 0 {
				sinkMass += rank[i]
				continue
			}
			share := damping * rank[i] / float64(len(g.out[i]))
			for _, d := range g.out[i] {
				next[d] += share
			}
		}
		if sinkMass > 0 {
			redistribute := damping * sinkMass / float64(n)
			for i := range next {
				next[i] += redistribute
			}
		}

		var delta float64
		for i := range next {
			d := next[i] - rank[i]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		copy(rank, next)
		if delta < 1e-6 {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, id := range g.ids {
		out[id] = rank[i]
	}
	return out
}
