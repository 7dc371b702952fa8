package analytics

import (
	"fmt"
	"regexp"
	"sort"
)

// motifEdge is one parsed pattern edge: (v1)-[e]->(v2). The edge
// variable e is currently unused for matching (edges carry no labels in
// the pattern language) but kept so patterns can name edges for
// readability, mirroring the spec's example syntax.
type motifEdge struct {
	from, edge, to string
}

var motifEdgeRE = regexp.MustCompile(`\(\s*(\w+)\s*\)\s*-\s*\[\s*(\w*)\s*\]\s*->\s*\(\s*(\w+)\s*\)`)

// parseMotif parses `(v1)-[e]->(v2); (v2)-[e2]->(v3); ...`.
func parseMotif(pattern string) ([]motifEdge, error) {
	matches := motifEdgeRE.FindAllStringSubmatch(pattern, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("analytics: no edges parsed from motif pattern %q", pattern)
	}
	edges := make([]motifEdge, len(matches))
	for i, m := range matches {
		edges[i] = motifEdge{from: m[1], edge: m[2], to: m[3]}
	}
	return edges, nil
}

// MotifMatch is one satisfying assignment of pattern variables to
// vertex ids.
type MotifMatch map[string]string

// MotifFind matches a pattern like `(v1)-[e]->(v2); (v2)-[e2]->(v3)`
// against g by subgraph isomorphism (each variable takes a distinct
// vertex). Variables are ordered lowest-degree first; the pattern edges
// are checked only once every variable is assigned, so partial
// assignments are not pruned.
func MotifFind(g *GraphFrame, pattern string) ([]MotifMatch, error) {
	edges, err := parseMotif(pattern)
	if err != nil {
		return nil, err
	}

	vars := orderedVariables(edges)
	degree := func(v string) int {
		n := 0
		for _, e := range edges {
			if e.from == v || e.to == v {
				n++
			}
		}
		return n
	}
	sort.SliceStable(vars, func(i, j int) bool { return degree(vars[i]) < degree(vars[j]) })

	var matches []MotifMatch
	assignment := make(map[string]int, len(vars))
	used := make(map[int]bool, len(vars))

	var search func(i int)
	search = func(i int) {
		if i == len(vars) {
			if satisfies(g, edges, assignment) {
				m := make(MotifMatch, len(assignment))
				for v, row := range assignment {
					m[v] = g.ids[row]
				}
				matches = append(matches, m)
			}
			return
		}
		v := vars[i]
		for row := 0; row < g.Order(); row++ {
			if used[row] {
				continue
			}
			assignment[v] = row
			used[row] = true
			search(i + 1)
			delete(assignment, v)
			used[row] = false
		}
	}
	search(0)

	return matches, nil
}

// orderedVariables returns every distinct variable name in first-seen
// order.
func orderedVariables(edges []motifEdge) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, e := range edges {
		for _, v := range []string{e.from, e.to} {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// satisfies reports whether assignment realizes every pattern edge as a
// real directed edge in g.
func satisfies(g *GraphFrame, edges []motifEdge, assignment map[string]int) bool {
	for _, e := range edges {
		from, to := assignment[e.from], assignment[e.to]
		found := false
		for _, d := range g.out[from] {
			if d == to {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
