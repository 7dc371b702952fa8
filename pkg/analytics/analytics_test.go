package analytics

import (
	"context"
	"math"
	"testing"
)

func mustFrame(t *testing.T, vertexIDs []string, edges []Edge) *GraphFrame {
	t.Helper()
	vs := make([]Vertex, len(vertexIDs))
	for i, id := range vertexIDs {
		vs[i] = Vertex{ID: id}
	}
	g, err := NewGraphFrame(vs, edges)
	if err != nil {
		t.Fatalf("NewGraphFrame: %v", err)
	}
	return g
}

// Scenario F: PageRank on a 3-cycle with damping 0.85 leaves every rank
// at 1/3 within 1e-6.
func TestPageRank_ThreeCycle(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"}, {Src: "c", Dst: "a"},
	})
	ranks := PageRank(g, 0.85, 100)

	var sum float64
	for _, id := range []string{"a", "b", "c"} {
		r := ranks[id]
		if math.Abs(r-1.0/3.0) > 1e-6 {
			t.Errorf("rank(%s) = %v, want ~1/3", id, r)
		}
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("ranks summed to %v, want 1.0", sum)
	}
}

// Testable property 9: PageRank output sums to 1.0 even with a sink.
func TestPageRank_SumsToOneWithSink(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"},
	})
	ranks := PageRank(g, 0.85, 100)
	var sum float64
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("ranks summed to %v, want 1.0", sum)
	}
}

// Testable property 10: two vertices share a component id iff they're
// weakly connected.
func TestConnectedComponents_WeaklyConnected(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c", "d"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "c", Dst: "d"},
	})
	comps := ConnectedComponents(g)
	if comps["a"] != comps["b"] {
		t.Errorf("a and b should share a component")
	}
	if comps["c"] != comps["d"] {
		t.Errorf("c and d should share a component")
	}
	if comps["a"] == comps["c"] {
		t.Errorf("a and c should not share a component")
	}
}

func TestShortestPaths_HopCountsFromLandmark(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c", "d"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"},
	})
	dist := ShortestPaths(g, []string{"a"})
	if dist["a"]["a"] != 0 || dist["b"]["a"] != 1 || dist["c"]["a"] != 2 {
		t.Fatalf("unexpected distances: %v", dist)
	}
	if dist["d"]["a"] != Unreachable {
		t.Fatalf("expected d unreachable from a, got %v", dist["d"]["a"])
	}
}

func TestTriangleCount_SingleTriangle(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"}, {Src: "c", Dst: "a"},
	})
	if got := TriangleCount(g); got != 1 {
		t.Fatalf("expected 1 triangle, got %d", got)
	}
}

func TestLabelPropagation_TwoCliquesConverge(t *testing.T) {
	// Two triangles {a,b,e} and {c,d,f}: under synchronous updates a
	// 2-vertex clique would swap labels forever, a triangle settles.
	g := mustFrame(t, []string{"a", "b", "c", "d", "e", "f"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "e"}, {Src: "e", Dst: "a"},
		{Src: "c", Dst: "d"}, {Src: "d", Dst: "f"}, {Src: "f", Dst: "c"},
	})
	labels := LabelPropagation(g, 10)
	if labels["a"] != labels["b"] {
		t.Errorf("a and b should converge to the same label")
	}
	if labels["c"] != labels["d"] {
		t.Errorf("c and d should converge to the same label")
	}
	if labels["a"] == labels["c"] {
		t.Errorf("disconnected cliques should not share a label")
	}
}

// A 2-hop directed chain under a sum-propagation program: each vertex
// sums incoming messages into its value, forwards the sum to its
// out-neighbours and votes to halt every superstep, so only delivered
// messages reactivate it.
func TestPregelBSP_SumPropagation(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"},
	})
	program := func(s PregelVertexState, inbox []any) (PregelVertexState, []PregelMessage) {
		sum := s.Value.(int)
		for _, m := range inbox {
			sum += m.(int)
		}
		s.Value = sum
		var out []PregelMessage
		for _, n := range g.OutNeighbors(s.ID) {
			out = append(out, PregelMessage{To: n, Payload: sum})
		}
		s.Halted = true
		return s, out
	}
	initial := func(id string) any {
		if id == "a" {
			return 1
		}
		return 0
	}
	states, err := PregelBSP(context.Background(), g, initial, program, 10)
	if err != nil {
		t.Fatalf("PregelBSP: %v", err)
	}
	if states["c"].Value.(int) != 1 {
		t.Fatalf("expected c to accumulate 1, got %v", states["c"].Value)
	}
}

func TestMotifFind_TriangleMatchesAllRotations(t *testing.T) {
	g := mustFrame(t, []string{"a", "b", "c"}, []Edge{
		{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"}, {Src: "c", Dst: "a"},
	})
	matches, err := MotifFind(g, "(v1)-[e]->(v2); (v2)-[e2]->(v3); (v3)-[e3]->(v1)")
	if err != nil {
		t.Fatalf("MotifFind: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 rotations of the triangle, got %d: %v", len(matches), matches)
	}
}
