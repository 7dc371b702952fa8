package executor

import (
	"sort"
	"testing"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/sparql/planner"
	"github.com/arbordb/arbor/pkg/store"
)

func run(t *testing.T, ts *store.TripleStore, query string, prefixes map[string]string) QueryResult {
	t.Helper()
	p := parser.NewParser(query, "", prefixes)
	q, err := p.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := planner.NewPlanner(&planner.Statistics{TotalQuads: int64(ts.Count())}).Plan(q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	result, err := NewExecutor(ts).Execute(plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result
}

// Scenario D: three persons each with name and age; SELECT ?n ?a pairs
// each name with its own age, three solutions total.
func TestExecute_StarPattern(t *testing.T) {
	ts := store.New()
	name := rdf.NewNamedNode("name")
	age := rdf.NewNamedNode("age")

	people := []struct {
		id   string
		name string
		age  int64
	}{
		{"alice", "Alice", 30},
		{"bob", "Bob", 25},
		{"carol", "Carol", 28},
	}
	for _, person := range people {
		p := rdf.NewNamedNode(person.id)
		if _, err := ts.InsertQuad(rdf.NewQuad(p, name, rdf.NewLiteral(person.name), rdf.NewDefaultGraph())); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
		if _, err := ts.InsertQuad(rdf.NewQuad(p, age, rdf.NewIntegerLiteral(person.age), rdf.NewDefaultGraph())); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}

	result := run(t, ts, `SELECT ?n ?a WHERE { ?p <name> ?n . ?p <age> ?a }`, nil)
	sel, ok := result.(*SelectResult)
	if !ok {
		t.Fatalf("expected a SelectResult, got %T", result)
	}
	if len(sel.Bindings) != 3 {
		t.Fatalf("expected 3 solutions, got %d", len(sel.Bindings))
	}
	if len(sel.Variables) != 2 || sel.Variables[0].Name != "n" || sel.Variables[1].Name != "a" {
		t.Fatalf("expected projection order [n,a], got %v", sel.Variables)
	}

	gotPairs := make(map[string]string, 3)
	for _, b := range sel.Bindings {
		n, ok1 := b.Vars["n"].(*rdf.Literal)
		a, ok2 := b.Vars["a"].(*rdf.Literal)
		if !ok1 || !ok2 {
			t.Fatalf("expected literal bindings, got n=%v a=%v", b.Vars["n"], b.Vars["a"])
		}
		gotPairs[n.Value] = a.Value
	}
	want := map[string]string{"Alice": "30", "Bob": "25", "Carol": "28"}
	for n, a := range want {
		if gotPairs[n] != a {
			t.Errorf("name %s: expected age %s, got %s", n, a, gotPairs[n])
		}
	}
}

// TestExecute_ConstructFreshBlankNodePerSolution checks a CONSTRUCT
// template containing a blank node: each solution must get its own blank
// node identity, not a single one shared across every produced triple.
// The exact synthesized labels are an implementation detail, so the
// result is checked for isomorphism against the expected shape rather
// than exact blank node ids.
func TestExecute_ConstructFreshBlankNodePerSolution(t *testing.T) {
	ts := store.New()
	name := rdf.NewNamedNode("name")
	alice := rdf.NewNamedNode("alice")
	bob := rdf.NewNamedNode("bob")
	if _, err := ts.InsertQuad(rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if _, err := ts.InsertQuad(rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}

	result := run(t, ts, `CONSTRUCT { _:tag <label> ?n } WHERE { ?p <name> ?n }`, nil)
	cr, ok := result.(*ConstructResult)
	if !ok {
		t.Fatalf("expected a ConstructResult, got %T", result)
	}
	if len(cr.Triples) != 2 {
		t.Fatalf("expected 2 triples (one blank node each), got %d", len(cr.Triples))
	}

	label := rdf.NewNamedNode("label")
	want := []*rdf.Triple{
		rdf.NewTriple(rdf.NewBlankNode("b0"), label, rdf.NewLiteral("Alice")),
		rdf.NewTriple(rdf.NewBlankNode("b1"), label, rdf.NewLiteral("Bob")),
	}
	if !rdf.AreGraphsIsomorphic(want, cr.Triples) {
		t.Fatalf("CONSTRUCT output not isomorphic to expected shape: got %+v", cr.Triples)
	}

	// Each triple's subject blank node must be distinct, not reused
	// across solutions.
	b1, ok1 := cr.Triples[0].Subject.(*rdf.BlankNode)
	b2, ok2 := cr.Triples[1].Subject.(*rdf.BlankNode)
	if !ok1 || !ok2 {
		t.Fatalf("expected blank node subjects, got %T and %T", cr.Triples[0].Subject, cr.Triples[1].Subject)
	}
	if b1.ID == b2.ID {
		t.Fatalf("expected distinct blank nodes per solution, both got %q", b1.ID)
	}
}

// Scenario E: :a :r :b . :b :r :c . :c :r :d .
// :a :r+ ?x -> {b,c,d}; :a :r* ?x -> {a,b,c,d}.
func TestExecute_PropertyPathClosure(t *testing.T) {
	ts := store.New()
	ns := "http://example.org/"
	r := rdf.NewNamedNode(ns + "r")
	a, b, c, d := rdf.NewNamedNode(ns+"a"), rdf.NewNamedNode(ns+"b"), rdf.NewNamedNode(ns+"c"), rdf.NewNamedNode(ns+"d")
	for _, q := range []*rdf.Quad{
		rdf.NewQuad(a, r, b, rdf.NewDefaultGraph()),
		rdf.NewQuad(b, r, c, rdf.NewDefaultGraph()),
		rdf.NewQuad(c, r, d, rdf.NewDefaultGraph()),
	} {
		if _, err := ts.InsertQuad(q); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}
	prefixes := map[string]string{"": ns}

	plusResult := run(t, ts, `SELECT ?x WHERE { :a :r+ ?x }`, prefixes)
	plusGot := xValues(t, plusResult)
	sort.Strings(plusGot)
	if want := []string{ns + "b", ns + "c", ns + "d"}; !equalStrings(plusGot, want) {
		t.Fatalf(":r+ expected %v, got %v", want, plusGot)
	}

	starResult := run(t, ts, `SELECT ?x WHERE { :a :r* ?x }`, prefixes)
	starGot := xValues(t, starResult)
	sort.Strings(starGot)
	if want := []string{ns + "a", ns + "b", ns + "c", ns + "d"}; !equalStrings(starGot, want) {
		t.Fatalf(":r* expected %v, got %v", want, starGot)
	}
}

func xValues(t *testing.T, result QueryResult) []string {
	t.Helper()
	sel, ok := result.(*SelectResult)
	if !ok {
		t.Fatalf("expected a SelectResult, got %T", result)
	}
	out := make([]string, 0, len(sel.Bindings))
	for _, b := range sel.Bindings {
		n, ok := b.Vars["x"].(*rdf.NamedNode)
		if !ok {
			t.Fatalf("expected x to bind a NamedNode, got %T", b.Vars["x"])
		}
		out = append(out, n.IRI)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
