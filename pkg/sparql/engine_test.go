package sparql

import (
	"fmt"
	"testing"
	"time"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/executor"
	"github.com/arbordb/arbor/pkg/store"
)

func seedPeople(t *testing.T, graph rdf.Term, n int) *store.TripleStore {
	t.Helper()
	ts := store.New()
	name := rdf.NewNamedNode("http://example.org/name")
	for i := 0; i < n; i++ {
		p := rdf.NewNamedNode(fmt.Sprintf("http://example.org/p%d", i))
		if _, err := ts.InsertQuad(rdf.NewQuad(p, name, rdf.NewLiteral(fmt.Sprintf("Person%d", i)), graph)); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}
	return ts
}

func TestDefaultOptions_EnablesWCOJ(t *testing.T) {
	opts := DefaultOptions()
	if !opts.EnableWCOJ {
		t.Fatalf("DefaultOptions: expected EnableWCOJ true, got false")
	}
	if opts.MaxRows != 0 || opts.PathDepthLimit != 0 {
		t.Fatalf("DefaultOptions: expected no row/depth caps, got MaxRows=%d PathDepthLimit=%d", opts.MaxRows, opts.PathDepthLimit)
	}
}

func TestEngine_Query_UsesDefaultPrefixesAndBase(t *testing.T) {
	ts := store.New()
	name := rdf.NewNamedNode("http://example.org/name")
	alice := rdf.NewNamedNode("http://example.org/alice")
	if _, err := ts.InsertQuad(rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}

	opts := DefaultOptions()
	opts.DefaultPrefixes = map[string]string{"ex": "http://example.org/"}
	eng := NewEngine(ts, opts)

	result, err := eng.Query(`SELECT ?n WHERE { ex:alice ex:name ?n }`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	sel, ok := result.(*executor.SelectResult)
	if !ok {
		t.Fatalf("expected a SelectResult, got %T", result)
	}
	if len(sel.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(sel.Bindings))
	}
	got, ok := sel.Bindings[0].Vars["n"].(*rdf.Literal)
	if !ok || got.Value != "Alice" {
		t.Fatalf("expected n=Alice, got %v", sel.Bindings[0].Vars["n"])
	}
}

func TestEngine_Execute_MaxRowsExceeded(t *testing.T) {
	ts := seedPeople(t, rdf.NewDefaultGraph(), 5)
	opts := DefaultOptions()
	opts.MaxRows = 3
	eng := NewEngine(ts, opts)

	_, err := eng.Execute(QueryRequest{Query: `SELECT ?p ?n WHERE { ?p <http://example.org/name> ?n }`})
	if err == nil {
		t.Fatalf("expected a CardinalityLimit error, got none")
	}
	limitErr, ok := err.(*rdferr.CardinalityLimitErr)
	if !ok {
		t.Fatalf("expected *rdferr.CardinalityLimitErr, got %T: %v", err, err)
	}
	if limitErr.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", limitErr.Limit)
	}
}

func TestEngine_Execute_LimitOffsetWindowsBindings(t *testing.T) {
	ts := seedPeople(t, rdf.NewDefaultGraph(), 5)
	eng := NewEngine(ts, DefaultOptions())

	resp, err := eng.Execute(QueryRequest{
		Query:  `SELECT ?p ?n WHERE { ?p <http://example.org/name> ?n }`,
		Limit:  2,
		Offset: 1,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sel, ok := resp.Result.(*executor.SelectResult)
	if !ok {
		t.Fatalf("expected a SelectResult, got %T", resp.Result)
	}
	if len(sel.Bindings) != 2 {
		t.Fatalf("expected 2 bindings after limit/offset, got %d", len(sel.Bindings))
	}
}

func TestEngine_Execute_GraphScopesToNamedGraph(t *testing.T) {
	defaultGraphTerm := rdf.NewDefaultGraph()
	namedGraph := rdf.NewNamedNode("http://example.org/g1")

	ts := store.New()
	name := rdf.NewNamedNode("http://example.org/name")
	inDefault := rdf.NewNamedNode("http://example.org/default-person")
	inNamed := rdf.NewNamedNode("http://example.org/named-person")
	if _, err := ts.InsertQuad(rdf.NewQuad(inDefault, name, rdf.NewLiteral("Default"), defaultGraphTerm)); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if _, err := ts.InsertQuad(rdf.NewQuad(inNamed, name, rdf.NewLiteral("Named"), namedGraph)); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}

	eng := NewEngine(ts, DefaultOptions())
	resp, err := eng.Execute(QueryRequest{
		Query: `SELECT ?p WHERE { ?p <http://example.org/name> ?n }`,
		Graph: "http://example.org/g1",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sel, ok := resp.Result.(*executor.SelectResult)
	if !ok {
		t.Fatalf("expected a SelectResult, got %T", resp.Result)
	}
	if len(sel.Bindings) != 1 {
		t.Fatalf("expected 1 binding scoped to the named graph, got %d", len(sel.Bindings))
	}
	p, ok := sel.Bindings[0].Vars["p"].(*rdf.NamedNode)
	if !ok || p.IRI != inNamed.IRI {
		t.Fatalf("expected the named-graph person, got %v", sel.Bindings[0].Vars["p"])
	}
}

func TestEngine_Execute_IncludeStatsReportsQuadCount(t *testing.T) {
	ts := seedPeople(t, rdf.NewDefaultGraph(), 4)
	eng := NewEngine(ts, DefaultOptions())

	resp, err := eng.Execute(QueryRequest{
		Query:        `SELECT ?p WHERE { ?p <http://example.org/name> ?n }`,
		IncludeStats: true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Stats == nil {
		t.Fatalf("expected stats to be populated")
	}
	if resp.Stats.TotalQuads != 4 {
		t.Fatalf("expected TotalQuads=4, got %d", resp.Stats.TotalQuads)
	}

	resp2, err := eng.Execute(QueryRequest{Query: `SELECT ?p WHERE { ?p <http://example.org/name> ?n }`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp2.Stats != nil {
		t.Fatalf("expected nil stats when IncludeStats is false")
	}
}

func TestEngine_Execute_PathDepthLimitExceeded(t *testing.T) {
	ts := store.New()
	r := rdf.NewNamedNode("http://example.org/r")
	prev := rdf.NewNamedNode("http://example.org/n0")
	for i := 1; i <= 5; i++ {
		next := rdf.NewNamedNode(fmt.Sprintf("http://example.org/n%d", i))
		if _, err := ts.InsertQuad(rdf.NewQuad(prev, r, next, rdf.NewDefaultGraph())); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
		prev = next
	}

	opts := DefaultOptions()
	opts.PathDepthLimit = 2
	eng := NewEngine(ts, opts)

	_, err := eng.Execute(QueryRequest{Query: `SELECT ?x WHERE { <http://example.org/n0> <http://example.org/r>+ ?x }`})
	if err == nil {
		t.Fatalf("expected a CardinalityLimit error for exceeding path_depth_limit, got none")
	}
	if _, ok := err.(*rdferr.CardinalityLimitErr); !ok {
		t.Fatalf("expected *rdferr.CardinalityLimitErr, got %T: %v", err, err)
	}
}

func TestEngine_Execute_NoTimeoutRunsNormally(t *testing.T) {
	ts := seedPeople(t, rdf.NewDefaultGraph(), 2)
	eng := NewEngine(ts, DefaultOptions())

	resp, err := eng.Execute(QueryRequest{
		Query:   `SELECT ?p WHERE { ?p <http://example.org/name> ?n }`,
		Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sel, ok := resp.Result.(*executor.SelectResult)
	if !ok || len(sel.Bindings) != 2 {
		t.Fatalf("expected 2 bindings within a generous timeout, got %+v", resp.Result)
	}
}
