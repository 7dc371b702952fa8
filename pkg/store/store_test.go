package store

import (
	"context"
	"testing"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
)

func quad(s, p, o string) *rdf.Quad {
	return rdf.NewQuad(rdf.NewNamedNode(s), rdf.NewNamedNode(p), rdf.NewLiteral(o), rdf.NewDefaultGraph())
}

func TestInsertQuad_DuplicateReportsNotNew(t *testing.T) {
	ts := New()
	q := quad("http://x/a", "http://x/p", "v")

	inserted, err := ts.InsertQuad(q)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = ts.InsertQuad(q)
	if err != nil || inserted {
		t.Fatalf("duplicate insert should report false, got inserted=%v err=%v", inserted, err)
	}
	if ts.Count() != 1 {
		t.Fatalf("expected count 1, got %d", ts.Count())
	}
}

func TestDeleteQuad_NeverInternedIsANoop(t *testing.T) {
	ts := New()
	// Nothing has ever been inserted, so every term is unknown to the
	// dictionary; DeleteQuad must short-circuit rather than intern.
	removed, err := ts.DeleteQuad(quad("http://x/a", "http://x/p", "v"))
	if err != nil || removed {
		t.Fatalf("expected no-op delete, got removed=%v err=%v", removed, err)
	}
	if ts.Count() != 0 {
		t.Fatalf("expected count 0, got %d", ts.Count())
	}
}

func TestContainsQuad(t *testing.T) {
	ts := New()
	q := quad("http://x/a", "http://x/p", "v")
	if ok, err := ts.ContainsQuad(q); err != nil || ok {
		t.Fatalf("expected absent before insert, got ok=%v err=%v", ok, err)
	}
	if _, err := ts.InsertQuad(q); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if ok, err := ts.ContainsQuad(q); err != nil || !ok {
		t.Fatalf("expected present after insert, got ok=%v err=%v", ok, err)
	}
	if _, err := ts.DeleteQuad(q); err != nil {
		t.Fatalf("DeleteQuad: %v", err)
	}
	if ok, err := ts.ContainsQuad(q); err != nil || ok {
		t.Fatalf("expected absent after delete, got ok=%v err=%v", ok, err)
	}
}

func TestQuery_UnboundTermMatchesNothingWithoutInterning(t *testing.T) {
	ts := New()
	// The store has never seen "http://x/never"; a pattern bound to it
	// must come back empty instead of interning it as a side effect.
	it, err := ts.Query(&Pattern{
		Subject:   rdf.NewNamedNode("http://x/never"),
		Predicate: NewVariable("p"),
		Object:    NewVariable("o"),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()
	if it.Next() {
		t.Fatalf("expected no matches for a never-seen term")
	}
	if _, ok := ts.dict.Lookup(rdf.NewNamedNode("http://x/never")); ok {
		t.Fatalf("Query must not intern a bound term it found no match for")
	}
}

func TestQuery_VariableBindingReturnsAllMatches(t *testing.T) {
	ts := New()
	p := rdf.NewNamedNode("http://x/knows")
	alice := rdf.NewNamedNode("http://x/alice")
	bob := rdf.NewNamedNode("http://x/bob")
	carol := rdf.NewNamedNode("http://x/carol")
	for _, q := range []*rdf.Quad{
		rdf.NewQuad(alice, p, bob, rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, p, carol, rdf.NewDefaultGraph()),
	} {
		if _, err := ts.InsertQuad(q); err != nil {
			t.Fatalf("InsertQuad: %v", err)
		}
	}

	it, err := ts.Query(&Pattern{Subject: alice, Predicate: p, Object: NewVariable("o")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()
	n := 0
	for it.Next() {
		if _, err := it.Quad(); err != nil {
			t.Fatalf("Quad: %v", err)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 matches, got %d", n)
	}
}

func TestClearGraph_RemovesOnlyThatGraph(t *testing.T) {
	ts := New()
	g1 := rdf.NewNamedNode("http://x/g1")
	g2 := rdf.NewNamedNode("http://x/g2")
	a := rdf.NewNamedNode("http://x/a")
	p := rdf.NewNamedNode("http://x/p")
	o := rdf.NewLiteral("v")

	if _, err := ts.InsertQuad(rdf.NewQuad(a, p, o, g1)); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if _, err := ts.InsertQuad(rdf.NewQuad(a, p, o, g2)); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
	if err := ts.ClearGraph(g1); err != nil {
		t.Fatalf("ClearGraph: %v", err)
	}
	c1, err := ts.CountGraph(g1)
	if err != nil || c1 != 0 {
		t.Fatalf("expected g1 empty, got count=%d err=%v", c1, err)
	}
	c2, err := ts.CountGraph(g2)
	if err != nil || c2 != 1 {
		t.Fatalf("expected g2 untouched, got count=%d err=%v", c2, err)
	}
}

func TestInsertQuadsBatch_AllVisibleOnSuccess(t *testing.T) {
	ts := New()
	quads := []*rdf.Quad{
		quad("http://x/a", "http://x/p", "1"),
		quad("http://x/b", "http://x/p", "2"),
		quad("http://x/c", "http://x/p", "3"),
	}
	if err := ts.InsertQuadsBatch(context.Background(), quads); err != nil {
		t.Fatalf("InsertQuadsBatch: %v", err)
	}
	if ts.Count() != 3 {
		t.Fatalf("expected 3 quads visible, got %d", ts.Count())
	}
}

func TestInsertQuadsBatch_CancellationRollsBackToPreOperation(t *testing.T) {
	ts := New()
	// Seed one quad outside the batch so we can tell a full rollback
	// (back to this baseline) apart from an empty store.
	baseline := quad("http://x/baseline", "http://x/p", "0")
	if _, err := ts.InsertQuad(baseline); err != nil {
		t.Fatalf("seed InsertQuad: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	quads := []*rdf.Quad{
		quad("http://x/a", "http://x/p", "1"),
		quad("http://x/b", "http://x/p", "2"),
	}
	err := ts.InsertQuadsBatch(ctx, quads)
	if err == nil {
		t.Fatalf("expected a cancellation error")
	}
	var cancelled *rdferr.CancelledErr
	if !isCancelled(err, &cancelled) {
		t.Fatalf("expected *rdferr.CancelledErr, got %T: %v", err, err)
	}
	if ts.Count() != 1 {
		t.Fatalf("expected rollback to the pre-call baseline (1 quad), got %d", ts.Count())
	}
	if ok, _ := ts.ContainsQuad(baseline); !ok {
		t.Fatalf("baseline quad should survive a cancelled batch")
	}
}

func isCancelled(err error, target **rdferr.CancelledErr) bool {
	ce, ok := err.(*rdferr.CancelledErr)
	if ok {
		*target = ce
	}
	return ok
}
