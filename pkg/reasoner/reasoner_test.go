package reasoner

import (
	"context"
	"sort"
	"testing"

	"github.com/arbordb/arbor/pkg/datalog"
	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/store"
)

func mustInsert(t *testing.T, ts *store.TripleStore, s, p, o rdf.Term) {
	t.Helper()
	if _, err := ts.InsertQuad(rdf.NewQuad(s, p, o, rdf.NewDefaultGraph())); err != nil {
		t.Fatalf("InsertQuad: %v", err)
	}
}

// Scenario A: x:adjacentTo a owl:SymmetricProperty; x:A adjacentTo x:B;
// x:B adjacentTo x:C. After reasoning, B's neighbours are {A, C}.
func TestDeduce_SymmetricAdjacency(t *testing.T) {
	ts := store.New()
	adjacentTo := rdf.NewNamedNode("http://x/adjacentTo")
	a := rdf.NewNamedNode("http://x/A")
	b := rdf.NewNamedNode("http://x/B")
	c := rdf.NewNamedNode("http://x/C")

	mustInsert(t, ts, adjacentTo, rdfType, owlSymmetricClass)
	mustInsert(t, ts, a, adjacentTo, b)
	mustInsert(t, ts, b, adjacentTo, c)

	r := New(ts)
	result, err := r.Deduce(context.Background())
	if err != nil {
		t.Fatalf("Deduce: %v", err)
	}
	if result.RulesFired != 1 {
		t.Fatalf("expected exactly 1 rule to fire, got %d", result.RulesFired)
	}

	for _, id := range result.Proofs {
		if !r.ValidateProof(id) {
			t.Errorf("proof %s failed to validate", id)
		}
	}

	if _, err := r.Reassert(result); err != nil {
		t.Fatalf("Reassert: %v", err)
	}

	it, err := ts.Query(&store.Pattern{Subject: b, Predicate: adjacentTo, Object: store.NewVariable("y")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()
	var got []string
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			t.Fatalf("Quad: %v", err)
		}
		got = append(got, q.Object.String())
	}
	sort.Strings(got)
	want := []string{a.String(), c.String()}
	sort.Strings(want)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected neighbours %v, got %v", want, got)
	}
}

// Scenario B: x:ancestorOf a owl:TransitiveProperty; x:A ancestorOf x:B;
// x:B ancestorOf x:C. After reasoning, A's ancestorOf set is the
// transitive closure {B, C}, derived via the automatic owl: lifter
// (not AddRule, unlike TestDeduce_CircularPaymentViaCustomRule below).
func TestDeduce_TransitivePropertyLifting(t *testing.T) {
	ts := store.New()
	ancestorOf := rdf.NewNamedNode("http://x/ancestorOf")
	a := rdf.NewNamedNode("http://x/A")
	b := rdf.NewNamedNode("http://x/B")
	c := rdf.NewNamedNode("http://x/C")

	mustInsert(t, ts, ancestorOf, rdfType, owlTransitiveClass)
	mustInsert(t, ts, a, ancestorOf, b)
	mustInsert(t, ts, b, ancestorOf, c)

	r := New(ts)
	result, err := r.Deduce(context.Background())
	if err != nil {
		t.Fatalf("Deduce: %v", err)
	}
	if result.RulesFired != 1 {
		t.Fatalf("expected exactly 1 rule to fire, got %d", result.RulesFired)
	}

	found := false
	for _, f := range result.DerivedFacts {
		if f.Predicate == ancestorOf.IRI && f.Args[0].Equals(a) && f.Args[1].Equals(c) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ancestorOf(A,C) to be derived, got %v", result.DerivedFacts)
	}

	for _, id := range result.Proofs {
		if !r.ValidateProof(id) {
			t.Errorf("proof %s failed to validate", id)
		}
	}

	if _, err := r.Reassert(result); err != nil {
		t.Fatalf("Reassert: %v", err)
	}

	it, err := ts.Query(&store.Pattern{Subject: a, Predicate: ancestorOf, Object: store.NewVariable("y")})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer it.Close()
	var got []string
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			t.Fatalf("Quad: %v", err)
		}
		got = append(got, q.Object.String())
	}
	sort.Strings(got)
	want := []string{b.String(), c.String()}
	sort.Strings(want)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected A's closure %v, got %v", want, got)
	}
}

// Testable property 7: for owl:SymmetricProperty P, P(a,b) ground or
// derived implies P(b,a) after reasoning.
func TestDeduce_SymmetricPropertyInvariant(t *testing.T) {
	ts := store.New()
	knows := rdf.NewNamedNode("http://x/knows")
	alice := rdf.NewNamedNode("http://x/alice")
	bob := rdf.NewNamedNode("http://x/bob")

	mustInsert(t, ts, knows, rdfType, owlSymmetricClass)
	mustInsert(t, ts, alice, knows, bob)

	r := New(ts)
	result, err := r.Deduce(context.Background())
	if err != nil {
		t.Fatalf("Deduce: %v", err)
	}
	found := false
	for _, f := range result.DerivedFacts {
		if f.Predicate == knows.IRI && f.Args[0].Equals(bob) && f.Args[1].Equals(alice) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected knows(bob,alice) to be derived, got %v", result.DerivedFacts)
	}
}

// Scenario C via a caller-supplied custom rule (payment cycles aren't an
// OWL property characteristic, so they need AddRule rather than the
// automatic owl:/rdfs: lifter).
func TestDeduce_CircularPaymentViaCustomRule(t *testing.T) {
	ts := store.New()
	transfers := rdf.NewNamedNode("http://x/transfers")
	alice := rdf.NewNamedNode("http://x/alice")
	bob := rdf.NewNamedNode("http://x/bob")
	carol := rdf.NewNamedNode("http://x/carol")

	mustInsert(t, ts, alice, transfers, bob)
	mustInsert(t, ts, bob, transfers, carol)
	mustInsert(t, ts, carol, transfers, alice)

	r := New(ts)
	r.AddRule(datalog.Rule{
		Name: "transfers-transitive",
		Head: datalog.Atom{Predicate: transfers.IRI, Args: []datalog.Term{datalog.Variable("X"), datalog.Variable("Z")}},
		Body: []datalog.Atom{
			{Predicate: transfers.IRI, Args: []datalog.Term{datalog.Variable("X"), datalog.Variable("Y")}},
			{Predicate: transfers.IRI, Args: []datalog.Term{datalog.Variable("Y"), datalog.Variable("Z")}},
		},
	})

	result, err := r.Deduce(context.Background())
	if err != nil {
		t.Fatalf("Deduce: %v", err)
	}
	found := false
	for i, f := range result.DerivedFacts {
		if f.Predicate == transfers.IRI && f.Args[0].Equals(alice) && f.Args[1].Equals(alice) {
			found = true
			if !r.ValidateProof(result.Proofs[i]) {
				t.Errorf("proof for transfers(alice,alice) failed to validate")
			}
			n, ok := r.graph.get(result.Proofs[i])
			if !ok {
				t.Fatalf("proof node missing")
			}
			if len(n.Premises) == 0 {
				t.Fatalf("expected transfers(alice,alice) to cite premises")
			}
		}
	}
	if !found {
		t.Fatalf("expected transfers(alice,alice) to be derived, got %v", result.DerivedFacts)
	}
}

func TestHypothesize_LowConfidencePropagates(t *testing.T) {
	ts := store.New()
	r := New(ts)
	trusts := rdf.NewNamedNode("http://x/trusts")
	r.AddRule(datalog.Rule{
		Name: "trusts-transitive",
		Head: datalog.Atom{Predicate: trusts.IRI, Args: []datalog.Term{datalog.Variable("X"), datalog.Variable("Z")}},
		Body: []datalog.Atom{
			{Predicate: trusts.IRI, Args: []datalog.Term{datalog.Variable("X"), datalog.Variable("Y")}},
			{Predicate: trusts.IRI, Args: []datalog.Term{datalog.Variable("Y"), datalog.Variable("Z")}},
		},
	})

	alice := rdf.NewNamedNode("http://x/alice")
	bob := rdf.NewNamedNode("http://x/bob")
	carol := rdf.NewNamedNode("http://x/carol")

	h1 := r.Hypothesize(alice, trusts, bob, 0.6, nil)
	r.Hypothesize(bob, trusts, carol, 0.9, nil)
	_ = h1

	result, err := r.Deduce(context.Background())
	if err != nil {
		t.Fatalf("Deduce: %v", err)
	}
	for i, f := range result.DerivedFacts {
		if f.Predicate == trusts.IRI && f.Args[0].Equals(alice) && f.Args[1].Equals(carol) {
			n, ok := r.graph.get(result.Proofs[i])
			if !ok {
				t.Fatalf("missing node")
			}
			if n.Confidence != 0.6 {
				t.Errorf("expected derived confidence to be the min premise confidence 0.6, got %v", n.Confidence)
			}
			return
		}
	}
	t.Fatalf("expected trusts(alice,carol) to be derived, got %v", result.DerivedFacts)
}

func TestValidateProof_UnknownIDIsFalse(t *testing.T) {
	r := New(store.New())
	if r.ValidateProof("not-a-real-id") {
		t.Fatal("expected validation of an unknown id to fail")
	}
}
