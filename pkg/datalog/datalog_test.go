package datalog

import (
	"context"
	"testing"

	"github.com/arbordb/arbor/pkg/rdf"
)

func node(id string) rdf.Term { return rdf.NewNamedNode("http://x/" + id) }

func edgeFact(a, b string) Fact {
	return Fact{Predicate: "edge", Args: []rdf.Term{node(a), node(b)}}
}

func pathRules() []Rule {
	return []Rule{
		{
			Name: "path-base",
			Head: Atom{Predicate: "path", Args: []Term{Variable("X"), Variable("Y")}},
			Body: []Atom{{Predicate: "edge", Args: []Term{Variable("X"), Variable("Y")}}},
		},
		{
			Name: "path-step",
			Head: Atom{Predicate: "path", Args: []Term{Variable("X"), Variable("Z")}},
			Body: []Atom{
				{Predicate: "edge", Args: []Term{Variable("X"), Variable("Y")}},
				{Predicate: "path", Args: []Term{Variable("Y"), Variable("Z")}},
			},
		},
	}
}

// Scenario B: transitive reachability over edge(a,b) edge(b,c) edge(c,d)
// must yield exactly the 6 pairs {(a,b),(b,c),(c,d),(a,c),(a,d),(b,d)}.
func TestEvaluate_TransitiveReachability(t *testing.T) {
	prog := &Program{
		Facts: []Fact{edgeFact("a", "b"), edgeFact("b", "c"), edgeFact("c", "d")},
		Rules: pathRules(),
	}
	result, err := Evaluate(context.Background(), prog)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	want := map[string]bool{
		"a,b": true, "b,c": true, "c,d": true,
		"a,c": true, "a,d": true, "b,d": true,
	}
	paths := result.ByPredicate("path")
	if len(paths) != len(want) {
		t.Fatalf("expected %d path facts, got %d: %v", len(want), len(paths), paths)
	}
	for _, f := range paths {
		key := f.Args[0].(*rdf.NamedNode).IRI[len("http://x/"):] + "," + f.Args[1].(*rdf.NamedNode).IRI[len("http://x/"):]
		if !want[key] {
			t.Errorf("unexpected derived pair %s", key)
		}
	}
}

// Testable property 5: evaluating a fixpoint again derives nothing new.
func TestEvaluate_IsAFixpoint(t *testing.T) {
	prog := &Program{
		Facts: []Fact{edgeFact("a", "b"), edgeFact("b", "c"), edgeFact("c", "d")},
		Rules: pathRules(),
	}
	first, err := Evaluate(context.Background(), prog)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	again := &Program{Facts: first.Facts, Rules: pathRules()}
	second, err := Evaluate(context.Background(), again)
	if err != nil {
		t.Fatalf("Evaluate (second pass): %v", err)
	}
	if len(second.Facts) != len(first.Facts) {
		t.Fatalf("re-evaluating derived no new facts expected, got %d vs %d", len(second.Facts), len(first.Facts))
	}
}

// Scenario C: circular payment closure must include transfers(alice,alice)
// and its derivation must cite all three base facts.
func TestEvaluate_CircularPaymentClosure(t *testing.T) {
	transfers := func(a, b string) Fact {
		return Fact{Predicate: "transfers", Args: []rdf.Term{node(a), node(b)}}
	}
	prog := &Program{
		Facts: []Fact{transfers("alice", "bob"), transfers("bob", "carol"), transfers("carol", "alice")},
		Rules: []Rule{
			{
				Name: "transfers-transitive",
				Head: Atom{Predicate: "transfers", Args: []Term{Variable("X"), Variable("Z")}},
				Body: []Atom{
					{Predicate: "transfers", Args: []Term{Variable("X"), Variable("Y")}},
					{Predicate: "transfers", Args: []Term{Variable("Y"), Variable("Z")}},
				},
			},
		},
	}
	result, err := Evaluate(context.Background(), prog)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	target := transfers("alice", "alice")
	found := false
	for _, f := range result.Facts {
		if f.Predicate == target.Predicate && f.Args[0].Equals(target.Args[0]) && f.Args[1].Equals(target.Args[1]) {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("transfers(alice,alice) was not derived: %v", result.Facts)
	}

	deriv, ok := result.DerivationOf(target)
	if !ok {
		t.Fatalf("no derivation recorded for transfers(alice,alice)")
	}
	if len(deriv.Premises) == 0 {
		t.Fatalf("expected at least one premise")
	}

	// Follow the derivation chain back to seed facts: every one of the
	// three base transfers must be cited.
	cited := map[string]bool{}
	var walk func(f Fact)
	walk = func(f Fact) {
		d, ok := result.DerivationOf(f)
		if !ok {
			cited[f.String()] = true
			return
		}
		for _, p := range d.Premises {
			walk(p)
		}
	}
	walk(target)
	for _, base := range prog.Facts {
		if !cited[base.String()] {
			t.Errorf("derivation of transfers(alice,alice) does not cite base fact %s", base)
		}
	}
}

func TestRule_ValidateRejectsUnboundHeadVariable(t *testing.T) {
	rule := Rule{
		Name: "bad",
		Head: Atom{Predicate: "p", Args: []Term{Variable("X"), Variable("Y")}},
		Body: []Atom{{Predicate: "q", Args: []Term{Variable("X")}}},
	}
	_, err := Evaluate(context.Background(), &Program{Rules: []Rule{rule}})
	if err == nil {
		t.Fatal("expected a RuleShapeError for an unbound head variable")
	}
}

func TestEvaluate_DoubleInsertionLeavesFactCountUnchanged(t *testing.T) {
	f := edgeFact("a", "b")
	prog := &Program{Facts: []Fact{f, f}}
	result, err := Evaluate(context.Background(), prog)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected duplicate fact to collapse to 1, got %d", len(result.Facts))
	}
}
