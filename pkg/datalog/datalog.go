// Package datalog evaluates a small positive Datalog program to its
// least fixpoint using semi-naive evaluation: each round only joins the
// previous round's newly derived facts (the delta) against the
// program's rules, instead of rejoining the whole fact set every time.
//
// Terms are either a bound rdf.Term or a named variable; predicates
// are plain strings rather than RDF predicate IRIs, so the reasoner
// package is free to name its lifted rules however it likes (e.g.
// "transitive", "symmetric") without colliding with the RDF vocabulary
// it reasons over.
package datalog

import (
	"context"
	"sort"
	"strings"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
)

// Term is one argument slot of an atom: exactly one of Var/Const is set.
type Term struct {
	Var   string
	Const rdf.Term
}

func Variable(name string) Term   { return Term{Var: name} }
func Constant(t rdf.Term) Term    { return Term{Const: t} }
func (t Term) IsVariable() bool   { return t.Var != "" }

func (t Term) String() string {
	if t.IsVariable() {
		return "?" + t.Var
	}
	return t.Const.String()
}

// Atom is a predicate applied to a list of terms, e.g. ancestor(X, eve).
type Atom struct {
	Predicate string
	Args      []Term
}

// Fact is a ground atom: every argument is a constant.
type Fact struct {
	Predicate string
	Args      []rdf.Term
}

func (f Fact) String() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.String()
	}
	return f.Predicate + "(" + strings.Join(parts, ", ") + ")"
}

// signature is a stable key for deduplicating facts.
func (f Fact) signature() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.String()
	}
	return f.Predicate + "|" + strings.Join(parts, "|")
}

// Rule derives Head whenever every atom of Body matches. Name labels
// the rule for provenance (the reasoner's proof hash includes it).
type Rule struct {
	Name string
	Head Atom
	Body []Atom
}

// validate enforces range restriction: every variable in Head must
// appear in some Body atom, else the rule could derive an
// under-constrained (non-ground) fact.
func (r Rule) validate() error {
	bound := map[string]bool{}
	for _, atom := range r.Body {
		for _, arg := range atom.Args {
			if arg.IsVariable() {
				bound[arg.Var] = true
			}
		}
	}
	for _, arg := range r.Head.Args {
		if arg.IsVariable() && !bound[arg.Var] {
			return rdferr.NewRuleShapeError("rule %q: head variable ?%s is not bound by any body atom", r.Name, arg.Var)
		}
	}
	return nil
}

// Program is a set of facts plus the rules that derive more of them.
type Program struct {
	Facts []Fact
	Rules []Rule
}

// Derivation records how one derived fact came to be: the rule that
// produced it and the ground body atoms (premises) that satisfied it.
// The reasoner turns this directly into a proof.
type Derivation struct {
	Fact     Fact
	Rule     string
	Premises []Fact
}

// Result is a Datalog program's fixpoint: every fact (seed plus
// derived) and, for each derived fact, the derivation that first
// produced it.
type Result struct {
	Facts       []Fact
	Derivations map[string]Derivation // keyed by Fact.signature()
	Rounds      int                   // number of delta rounds run to reach the fixpoint
}

// DerivationOf returns the derivation that first produced f, if f was
// derived by a rule rather than seeded as an input fact.
func (r *Result) DerivationOf(f Fact) (Derivation, bool) {
	d, ok := r.Derivations[f.signature()]
	return d, ok
}

// ByPredicate returns every fact with the given predicate, in the
// deterministic order they were added to the fixpoint.
func (r *Result) ByPredicate(predicate string) []Fact {
	var out []Fact
	for _, f := range r.Facts {
		if f.Predicate == predicate {
			out = append(out, f)
		}
	}
	return out
}

// Evaluate computes the program's least fixpoint via semi-naive
// evaluation. Deterministic given the same facts and rule order: ties
// within a round are broken by rule order, then by the order bindings
// are discovered while scanning the delta.
//
// ctx is checked once per delta-round (coarse granularity, matching the
// other long-running loops in this engine). On cancellation, Evaluate
// returns a *rdferr.CancelledErr and discards the facts derived in the
// round that was interrupted; facts derived in completed rounds are not
// rolled back, since they're never surfaced until Evaluate returns.
func Evaluate(ctx context.Context, p *Program) (*Result, error) {
	for _, r := range p.Rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	all := map[string][]Fact{}   // predicate -> facts, insertion order
	seen := map[string]bool{}    // fact signature -> present
	derivations := map[string]Derivation{}
	var order []Fact

	addFact := func(f Fact) bool {
		sig := f.signature()
		if seen[sig] {
			return false
		}
		seen[sig] = true
		all[f.Predicate] = append(all[f.Predicate], f)
		order = append(order, f)
		return true
	}

	for _, f := range p.Facts {
		addFact(f)
	}

	delta := map[string][]Fact{}
	for pred, facts := range all {
		delta[pred] = append(delta[pred], facts...)
	}

	rounds := 0
	for {
		select {
		case <-ctx.Done():
			return nil, &rdferr.CancelledErr{}
		default:
		}
		rounds++
		nextDelta := map[string][]Fact{}
		anyNew := false

		for _, rule := range p.Rules {
			newFacts := evalRuleDelta(rule, all, delta)
			for _, nf := range newFacts {
				if addFact(nf.fact) {
					anyNew = true
					nextDelta[nf.fact.Predicate] = append(nextDelta[nf.fact.Predicate], nf.fact)
					if _, exists := derivations[nf.fact.signature()]; !exists {
						derivations[nf.fact.signature()] = Derivation{Fact: nf.fact, Rule: rule.Name, Premises: nf.premises}
					}
				}
			}
		}

		if !anyNew {
			break
		}
		delta = nextDelta
	}

	return &Result{Facts: order, Derivations: derivations, Rounds: rounds}, nil
}

type derivedFact struct {
	fact     Fact
	premises []Fact
}

// evalRuleDelta evaluates rule against (all ∪ delta), requiring every
// match to use at least one atom from delta — the semi-naive
// restriction that avoids rejoining facts already joined in a prior
// round.
func evalRuleDelta(rule Rule, all, delta map[string][]Fact) []derivedFact {
	var results []derivedFact
	type binding map[string]rdf.Term

	var join func(i int, b binding, usedDelta bool, premises []Fact)
	join = func(i int, b binding, usedDelta bool, premises []Fact) {
		if i == len(rule.Body) {
			if !usedDelta {
				return
			}
			args := make([]rdf.Term, len(rule.Head.Args))
			for j, a := range rule.Head.Args {
				if a.IsVariable() {
					v, ok := b[a.Var]
					if !ok {
						return
					}
					args[j] = v
				} else {
					args[j] = a.Const
				}
			}
			results = append(results, derivedFact{
				fact:     Fact{Predicate: rule.Head.Predicate, Args: args},
				premises: append([]Fact{}, premises...),
			})
			return
		}

		atom := rule.Body[i]
		// Try matching this atom against delta first (to guarantee
		// usedDelta gets set when possible), then against all.
		tryPool := func(pool []Fact, fromDelta bool) {
			for _, f := range pool {
				if f.Predicate != atom.Predicate || len(f.Args) != len(atom.Args) {
					continue
				}
				nb, ok := unify(atom, f, b)
				if !ok {
					continue
				}
				join(i+1, nb, usedDelta || fromDelta, append(premises, f))
			}
		}
		tryPool(delta[atom.Predicate], true)
		tryPool(all[atom.Predicate], false)
	}

	join(0, binding{}, false, nil)
	return dedupeDerived(results)
}

func unify(atom Atom, f Fact, b map[string]rdf.Term) (map[string]rdf.Term, bool) {
	nb := make(map[string]rdf.Term, len(b))
	for k, v := range b {
		nb[k] = v
	}
	for i, arg := range atom.Args {
		if arg.IsVariable() {
			if existing, ok := nb[arg.Var]; ok {
				if !existing.Equals(f.Args[i]) {
					return nil, false
				}
			} else {
				nb[arg.Var] = f.Args[i]
			}
		} else if !arg.Const.Equals(f.Args[i]) {
			return nil, false
		}
	}
	return nb, true
}

// dedupeDerived removes duplicate (fact, premise-set) pairs produced
// when a body atom matches the same fact via both the delta and all
// pools in the same round.
func dedupeDerived(in []derivedFact) []derivedFact {
	seen := map[string]bool{}
	var out []derivedFact
	for _, d := range in {
		key := d.fact.signature()
		for _, p := range d.premises {
			key += ";" + p.signature()
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}

// SortPremises returns premises in a stable, canonical order (by
// signature), used when a proof hash must be order-independent of
// which body atom happened to bind first.
func SortPremises(facts []Fact) []Fact {
	out := append([]Fact{}, facts...)
	sort.Slice(out, func(i, j int) bool { return out[i].signature() < out[j].signature() })
	return out
}
