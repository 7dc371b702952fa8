// Package reasoner lifts owl:/rdfs: vocabulary in a quad store into
// Datalog rules, runs them to a semi-naive fixpoint, and records every
// step as a ThinkingGraph: a DAG of Observation (ground truth),
// Hypothesis (caller-supplied, confidence < 1.0) and Inference
// (rule-derived) nodes, each identified by a content hash of its own
// derivation so the same proof always hashes to the same id.
//
// A Reasoner's own state (hypotheses, custom rules, the ThinkingGraph)
// is private to the instance. Deduce only reads the shared quad index;
// Reassert is the one method that writes to it, inserting derived facts
// as quads into the default graph.
package reasoner

import (
	"context"
	"strings"
	"sync"

	"github.com/arbordb/arbor/pkg/datalog"
	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/store"
)

// Reasoner evaluates one store's OWL/RDFS vocabulary plus any
// caller-added rules and hypotheses, and keeps the resulting proof DAG.
type Reasoner struct {
	ts    *store.TripleStore
	graph *ThinkingGraph

	mu               sync.Mutex
	customRules      []datalog.Rule
	hypotheses       []datalog.Fact
	hypothesisNodeID map[string]string // fact key -> node id
}

func New(ts *store.TripleStore) *Reasoner {
	return &Reasoner{
		ts:               ts,
		graph:            newThinkingGraph(),
		hypothesisNodeID: make(map[string]string),
	}
}

// AddRule registers a caller-supplied Datalog rule alongside the rules
// automatically lifted from owl:/rdfs: vocabulary. Needed for programs
// like transitive-reachability or payment-cycle detection that aren't
// expressed as OWL property characteristics at all.
func (r *Reasoner) AddRule(rule datalog.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customRules = append(r.customRules, rule)
}

// AppendEvent records a bare audit event in the ThinkingGraph: useful
// for provenance notes that aren't themselves a fact participating in
// evaluation (e.g. "loaded from import X"). Its id is a content hash of
// (kind, label, source, session), so re-appending the identical event
// is a no-op rather than a duplicate node.
func (r *Reasoner) AppendEvent(kind NodeKind, label, source, session string) *Node {
	node := &Node{
		ID:         eventHash(kind, label, source, session),
		Kind:       kind,
		Label:      label,
		Source:     source,
		Session:    session,
		Confidence: 1.0,
	}
	return r.graph.upsert(node)
}

// Hypothesize asserts (subject, predicate, object) as a fact available
// to the next Deduce call. confidence < 1.0 marks it a genuine
// hypothesis: its derived descendants inherit the minimum confidence
// across their premise chain. confidence >= 1.0 is a full-confidence
// caller-sourced observation rather than a hypothesis, per the spec's
// "source: the quad index or a caller" wording for Observations.
func (r *Reasoner) Hypothesize(subject, predicate, object rdf.Term, confidence float64, premises []string) *Node {
	f := datalog.Fact{Predicate: predicateIRI(predicate), Args: []rdf.Term{subject, object}}

	kind := KindHypothesis
	if confidence >= 1.0 {
		kind = KindObservation
	}

	node := &Node{
		ID:         factHash(f, "hypothesis", premises),
		Kind:       kind,
		Label:      f.String(),
		Confidence: confidence,
		Fact:       &f,
		Rule:       "hypothesis",
		Premises:   premises,
	}
	stored := r.graph.upsert(node)

	r.mu.Lock()
	r.hypotheses = append(r.hypotheses, f)
	r.hypothesisNodeID[factKey(f)] = stored.ID
	r.mu.Unlock()
	return stored
}

// DeduceResult is the outcome of one Deduce call.
type DeduceResult struct {
	RulesFired   int
	Iterations   int
	DerivedFacts []datalog.Fact
	Proofs       []string // proof node ids, parallel to DerivedFacts
}

// Deduce runs every quad in the store plus any hypotheses through the
// lifted and custom rules to their semi-naive fixpoint, and records
// every newly derived fact as an Inference node. ctx is forwarded to
// datalog.Evaluate, which checks it once per delta-round; on
// cancellation Deduce returns the *rdferr.CancelledErr unchanged and
// records no Inference nodes for the round in progress.
func (r *Reasoner) Deduce(ctx context.Context) (*DeduceResult, error) {
	observations, err := r.loadObservations()
	if err != nil {
		return nil, err
	}
	lifted, err := liftRules(r.ts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	rules := append(append([]datalog.Rule{}, lifted...), r.customRules...)
	hyps := append([]datalog.Fact{}, r.hypotheses...)
	r.mu.Unlock()

	facts := append(append([]datalog.Fact{}, observations...), hyps...)
	result, err := datalog.Evaluate(ctx, &datalog.Program{Facts: facts, Rules: rules})
	if err != nil {
		return nil, err
	}

	factNode := make(map[string]string, len(observations)+len(hyps))
	for _, f := range observations {
		factNode[factKey(f)] = r.ensureObservationNode(f).ID
	}
	r.mu.Lock()
	for k, id := range r.hypothesisNodeID {
		factNode[k] = id
	}
	r.mu.Unlock()

	ruleSet := make(map[string]bool)
	var derivedFacts []datalog.Fact
	var proofs []string

	for _, f := range result.Facts {
		key := factKey(f)
		if _, already := factNode[key]; already {
			continue
		}
		deriv, ok := result.DerivationOf(f)
		if !ok {
			// Not a seed fact and not in Derivations: unreachable given
			// Evaluate only returns seeds plus derived facts.
			continue
		}
		ruleSet[deriv.Rule] = true

		premiseIDs := make([]string, 0, len(deriv.Premises))
		minConfidence := 1.0
		for _, p := range datalog.SortPremises(deriv.Premises) {
			pkey := factKey(p)
			pid, ok := factNode[pkey]
			if !ok {
				// A premise derived earlier in this same fixpoint but
				// not yet visited in result.Facts order: unreachable,
				// since Result.Facts is exactly the causal order
				// Evaluate discovered facts in.
				pid = r.ensureObservationNode(p).ID
				factNode[pkey] = pid
			}
			premiseIDs = append(premiseIDs, pid)
			if n, ok := r.graph.get(pid); ok && n.Confidence < minConfidence {
				minConfidence = n.Confidence
			}
		}

		fCopy := f
		node := &Node{
			ID:         factHash(f, deriv.Rule, premiseIDs),
			Kind:       KindInference,
			Label:      f.String(),
			Confidence: minConfidence,
			Fact:       &fCopy,
			Rule:       deriv.Rule,
			Premises:   premiseIDs,
		}
		stored := r.graph.upsert(node)
		factNode[key] = stored.ID
		derivedFacts = append(derivedFacts, f)
		proofs = append(proofs, stored.ID)
	}

	return &DeduceResult{
		RulesFired:   len(ruleSet),
		Iterations:   result.Rounds,
		DerivedFacts: derivedFacts,
		Proofs:       proofs,
	}, nil
}

// Reassert re-inserts every derived fact from a Deduce call into the
// default graph of the backing store as a quad, so a plain SPARQL
// query sees reasoning's conclusions without calling back into the
// Reasoner. Optional per the data-flow note that derived facts need
// not always be written back.
func (r *Reasoner) Reassert(result *DeduceResult) (int, error) {
	n := 0
	for _, f := range result.DerivedFacts {
		if len(f.Args) != 2 {
			continue // only 2-ary facts round-trip to a triple
		}
		quad := rdf.NewQuad(f.Args[0], rdf.NewNamedNode(f.Predicate), f.Args[1], rdf.NewDefaultGraph())
		inserted, err := r.ts.InsertQuad(quad)
		if err != nil {
			return n, err
		}
		if inserted {
			n++
		}
	}
	return n, nil
}

// ensureObservationNode registers f as an Observation node if it isn't
// already present (content-hash ids make this idempotent).
func (r *Reasoner) ensureObservationNode(f datalog.Fact) *Node {
	fCopy := f
	node := &Node{
		ID:         factHash(f, "", nil),
		Kind:       KindObservation,
		Label:      f.String(),
		Confidence: 1.0,
		Fact:       &fCopy,
	}
	return r.graph.upsert(node)
}

// loadObservations scans every quad in the store (every graph) and
// turns each into a 2-ary Datalog fact keyed by the predicate's IRI.
func (r *Reasoner) loadObservations() ([]datalog.Fact, error) {
	it, err := r.ts.QueryAllGraphs(&store.Pattern{})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var facts []datalog.Fact
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		facts = append(facts, datalog.Fact{
			Predicate: predicateIRI(q.Predicate),
			Args:      []rdf.Term{q.Subject, q.Object},
		})
	}
	return facts, nil
}

// GetThinkingGraph returns a snapshot of every node plus the
// derivation chain, shaped for the ThinkingGraph JSON interchange
// format.
func (r *Reasoner) GetThinkingGraph() ThinkingGraphView {
	nodes := r.graph.Nodes()
	views := make([]NodeView, len(nodes))
	for i, n := range nodes {
		views[i] = NodeView{ID: n.ID, Type: n.Kind, Label: n.Label, Confidence: n.Confidence}
	}
	return ThinkingGraphView{Nodes: views, DerivationChain: r.graph.DerivationChain()}
}

// ThinkingGraphView is the serializable shape get_thinking_graph()
// returns.
type ThinkingGraphView struct {
	Nodes           []NodeView
	DerivationChain []DerivationStep
}

// NodeView is one ThinkingGraph node as the JSON interchange names it.
type NodeView struct {
	ID         string
	Type       NodeKind
	Label      string
	Confidence float64
}

// ValidateProof recomputes id's content hash from its stored premises
// and rule and reports whether it still matches — true unless the
// node's recorded fields were tampered with after the fact.
func (r *Reasoner) ValidateProof(id string) bool {
	n, ok := r.graph.get(id)
	if !ok {
		return false
	}
	if n.Fact == nil {
		return eventHash(n.Kind, n.Label, n.Source, n.Session) == n.ID
	}
	return factHash(*n.Fact, n.Rule, n.Premises) == n.ID
}

func predicateIRI(t rdf.Term) string {
	if nn, ok := t.(*rdf.NamedNode); ok {
		return nn.IRI
	}
	return t.String()
}

func factKey(f datalog.Fact) string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.String()
	}
	return f.Predicate + "|" + strings.Join(parts, "|")
}
