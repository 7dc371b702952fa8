package reasoner

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/arbordb/arbor/pkg/datalog"
)

// NodeKind tags a ThinkingGraph node as ground truth, a caller's
// low-confidence assertion, or a rule-derived conclusion.
type NodeKind string

const (
	KindObservation NodeKind = "OBSERVATION"
	KindHypothesis  NodeKind = "HYPOTHESIS"
	KindInference   NodeKind = "INFERENCE"
)

// Node is one vertex of the ThinkingGraph DAG. Id is the hex SHA-256
// content hash described by the proof-hash invariant: the same
// derivation under the same premises always yields the same id.
type Node struct {
	ID         string
	Kind       NodeKind
	Label      string
	Source     string
	Session    string
	Confidence float64

	// Fact is set for Observation/Hypothesis/Inference nodes that carry
	// a Datalog fact (every kind except a bare append_event log entry).
	Fact    *datalog.Fact
	Rule    string   // rule name, set for Inference nodes
	Premises []string // ids of premise nodes, set for Hypothesis/Inference nodes
}

// ThinkingGraph is the append-only DAG of Observation/Hypothesis/
// Inference nodes a Reasoner builds as it ingests facts and derives
// new ones. Edges are implicit in each node's Premises list.
// Observations have none. A Hypothesis carries the premise ids its caller
// passed to Hypothesize, stored without checking that they name nodes in
// the graph. An Inference names the nodes of the facts its rule matched,
// each registered before the Inference itself.
type ThinkingGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

func newThinkingGraph() *ThinkingGraph {
	return &ThinkingGraph{nodes: make(map[string]*Node)}
}

// upsert adds n if its id is new, returning the node actually stored
// (the existing one, if this id was already present — content-hash
// ids are idempotent, so re-ingesting the same observation is a no-op).
func (g *ThinkingGraph) upsert(n *Node) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.nodes[n.ID]; ok {
		return existing
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return n
}

func (g *ThinkingGraph) get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in insertion order.
func (g *ThinkingGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// DerivationStep is one entry of the ThinkingGraph's derivation chain:
// a topologically ordered list of inference steps.
type DerivationStep struct {
	Step       int
	Rule       string
	Conclusion string
	Premises   []string
}

// DerivationChain returns every Inference node in the order it was
// derived, numbered from 1 — the topological list the JSON interchange
// format calls for.
func (g *ThinkingGraph) DerivationChain() []DerivationStep {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var chain []DerivationStep
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Kind != KindInference {
			continue
		}
		chain = append(chain, DerivationStep{
			Step:       len(chain) + 1,
			Rule:       n.Rule,
			Conclusion: n.ID,
			Premises:   n.Premises,
		})
	}
	return chain
}

// writeField length-prefixes s before appending it, so that
// concatenating variable-length fields can never be ambiguous (e.g.
// predicate "ab"+arg "c" vs predicate "a"+arg "bc").
func writeField(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

// contentHash computes the proof hash: sha256 over predicate, args (in
// their fixed positional order — a Datalog fact's argument order is
// part of its identity, so "stably" here means deterministic, not
// resorted by value), rule name, and the premise ids sorted
// lexicographically so that premise-discovery order never perturbs the
// hash.
func contentHash(predicate string, args []string, ruleName string, premiseIDs []string) string {
	var buf bytes.Buffer
	writeField(&buf, predicate)
	for _, a := range args {
		writeField(&buf, a)
	}
	writeField(&buf, ruleName)
	sorted := append([]string(nil), premiseIDs...)
	sort.Strings(sorted)
	for _, id := range sorted {
		writeField(&buf, id)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func factArgs(f datalog.Fact) []string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return args
}

// factHash is contentHash specialised to a Fact's own predicate/args,
// used for Observations (no rule, no premises) and as the building
// block for Hypothesis/Inference ids.
func factHash(f datalog.Fact, ruleName string, premiseIDs []string) string {
	return contentHash(f.Predicate, factArgs(f), ruleName, premiseIDs)
}

// eventHash ids a bare append_event node that carries no fact — kind,
// label, source and session stand in for predicate/args/rule.
func eventHash(kind NodeKind, label, source, session string) string {
	return contentHash(string(kind), []string{label, source, session}, "", nil)
}
