package store

import (
	"fmt"

	"github.com/arbordb/arbor/internal/quadindex"
	"github.com/arbordb/arbor/pkg/rdf"
)

// Pattern represents a triple or quad pattern with optional variables,
// same shape as the teacher's pkg/store/query.go Pattern.
type Pattern struct {
	Subject   any // rdf.Term or *Variable
	Predicate any // rdf.Term or *Variable
	Object    any // rdf.Term or *Variable
	Graph     any // rdf.Term or *Variable; nil means the default graph
}

// Variable names a SPARQL variable.
type Variable struct {
	Name string
}

func NewVariable(name string) *Variable { return &Variable{Name: name} }

func (v *Variable) String() string { return "?" + v.Name }

func isVariable(v any) bool {
	_, ok := v.(*Variable)
	return ok
}

// Binding maps variable names to terms.
type Binding struct {
	Vars map[string]rdf.Term
}

func NewBinding() *Binding {
	return &Binding{Vars: make(map[string]rdf.Term)}
}

func (b *Binding) Clone() *Binding {
	nb := NewBinding()
	for k, v := range b.Vars {
		nb.Vars[k] = v
	}
	return nb
}

// QuadIterator iterates over quads matching a pattern.
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Close() error
}

// Query executes a pattern match and returns matching quads. A term
// never seen by the dictionary (for any bound position) means the
// pattern matches nothing, and an already-closed empty iterator is
// returned rather than an error.
func (s *TripleStore) Query(pattern *Pattern) (QuadIterator, error) {
	var idp quadindex.Pattern

	if !isVariable(pattern.Subject) && pattern.Subject != nil {
		id, ok := s.dict.Lookup(pattern.Subject.(rdf.Term))
		if !ok {
			return &emptyIterator{}, nil
		}
		idp.S = &id
	}
	if !isVariable(pattern.Predicate) && pattern.Predicate != nil {
		id, ok := s.dict.Lookup(pattern.Predicate.(rdf.Term))
		if !ok {
			return &emptyIterator{}, nil
		}
		idp.P = &id
	}
	if !isVariable(pattern.Object) && pattern.Object != nil {
		id, ok := s.dict.Lookup(pattern.Object.(rdf.Term))
		if !ok {
			return &emptyIterator{}, nil
		}
		idp.O = &id
	}
	if pattern.Graph != nil && !isVariable(pattern.Graph) {
		if _, isDefault := pattern.Graph.(*rdf.DefaultGraph); !isDefault {
			id, ok := s.dict.Lookup(pattern.Graph.(rdf.Term))
			if !ok {
				return &emptyIterator{}, nil
			}
			idp.G = &id
		}
	}

	matches := s.idx.Scan(idp)
	return &quadIterator{store: s, matches: matches, pos: -1}, nil
}

// QueryAllGraphs behaves like Query but, when pattern.Graph is a
// variable or nil, scans every named graph plus the default graph
// instead of defaulting to the default graph alone. This backs GRAPH
// ?g { ... } and the "union default graph" query form.
func (s *TripleStore) QueryAllGraphs(pattern *Pattern) (QuadIterator, error) {
	if pattern.Graph != nil && !isVariable(pattern.Graph) {
		return s.Query(pattern)
	}
	graphs, err := s.AllGraphs()
	if err != nil {
		return nil, err
	}
	var all []quadindex.Quad
	graphs = append(graphs, rdf.NewDefaultGraph())
	for _, g := range graphs {
		p := *pattern
		p.Graph = g
		it, err := s.Query(&p)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			q, err := it.Quad()
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			sid, _ := s.dict.Lookup(q.Subject)
			pid, _ := s.dict.Lookup(q.Predicate)
			oid, _ := s.dict.Lookup(q.Object)
			gid := uint64(0)
			if q.Graph != nil {
				gid, _ = s.dict.Lookup(q.Graph)
			}
			all = append(all, quadindex.Quad{S: sid, P: pid, O: oid, G: gid})
		}
		_ = it.Close()
	}
	return &quadIterator{store: s, matches: all, pos: -1}, nil
}

type quadIterator struct {
	store   *TripleStore
	matches []quadindex.Quad
	pos     int
	closed  bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed {
		return false
	}
	qi.pos++
	return qi.pos < len(qi.matches)
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	if qi.closed || qi.pos < 0 || qi.pos >= len(qi.matches) {
		return nil, fmt.Errorf("no current quad")
	}
	m := qi.matches[qi.pos]
	subj, err := qi.store.dict.Resolve(m.S)
	if err != nil {
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	pred, err := qi.store.dict.Resolve(m.P)
	if err != nil {
		return nil, fmt.Errorf("resolve predicate: %w", err)
	}
	obj, err := qi.store.dict.Resolve(m.O)
	if err != nil {
		return nil, fmt.Errorf("resolve object: %w", err)
	}
	graph, err := qi.store.dict.Resolve(m.G)
	if err != nil {
		return nil, fmt.Errorf("resolve graph: %w", err)
	}
	return &rdf.Quad{Subject: subj, Predicate: pred, Object: obj, Graph: graph}, nil
}

func (qi *quadIterator) Close() error {
	qi.closed = true
	return nil
}

type emptyIterator struct{}

func (emptyIterator) Next() bool                 { return false }
func (emptyIterator) Quad() (*rdf.Quad, error)    { return nil, fmt.Errorf("no current quad") }
func (emptyIterator) Close() error                { return nil }
