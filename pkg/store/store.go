// Package store wires the term Dictionary and the six-index Quad Index
// into the triple/quad-level read/write surface the SPARQL executor and
// Datalog engine build on. It replaces the teacher's badger-backed
// TripleStore with an in-memory one (see DESIGN.md's dropped-dependency
// entry for github.com/dgraph-io/badger/v4) while keeping the same
// Pattern/Variable/Binding/QuadIterator-shaped query surface.
package store

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor/internal/dict"
	"github.com/arbordb/arbor/internal/quadindex"
	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
)

// TripleStore holds every quad currently known to the engine.
type TripleStore struct {
	dict *dict.Dictionary
	idx  *quadindex.Index
}

// New creates an empty store.
func New() *TripleStore {
	return &TripleStore{dict: dict.New(), idx: quadindex.New()}
}

// Dictionary exposes the underlying term dictionary for callers that
// need id-level access.
func (s *TripleStore) Dictionary() *dict.Dictionary { return s.dict }

// Index exposes the underlying quad index for callers that need raw
// id-level access rather than the rdf.Term-level Pattern API.
func (s *TripleStore) Index() *quadindex.Index { return s.idx }

// InsertQuad adds a quad, interning any terms seen for the first time.
// Reports whether the quad was new (false if already present).
func (s *TripleStore) InsertQuad(q *rdf.Quad) (bool, error) {
	sid, err := s.dict.Intern(q.Subject)
	if err != nil {
		return false, fmt.Errorf("intern subject: %w", err)
	}
	pid, err := s.dict.Intern(q.Predicate)
	if err != nil {
		return false, fmt.Errorf("intern predicate: %w", err)
	}
	oid, err := s.dict.Intern(q.Object)
	if err != nil {
		return false, fmt.Errorf("intern object: %w", err)
	}
	gid := dict.DefaultGraphID
	if q.Graph != nil {
		if _, isDefault := q.Graph.(*rdf.DefaultGraph); !isDefault {
			gid, err = s.dict.Intern(q.Graph)
			if err != nil {
				return false, fmt.Errorf("intern graph: %w", err)
			}
		}
	}
	return s.idx.Insert(quadindex.Quad{S: sid, P: pid, O: oid, G: gid}), nil
}

// InsertQuadsBatch inserts every quad in order, interning terms as it
// goes. Writes within the call are totally ordered (insertion order);
// since InsertQuad only ever adds to the dictionary/index and never
// removes, a reader beginning after this call returns sees every quad
// or, on an interning error partway through, the prefix already
// applied plus the error naming where it stopped.
//
// ctx is checked once per quad (the call's own outer loop). On
// cancellation, every quad this call itself inserted is deleted again
// before returning a *rdferr.CancelledErr, so the store ends up exactly
// as it was before the call — matching the rollback-to-pre-operation
// rule for a cancelled load. An insert error (not a cancellation) still
// leaves the prefix already applied, as before.
func (s *TripleStore) InsertQuadsBatch(ctx context.Context, quads []*rdf.Quad) error {
	inserted := make([]*rdf.Quad, 0, len(quads))
	for i, q := range quads {
		select {
		case <-ctx.Done():
			for _, ins := range inserted {
				_, _ = s.DeleteQuad(ins)
			}
			return &rdferr.CancelledErr{}
		default:
		}
		if ok, err := s.InsertQuad(q); err != nil {
			return fmt.Errorf("insert quad %d: %w", i, err)
		} else if ok {
			inserted = append(inserted, q)
		}
	}
	return nil
}

// DeleteQuad removes a quad if present. Terms never seen by the
// dictionary mean the quad cannot be present, so this never interns.
func (s *TripleStore) DeleteQuad(q *rdf.Quad) (bool, error) {
	ids, ok, err := s.lookupIDs(q.Subject, q.Predicate, q.Object, q.Graph)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return s.idx.Remove(quadindex.Quad{S: ids[0], P: ids[1], O: ids[2], G: ids[3]}), nil
}

// ContainsQuad reports whether a quad is present.
func (s *TripleStore) ContainsQuad(q *rdf.Quad) (bool, error) {
	ids, ok, err := s.lookupIDs(q.Subject, q.Predicate, q.Object, q.Graph)
	if err != nil || !ok {
		return false, err
	}
	return s.idx.Contains(quadindex.Quad{S: ids[0], P: ids[1], O: ids[2], G: ids[3]}), nil
}

// lookupIDs resolves four terms via Dictionary.Lookup, short-circuiting
// (ok=false) the moment any one of them was never interned.
func (s *TripleStore) lookupIDs(subj, pred, obj, graph rdf.Term) ([4]uint64, bool, error) {
	var ids [4]uint64
	sid, ok := s.dict.Lookup(subj)
	if !ok {
		return ids, false, nil
	}
	pid, ok := s.dict.Lookup(pred)
	if !ok {
		return ids, false, nil
	}
	oid, ok := s.dict.Lookup(obj)
	if !ok {
		return ids, false, nil
	}
	gid := dict.DefaultGraphID
	if graph != nil {
		if _, isDefault := graph.(*rdf.DefaultGraph); !isDefault {
			gid, ok = s.dict.Lookup(graph)
			if !ok {
				return ids, false, nil
			}
		}
	}
	ids = [4]uint64{sid, pid, oid, gid}
	return ids, true, nil
}

// Count returns the total number of quads across every graph.
func (s *TripleStore) Count() uint64 { return s.idx.CountTotal() }

// CountGraph returns the number of quads in graph g (nil/DefaultGraph
// means the default graph).
func (s *TripleStore) CountGraph(g rdf.Term) (uint64, error) {
	if g == nil {
		return s.idx.CountGraph(dict.DefaultGraphID), nil
	}
	if _, ok := g.(*rdf.DefaultGraph); ok {
		return s.idx.CountGraph(dict.DefaultGraphID), nil
	}
	gid, ok := s.dict.Lookup(g)
	if !ok {
		return 0, nil
	}
	return s.idx.CountGraph(gid), nil
}

// ClearGraph removes every quad in graph g.
func (s *TripleStore) ClearGraph(g rdf.Term) error {
	if g == nil {
		s.idx.ClearGraph(dict.DefaultGraphID)
		return nil
	}
	if _, ok := g.(*rdf.DefaultGraph); ok {
		s.idx.ClearGraph(dict.DefaultGraphID)
		return nil
	}
	gid, ok := s.dict.Lookup(g)
	if !ok {
		return nil
	}
	s.idx.ClearGraph(gid)
	return nil
}

// AllGraphs returns every named graph id with at least one quad,
// resolved back to rdf.Term.
func (s *TripleStore) AllGraphs() ([]rdf.Term, error) {
	ids := s.idx.AllGraphs()
	out := make([]rdf.Term, 0, len(ids))
	for _, id := range ids {
		t, err := s.dict.Resolve(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
