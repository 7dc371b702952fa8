// Package quadindex implements the in-memory, six-index quad store described
// in spec section 4.2: SPO/POS/OSP over the default graph plus
// GSPO/GPOS/GOSP keyed by graph id, giving constant-time lookups for any
// pattern with one or two wildcards and bounded-degree enumeration for the
// rest. It never touches disk: the core is in-memory by design (see
// SPEC_FULL's dropped-dependency note on badger), so each ordering is a
// plain nested map rather than an LSM-tree key range.
package quadindex

import "sync"

const wildcard = ^uint64(0) // sentinel for "no constraint" is never used as a key; callers pass nil pointers instead

// bucket preserves insertion order for the innermost dimension of an
// index, matching the spec's "tie-break for equal keys is insertion order
// within the same bucket" requirement — a bare map would iterate in random
// order.
type bucket struct {
	seen  map[uint64]struct{}
	order []uint64
}

func (b *bucket) insert(id uint64) bool {
	if b.seen == nil {
		b.seen = make(map[uint64]struct{})
	}
	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	return true
}

func (b *bucket) remove(id uint64) {
	if b == nil || b.seen == nil {
		return
	}
	if _, ok := b.seen[id]; !ok {
		return
	}
	delete(b.seen, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *bucket) contains(id uint64) bool {
	if b == nil {
		return false
	}
	_, ok := b.seen[id]
	return ok
}

// threeLevel is a map of map of bucket, used for the default-graph SPO,
// POS and OSP orderings.
type threeLevel map[uint64]map[uint64]*bucket

func (t threeLevel) insert(a, b, c uint64) bool {
	mid, ok := t[a]
	if !ok {
		mid = make(map[uint64]*bucket)
		t[a] = mid
	}
	leaf, ok := mid[b]
	if !ok {
		leaf = &bucket{}
		mid[b] = leaf
	}
	return leaf.insert(c)
}

func (t threeLevel) remove(a, b, c uint64) {
	mid, ok := t[a]
	if !ok {
		return
	}
	leaf, ok := mid[b]
	if !ok {
		return
	}
	leaf.remove(c)
}

// fourLevel is a map of map of map of bucket, used for the GSPO/GPOS/GOSP
// orderings keyed first by graph id (DefaultGraphID included).
type fourLevel map[uint64]threeLevel

func (f fourLevel) insert(g, a, b, c uint64) bool {
	tl, ok := f[g]
	if !ok {
		tl = make(threeLevel)
		f[g] = tl
	}
	return tl.insert(a, b, c)
}

func (f fourLevel) remove(g, a, b, c uint64) {
	tl, ok := f[g]
	if !ok {
		return
	}
	tl.remove(a, b, c)
}

// Quad is a dictionary-id quadruple (subject, predicate, object, graph).
type Quad struct {
	S, P, O, G uint64
}

// Index is the six-index in-memory quad store.
type Index struct {
	mu sync.RWMutex

	spo threeLevel // default graph: s -> p -> {o}
	pos threeLevel // default graph: p -> o -> {s}
	osp threeLevel // default graph: o -> s -> {p}

	gspo fourLevel // g -> s -> p -> {o}
	gpos fourLevel // g -> p -> o -> {s}
	gosp fourLevel // g -> o -> s -> {p}

	total        uint64
	perGraph     map[uint64]uint64
	perPredicate map[uint64]uint64
	graphs       map[uint64]struct{} // named graphs seen (excludes DefaultGraphID)
}

const defaultGraphID uint64 = 0

// New creates an empty quad index.
func New() *Index {
	return &Index{
		spo:          make(threeLevel),
		pos:          make(threeLevel),
		osp:          make(threeLevel),
		gspo:         make(fourLevel),
		gpos:         make(fourLevel),
		gosp:         make(fourLevel),
		perGraph:     make(map[uint64]uint64),
		perPredicate: make(map[uint64]uint64),
		graphs:       make(map[uint64]struct{}),
	}
}

// Insert adds a quad, returning false without error if it was already
// present (multiset semantics are rejected).
func (idx *Index) Insert(q Quad) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	inserted := idx.gspo.insert(q.G, q.S, q.P, q.O)
	if !inserted {
		return false
	}
	idx.gpos.insert(q.G, q.P, q.O, q.S)
	idx.gosp.insert(q.G, q.O, q.S, q.P)

	if q.G == defaultGraphID {
		idx.spo.insert(q.S, q.P, q.O)
		idx.pos.insert(q.P, q.O, q.S)
		idx.osp.insert(q.O, q.S, q.P)
	} else {
		idx.graphs[q.G] = struct{}{}
	}

	idx.total++
	idx.perGraph[q.G]++
	idx.perPredicate[q.P]++
	return true
}

// Remove deletes a quad if present; a no-op otherwise.
func (idx *Index) Remove(q Quad) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.containsLocked(q) {
		return false
	}

	idx.gspo.remove(q.G, q.S, q.P, q.O)
	idx.gpos.remove(q.G, q.P, q.O, q.S)
	idx.gosp.remove(q.G, q.O, q.S, q.P)
	if q.G == defaultGraphID {
		idx.spo.remove(q.S, q.P, q.O)
		idx.pos.remove(q.P, q.O, q.S)
		idx.osp.remove(q.O, q.S, q.P)
	}

	idx.total--
	idx.perGraph[q.G]--
	if idx.perGraph[q.G] == 0 {
		delete(idx.perGraph, q.G)
		delete(idx.graphs, q.G)
	}
	idx.perPredicate[q.P]--
	if idx.perPredicate[q.P] == 0 {
		delete(idx.perPredicate, q.P)
	}
	return true
}

// Contains reports whether a quad is present.
func (idx *Index) Contains(q Quad) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.containsLocked(q)
}

func (idx *Index) containsLocked(q Quad) bool {
	tl, ok := idx.gspo[q.G]
	if !ok {
		return false
	}
	mid, ok := tl[q.S]
	if !ok {
		return false
	}
	leaf, ok := mid[q.P]
	if !ok {
		return false
	}
	return leaf.contains(q.O)
}

// ClearGraph removes every quad in the given graph id. A no-op for an
// unknown graph.
func (idx *Index) ClearGraph(g uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tl, ok := idx.gspo[g]
	if !ok {
		return
	}
	for s, mid := range tl {
		for p, leaf := range mid {
			for _, o := range leaf.order {
				idx.total--
				idx.perPredicate[p]--
				if idx.perPredicate[p] == 0 {
					delete(idx.perPredicate, p)
				}
				if g == defaultGraphID {
					idx.spo.remove(s, p, o)
					idx.pos.remove(p, o, s)
					idx.osp.remove(o, s, p)
				}
			}
		}
	}
	delete(idx.gspo, g)
	delete(idx.gpos, g)
	delete(idx.gosp, g)
	delete(idx.perGraph, g)
	delete(idx.graphs, g)
}

// ClearAll removes every quad from every graph.
func (idx *Index) ClearAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.spo = make(threeLevel)
	idx.pos = make(threeLevel)
	idx.osp = make(threeLevel)
	idx.gspo = make(fourLevel)
	idx.gpos = make(fourLevel)
	idx.gosp = make(fourLevel)
	idx.total = 0
	idx.perGraph = make(map[uint64]uint64)
	idx.perPredicate = make(map[uint64]uint64)
	idx.graphs = make(map[uint64]struct{})
}

// CountGraph returns the number of quads in graph g.
func (idx *Index) CountGraph(g uint64) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.perGraph[g]
}

// CountTotal returns the total number of quads across all graphs.
func (idx *Index) CountTotal() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.total
}

// CountPredicate returns the number of quads using predicate p, across all
// graphs — used by the planner's selectivity estimates.
func (idx *Index) CountPredicate(p uint64) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.perPredicate[p]
}

// AllGraphs returns every named graph id that has at least one quad
// (the default graph is never included).
func (idx *Index) AllGraphs() []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]uint64, 0, len(idx.graphs))
	for g := range idx.graphs {
		out = append(out, g)
	}
	return out
}

// Pattern is a quad pattern over dictionary ids; a nil field is a
// wildcard. A nil Graph means "the default graph" (matching the
// teacher's selectIndex convention of treating an unspecified graph as
// the default graph rather than as a cross-graph wildcard) — callers
// that want every graph loop over AllGraphs() plus the default graph id
// themselves.
type Pattern struct {
	S, P, O *uint64
	G       *uint64
}

// Scan returns every quad matching pattern, choosing whichever of the
// six orderings lets the bound positions act as a map-lookup prefix,
// exactly mirroring the teacher's selectIndex/buildScanPrefix logic but
// over in-memory maps instead of byte-key ranges. The result is a
// point-in-time snapshot: iteration order is insertion order within a
// matched bucket, unspecified across buckets.
func (idx *Index) Scan(p Pattern) []Quad {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if p.G != nil {
		return idx.scanGraphLocked(*p.G, p.S, p.P, p.O)
	}
	return idx.scanDefaultLocked(p.S, p.P, p.O)
}

func (idx *Index) scanDefaultLocked(s, p, o *uint64) []Quad {
	var out []Quad
	g := defaultGraphID
	switch {
	case s != nil && p != nil:
		if leaf := leafOf(idx.spo, *s, *p); leaf != nil {
			for _, oid := range filterOne(leaf, o) {
				out = append(out, Quad{S: *s, P: *p, O: oid, G: g})
			}
		}
	case p != nil && o != nil:
		if leaf := leafOf(idx.pos, *p, *o); leaf != nil {
			for _, sid := range filterOne(leaf, s) {
				out = append(out, Quad{S: sid, P: *p, O: *o, G: g})
			}
		}
	case o != nil && s != nil:
		if leaf := leafOf(idx.osp, *o, *s); leaf != nil {
			for _, pid := range filterOne(leaf, p) {
				out = append(out, Quad{S: *s, P: pid, O: *o, G: g})
			}
		}
	case s != nil:
		for pid, leaf := range idx.spo[*s] {
			for _, oid := range leaf.order {
				out = append(out, Quad{S: *s, P: pid, O: oid, G: g})
			}
		}
	case p != nil:
		for oid, leaf := range idx.pos[*p] {
			for _, sid := range leaf.order {
				out = append(out, Quad{S: sid, P: *p, O: oid, G: g})
			}
		}
	case o != nil:
		for sid, leaf := range idx.osp[*o] {
			for _, pid := range leaf.order {
				out = append(out, Quad{S: sid, P: pid, O: *o, G: g})
			}
		}
	default:
		for sid, mid := range idx.spo {
			for pid, leaf := range mid {
				for _, oid := range leaf.order {
					out = append(out, Quad{S: sid, P: pid, O: oid, G: g})
				}
			}
		}
	}
	return out
}

func (idx *Index) scanGraphLocked(g uint64, s, p, o *uint64) []Quad {
	var out []Quad
	switch {
	case s != nil && p != nil:
		if leaf := leafOf(idx.gspo[g], *s, *p); leaf != nil {
			for _, oid := range filterOne(leaf, o) {
				out = append(out, Quad{S: *s, P: *p, O: oid, G: g})
			}
		}
	case p != nil && o != nil:
		if leaf := leafOf(idx.gpos[g], *p, *o); leaf != nil {
			for _, sid := range filterOne(leaf, s) {
				out = append(out, Quad{S: sid, P: *p, O: *o, G: g})
			}
		}
	case o != nil && s != nil:
		if leaf := leafOf(idx.gosp[g], *o, *s); leaf != nil {
			for _, pid := range filterOne(leaf, p) {
				out = append(out, Quad{S: *s, P: pid, O: *o, G: g})
			}
		}
	case s != nil:
		for pid, leaf := range idx.gspo[g][*s] {
			for _, oid := range leaf.order {
				out = append(out, Quad{S: *s, P: pid, O: oid, G: g})
			}
		}
	case p != nil:
		for oid, leaf := range idx.gpos[g][*p] {
			for _, sid := range leaf.order {
				out = append(out, Quad{S: sid, P: *p, O: oid, G: g})
			}
		}
	case o != nil:
		for sid, leaf := range idx.gosp[g][*o] {
			for _, pid := range leaf.order {
				out = append(out, Quad{S: sid, P: pid, O: *o, G: g})
			}
		}
	default:
		for sid, mid := range idx.gspo[g] {
			for pid, leaf := range mid {
				for _, oid := range leaf.order {
					out = append(out, Quad{S: sid, P: pid, O: oid, G: g})
				}
			}
		}
	}
	return out
}

func leafOf(tl threeLevel, a, b uint64) *bucket {
	mid, ok := tl[a]
	if !ok {
		return nil
	}
	return mid[b]
}

// filterOne returns leaf's members, restricted to want if want is bound.
func filterOne(leaf *bucket, want *uint64) []uint64 {
	if want == nil {
		return leaf.order
	}
	if leaf.contains(*want) {
		return []uint64{*want}
	}
	return nil
}

// DictionarySize-independent stats snapshot, per spec §3 "Statistics".
type Stats struct {
	TotalQuads      uint64
	PerGraphCounts  map[uint64]uint64
	PerPredicateCounts map[uint64]uint64
}

// Stats returns a point-in-time copy of the incrementally maintained
// counters.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := Stats{
		TotalQuads:         idx.total,
		PerGraphCounts:     make(map[uint64]uint64, len(idx.perGraph)),
		PerPredicateCounts: make(map[uint64]uint64, len(idx.perPredicate)),
	}
	for k, v := range idx.perGraph {
		s.PerGraphCounts[k] = v
	}
	for k, v := range idx.perPredicate {
		s.PerPredicateCounts[k] = v
	}
	return s
}
