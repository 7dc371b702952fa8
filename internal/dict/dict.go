// Package dict implements the term dictionary: a bijective mapping between
// RDF terms and dense uint64 ids. Lookups are the hottest path in the
// store, so the intern table is a flat open-addressing hash table keyed by
// an xxh3 fingerprint of each term's canonical encoding (see design note
// "Large interning maps" in the spec), backed by a growable slice of
// records rather than a tree-based map. Interned strings (IRIs, blank node
// labels, literal lexical forms) live in a single append-only byte arena
// addressed by offset/length pairs, avoiding one small heap allocation per
// term.
package dict

import (
	"sync"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/zeebo/xxh3"
)

// DefaultGraphID is the reserved id for the default-graph sentinel. It is
// never reassigned and ids are never reused, so DefaultGraphID is also a
// safe "no value" marker for positions that default to the unnamed graph.
const DefaultGraphID uint64 = 0

type kind byte

const (
	kindIRI kind = iota
	kindBlank
	kindLiteral
	kindDefaultGraph
)

// record is the fixed-shape payload stored per id. Strings are offsets
// into the shared arena; a literal's datatype is itself an interned id so
// repeated datatypes (xsd:integer, rdf:langString, ...) cost one id each.
type record struct {
	kind      kind
	strOff    uint32
	strLen    uint32
	datatype  uint64 // valid when kind == kindLiteral
	hasDtype  bool
	lang      string // language tag; rare and short, kept as a Go string
	direction string // RDF 1.2 base direction, rare
}

type tableSlot struct {
	used bool
	fp   uint64
	id   uint64
}

// Dictionary interns RDF terms to dense ids and resolves ids back to terms.
type Dictionary struct {
	mu      sync.RWMutex
	arena   []byte
	records []record // indexed by id; records[0] is the default-graph sentinel
	table   []tableSlot
	count   int // live entries in table
}

// New creates an empty Dictionary with the default-graph sentinel at id 0.
func New() *Dictionary {
	d := &Dictionary{
		records: make([]record, 1, 64),
		table:   make([]tableSlot, 16),
	}
	d.records[0] = record{kind: kindDefaultGraph}
	d.insertSlot(d.fingerprint([]byte{byte(kindDefaultGraph)}), DefaultGraphID)
	return d
}

// Size returns the number of interned terms, including the default-graph
// sentinel.
func (d *Dictionary) Size() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return uint64(len(d.records))
}

// Intern maps a term to its id, assigning a new monotonic id on first
// sight. Equal terms always map to the same id for the life of the store.
func (d *Dictionary) Intern(term rdf.Term) (uint64, error) {
	key, err := d.canonicalKey(term)
	if err != nil {
		return 0, err
	}
	fp := d.fingerprint(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.lookupLocked(fp, key); ok {
		return id, nil
	}
	return d.insertLocked(term, fp, key)
}

// Lookup returns the id already assigned to term, without interning it.
// Used by query paths where a term absent from the dictionary means the
// pattern can match nothing, rather than something to create on the fly.
func (d *Dictionary) Lookup(term rdf.Term) (uint64, bool) {
	key, err := d.canonicalKey(term)
	if err != nil {
		return 0, false
	}
	fp := d.fingerprint(key)

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookupLocked(fp, key)
}

// Resolve returns the term stored for id, or InvalidIDErr if unassigned.
func (d *Dictionary) Resolve(id uint64) (rdf.Term, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id >= uint64(len(d.records)) {
		return nil, &rdferr.InvalidIDErr{ID: id}
	}
	return d.decode(id)
}

func (d *Dictionary) decode(id uint64) (rdf.Term, error) {
	rec := d.records[id]
	switch rec.kind {
	case kindDefaultGraph:
		return rdf.NewDefaultGraph(), nil
	case kindIRI:
		return rdf.NewNamedNode(d.str(rec)), nil
	case kindBlank:
		return rdf.NewBlankNode(d.str(rec)), nil
	case kindLiteral:
		lit := &rdf.Literal{Value: d.str(rec), Language: rec.lang, Direction: rec.direction}
		if rec.hasDtype {
			dt, err := d.decode(rec.datatype)
			if err != nil {
				return nil, err
			}
			nn, ok := dt.(*rdf.NamedNode)
			if !ok {
				return nil, rdferr.NewInvariantViolation("literal datatype id %d is not an IRI", rec.datatype)
			}
			lit.Datatype = nn
		}
		return lit, nil
	default:
		return nil, rdferr.NewInvariantViolation("unknown dictionary record kind for id %d", id)
	}
}

func (d *Dictionary) str(rec record) string {
	return string(d.arena[rec.strOff : rec.strOff+rec.strLen])
}

func (d *Dictionary) appendString(s string) (uint32, uint32) {
	off := uint32(len(d.arena))
	d.arena = append(d.arena, s...)
	return off, uint32(len(s))
}

// canonicalKey produces a byte encoding of term that is stable and unique
// per distinct term value, used both for fingerprinting and for resolving
// fingerprint collisions by exact comparison.
func (d *Dictionary) canonicalKey(term rdf.Term) ([]byte, error) {
	switch t := term.(type) {
	case *rdf.DefaultGraph:
		return []byte{byte(kindDefaultGraph)}, nil
	case *rdf.NamedNode:
		return append([]byte{byte(kindIRI)}, t.IRI...), nil
	case *rdf.BlankNode:
		return append([]byte{byte(kindBlank)}, t.ID...), nil
	case *rdf.Literal:
		key := []byte{byte(kindLiteral)}
		key = append(key, t.Value...)
		key = append(key, 0)
		key = append(key, t.Language...)
		key = append(key, 0)
		key = append(key, t.Direction...)
		key = append(key, 0)
		if t.Datatype != nil {
			key = append(key, t.Datatype.IRI...)
		}
		return key, nil
	default:
		return nil, rdferr.NewInvariantViolation("cannot intern term of type %T", term)
	}
}

func (d *Dictionary) fingerprint(key []byte) uint64 {
	return xxh3.Hash(key)
}

func (d *Dictionary) lookupLocked(fp uint64, key []byte) (uint64, bool) {
	mask := uint64(len(d.table) - 1)
	idx := fp & mask
	for {
		slot := d.table[idx]
		if !slot.used {
			return 0, false
		}
		if slot.fp == fp {
			candidateKey, err := d.canonicalKey(d.mustDecode(slot.id))
			if err == nil && string(candidateKey) == string(key) {
				return slot.id, true
			}
		}
		idx = (idx + 1) & mask
	}
}

func (d *Dictionary) mustDecode(id uint64) rdf.Term {
	t, err := d.decode(id)
	if err != nil {
		// The dictionary is internally consistent by construction; a
		// decode failure here means corruption, not a user error.
		panic(err)
	}
	return t
}

func (d *Dictionary) insertLocked(term rdf.Term, fp uint64, key []byte) (uint64, error) {
	var rec record
	switch t := term.(type) {
	case *rdf.DefaultGraph:
		rec.kind = kindDefaultGraph
	case *rdf.NamedNode:
		rec.kind = kindIRI
		rec.strOff, rec.strLen = d.appendString(t.IRI)
	case *rdf.BlankNode:
		rec.kind = kindBlank
		rec.strOff, rec.strLen = d.appendString(t.ID)
	case *rdf.Literal:
		rec.kind = kindLiteral
		rec.strOff, rec.strLen = d.appendString(t.Value)
		rec.lang = t.Language
		rec.direction = t.Direction
		if t.Datatype != nil {
			dtID, err := d.internDatatypeLocked(t.Datatype)
			if err != nil {
				return 0, err
			}
			rec.datatype = dtID
			rec.hasDtype = true
		}
	default:
		return 0, rdferr.NewInvariantViolation("cannot intern term of type %T", term)
	}

	id := uint64(len(d.records))
	d.records = append(d.records, rec)
	d.insertSlot(fp, id)
	_ = key
	return id, nil
}

// internDatatypeLocked interns a literal's datatype IRI while the main
// dictionary lock is already held.
func (d *Dictionary) internDatatypeLocked(dt *rdf.NamedNode) (uint64, error) {
	key, err := d.canonicalKey(dt)
	if err != nil {
		return 0, err
	}
	fp := d.fingerprint(key)
	if id, ok := d.lookupLocked(fp, key); ok {
		return id, nil
	}
	return d.insertLocked(dt, fp, key)
}

func (d *Dictionary) insertSlot(fp, id uint64) {
	if d.count*2 >= len(d.table) {
		d.grow()
	}
	mask := uint64(len(d.table) - 1)
	idx := fp & mask
	for d.table[idx].used {
		idx = (idx + 1) & mask
	}
	d.table[idx] = tableSlot{used: true, fp: fp, id: id}
	d.count++
}

func (d *Dictionary) grow() {
	old := d.table
	d.table = make([]tableSlot, len(old)*2)
	mask := uint64(len(d.table) - 1)
	for _, slot := range old {
		if !slot.used {
			continue
		}
		idx := slot.fp & mask
		for d.table[idx].used {
			idx = (idx + 1) & mask
		}
		d.table[idx] = slot
	}
}
