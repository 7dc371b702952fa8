package rdf

import "testing"

func TestSerializeTriplesCanonical_Empty(t *testing.T) {
	out, err := SerializeTriplesCanonical(nil)
	if err != nil || out != "" {
		t.Fatalf("expected empty output, got %q err=%v", out, err)
	}
}

func TestSerializeTriplesCanonical_BasicTriple(t *testing.T) {
	triples := []*Triple{
		{
			Subject:   NewNamedNode("http://x/a"),
			Predicate: NewNamedNode("http://x/p"),
			Object:    NewLiteral("v"),
		},
	}
	out, err := SerializeTriplesCanonical(triples)
	if err != nil {
		t.Fatalf("SerializeTriplesCanonical: %v", err)
	}
	want := "<http://x/a> <http://x/p> \"v\" .\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestSerializeQuadsCanonical_OmitsDefaultGraph(t *testing.T) {
	quads := []*Quad{
		NewQuad(NewNamedNode("http://x/a"), NewNamedNode("http://x/p"), NewLiteral("v"), NewDefaultGraph()),
	}
	out, err := SerializeQuadsCanonical(quads)
	if err != nil {
		t.Fatalf("SerializeQuadsCanonical: %v", err)
	}
	want := "<http://x/a> <http://x/p> \"v\" .\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestSerializeQuadsCanonical_IncludesNamedGraph(t *testing.T) {
	quads := []*Quad{
		NewQuad(NewNamedNode("http://x/a"), NewNamedNode("http://x/p"), NewLiteral("v"), NewNamedNode("http://x/g")),
	}
	out, err := SerializeQuadsCanonical(quads)
	if err != nil {
		t.Fatalf("SerializeQuadsCanonical: %v", err)
	}
	want := "<http://x/a> <http://x/p> \"v\" <http://x/g> .\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

// unrecognizedTerm implements Term but isn't one of the kinds
// serializeTermCanonical knows how to render, exercising the typed-error
// path instead of silently emitting an empty string for it.
type unrecognizedTerm struct{}

func (unrecognizedTerm) Type() TermType { return 0 }
func (unrecognizedTerm) String() string { return "<unrecognized>" }
func (unrecognizedTerm) Equals(other Term) bool {
	_, ok := other.(unrecognizedTerm)
	return ok
}

func TestSerializeTriplesCanonical_UnknownTermKindErrors(t *testing.T) {
	triples := []*Triple{
		{Subject: unrecognizedTerm{}, Predicate: NewNamedNode("http://x/p"), Object: NewLiteral("v")},
	}
	_, err := SerializeTriplesCanonical(triples)
	if err == nil {
		t.Fatalf("expected an error for an unrecognized term kind")
	}
}
