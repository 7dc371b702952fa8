package reasoner

import (
	"github.com/arbordb/arbor/pkg/datalog"
	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/store"
)

// liftRules inspects ts for owl:/rdfs: vocabulary usage and returns the
// Datalog rules it implies. The lifted rule's Name records which
// construct produced it, since the proof hash includes the rule name.
func liftRules(ts *store.TripleStore) ([]datalog.Rule, error) {
	var rules []datalog.Rule

	transitive, err := scanSubjects(ts, nil, rdfType, owlTransitiveClass)
	if err != nil {
		return nil, err
	}
	for _, p := range transitive {
		pred := predicateIRI(p)
		rules = append(rules, datalog.Rule{
			Name: "owl:TransitiveProperty(" + pred + ")",
			Head: atom2(pred, "X", "Z"),
			Body: []datalog.Atom{atom2(pred, "X", "Y"), atom2(pred, "Y", "Z")},
		})
	}

	symmetric, err := scanSubjects(ts, nil, rdfType, owlSymmetricClass)
	if err != nil {
		return nil, err
	}
	for _, p := range symmetric {
		pred := predicateIRI(p)
		rules = append(rules, datalog.Rule{
			Name: "owl:SymmetricProperty(" + pred + ")",
			Head: atom2(pred, "Y", "X"),
			Body: []datalog.Atom{atom2(pred, "X", "Y")},
		})
	}

	inverses, err := scanPairs(ts, nil, owlInverseOf, nil)
	if err != nil {
		return nil, err
	}
	for _, pair := range inverses {
		p := predicateIRI(pair[0])
		q := predicateIRI(pair[1])
		rules = append(rules,
			datalog.Rule{
				Name: "owl:inverseOf(" + p + "," + q + ")",
				Head: atom2(q, "Y", "X"),
				Body: []datalog.Atom{atom2(p, "X", "Y")},
			},
			datalog.Rule{
				Name: "owl:inverseOf(" + q + "," + p + ")",
				Head: atom2(p, "Y", "X"),
				Body: []datalog.Atom{atom2(q, "X", "Y")},
			},
		)
	}

	subClasses, err := scanPairs(ts, nil, rdfsSubClassOf, nil)
	if err != nil {
		return nil, err
	}
	for _, pair := range subClasses {
		a := pair[0]
		b := pair[1]
		rules = append(rules, datalog.Rule{
			Name: "rdfs:subClassOf(" + a.String() + "," + b.String() + ")",
			Head: datalog.Atom{Predicate: typePredicate, Args: []datalog.Term{datalog.Variable("X"), datalog.Constant(b)}},
			Body: []datalog.Atom{{Predicate: typePredicate, Args: []datalog.Term{datalog.Variable("X"), datalog.Constant(a)}}},
		})
	}

	subProperties, err := scanPairs(ts, nil, rdfsSubPropertyOf, nil)
	if err != nil {
		return nil, err
	}
	for _, pair := range subProperties {
		p := predicateIRI(pair[0])
		q := predicateIRI(pair[1])
		rules = append(rules, datalog.Rule{
			Name: "rdfs:subPropertyOf(" + p + "," + q + ")",
			Head: atom2(q, "X", "Y"),
			Body: []datalog.Atom{atom2(p, "X", "Y")},
		})
	}

	return rules, nil
}

func atom2(predicate, x, y string) datalog.Atom {
	return datalog.Atom{Predicate: predicate, Args: []datalog.Term{datalog.Variable(x), datalog.Variable(y)}}
}

// scanSubjects returns every subject of quads matching (?, predicate,
// object) across every graph.
func scanSubjects(ts *store.TripleStore, subject rdf.Term, predicate, object rdf.Term) ([]rdf.Term, error) {
	it, err := ts.QueryAllGraphs(&store.Pattern{Subject: subject, Predicate: predicate, Object: object})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		out = append(out, q.Subject)
	}
	return out, nil
}

// scanPairs returns every (subject, object) pair of quads matching
// (subject, predicate, object) across every graph.
func scanPairs(ts *store.TripleStore, subject rdf.Term, predicate, object rdf.Term) ([][2]rdf.Term, error) {
	it, err := ts.QueryAllGraphs(&store.Pattern{Subject: subject, Predicate: predicate, Object: object})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out [][2]rdf.Term
	for it.Next() {
		q, err := it.Quad()
		if err != nil {
			return nil, err
		}
		out = append(out, [2]rdf.Term{q.Subject, q.Object})
	}
	return out, nil
}
