package reasoner

import "github.com/arbordb/arbor/pkg/rdf"

// Vocabulary terms the rule lifter inspects. These are the only IRIs
// the reasoner understands; any other owl:/rdfs: construct is simply
// never lifted into a rule.
var (
	rdfType            = rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	owlTransitiveClass = rdf.NewNamedNode("http://www.w3.org/2002/07/owl#TransitiveProperty")
	owlSymmetricClass  = rdf.NewNamedNode("http://www.w3.org/2002/07/owl#SymmetricProperty")
	owlInverseOf       = rdf.NewNamedNode("http://www.w3.org/2002/07/owl#inverseOf")
	rdfsSubClassOf     = rdf.NewNamedNode("http://www.w3.org/2000/01/rdf-schema#subClassOf")
	rdfsSubPropertyOf  = rdf.NewNamedNode("http://www.w3.org/2000/01/rdf-schema#subPropertyOf")
)

// typePredicate is the Datalog predicate name that stands in for
// rdf:type, used by the rdfs:subClassOf lift rule.
const typePredicate = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
