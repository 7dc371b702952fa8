package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/arbordb/arbor/pkg/analytics"
	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/reasoner"
	"github.com/arbordb/arbor/pkg/server"
	"github.com/arbordb/arbor/pkg/sparql/executor"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/sparql/planner"
	"github.com/arbordb/arbor/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: arbor <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  demo         - Load sample data and exercise SPARQL, reasoning and analytics")
		fmt.Println("  query <q>    - Execute a SPARQL query against the demo dataset")
		fmt.Println("  serve [addr] - Start HTTP SPARQL endpoint (default: localhost:8080)")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo()
	case "query":
		if len(os.Args) < 3 {
			fmt.Println("Usage: arbor query <sparql-query>")
			os.Exit(1)
		}
		runQuery(os.Args[2])
	case "serve":
		addr := "localhost:8080"
		if len(os.Args) >= 3 {
			addr = os.Args[2]
		}
		runServer(addr)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

// seedDemoData builds the store this command's demo/query/serve paths
// share: three people with a name and an age each, plus a symmetric
// adjacentTo property with two links for the reasoner walkthrough. The
// analytics walkthrough builds its own GraphFrame instead.
func seedDemoData() *store.TripleStore {
	ts := store.New()

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")

	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")
	adjacentTo := rdf.NewNamedNode("http://example.org/adjacentTo")
	owlSymmetric := rdf.NewNamedNode("http://www.w3.org/2002/07/owl#SymmetricProperty")
	rdfType := rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")

	quads := []*rdf.Quad{
		rdf.NewQuad(alice, name, rdf.NewLiteral("Alice"), rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, age, rdf.NewIntegerLiteral(30), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, name, rdf.NewLiteral("Bob"), rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, age, rdf.NewIntegerLiteral(25), rdf.NewDefaultGraph()),
		rdf.NewQuad(carol, name, rdf.NewLiteral("Carol"), rdf.NewDefaultGraph()),
		rdf.NewQuad(carol, age, rdf.NewIntegerLiteral(28), rdf.NewDefaultGraph()),
		rdf.NewQuad(adjacentTo, rdfType, owlSymmetric, rdf.NewDefaultGraph()),
		rdf.NewQuad(alice, adjacentTo, bob, rdf.NewDefaultGraph()),
		rdf.NewQuad(bob, adjacentTo, carol, rdf.NewDefaultGraph()),
	}
	for _, q := range quads {
		if _, err := ts.InsertQuad(q); err != nil {
			log.Fatalf("seed data: %v", err)
		}
	}
	return ts
}

func runDemo() {
	fmt.Println("=== Arbor RDF Store Demo ===")
	fmt.Println()

	ts := seedDemoData()
	fmt.Printf("Loaded %d quads\n\n", ts.Count())

	fmt.Println("=== SPARQL ===")
	sparqlQuery := `
		SELECT ?person ?name ?age
		WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
			?person <http://xmlns.com/foaf/0.1/age> ?age .
		}
	`
	runQueryAgainst(ts, sparqlQuery)

	fmt.Println()
	fmt.Println("=== Reasoner ===")
	r := reasoner.New(ts)
	result, err := r.Deduce(context.Background())
	if err != nil {
		log.Fatalf("Deduce: %v", err)
	}
	fmt.Printf("Fired %d rule(s) over %d round(s), deriving %d fact(s):\n", result.RulesFired, result.Iterations, len(result.DerivedFacts))
	for i, f := range result.DerivedFacts {
		valid := r.ValidateProof(result.Proofs[i])
		fmt.Printf("  %s (proof valid: %v)\n", f.String(), valid)
	}
	if n, err := r.Reassert(result); err != nil {
		log.Fatalf("Reassert: %v", err)
	} else {
		fmt.Printf("Reasserted %d derived fact(s) into the store\n", n)
	}

	fmt.Println()
	fmt.Println("=== Graph Analytics ===")
	frame, err := analytics.NewGraphFrame(
		[]analytics.Vertex{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]analytics.Edge{{Src: "a", Dst: "b"}, {Src: "b", Dst: "c"}, {Src: "c", Dst: "a"}},
	)
	if err != nil {
		log.Fatalf("NewGraphFrame: %v", err)
	}
	ranks := analytics.PageRank(frame, 0.85, 100)
	for _, id := range []string{"a", "b", "c"} {
		fmt.Printf("  pagerank(%s) = %.6f\n", id, ranks[id])
	}
	fmt.Printf("  triangles = %d\n", analytics.TriangleCount(frame))

	fmt.Println()
	fmt.Println("=== Demo Complete ===")
}

func runQuery(sparqlQuery string) {
	runQueryAgainst(seedDemoData(), sparqlQuery)
}

func runQueryAgainst(ts *store.TripleStore, sparqlQuery string) {
	p := parser.NewParser(sparqlQuery, "", nil)
	query, err := p.Parse()
	if err != nil {
		log.Fatalf("Failed to parse query: %v", err)
	}

	stats := &planner.Statistics{TotalQuads: int64(ts.Count())}
	plan, err := planner.NewPlanner(stats).Plan(query)
	if err != nil {
		log.Fatalf("Failed to plan query: %v", err)
	}

	exec := executor.NewExecutor(ts)
	result, err := exec.Execute(plan)
	if err != nil {
		log.Fatalf("Failed to execute query: %v", err)
	}

	switch res := result.(type) {
	case *executor.SelectResult:
		for _, binding := range res.Bindings {
			for _, v := range res.Variables {
				if term, ok := binding.Vars[v.Name]; ok {
					fmt.Printf("  %s = %s\n", v.Name, formatTerm(term))
				}
			}
			fmt.Println()
		}
		fmt.Printf("Found %d result(s)\n", len(res.Bindings))
	case *executor.AskResult:
		fmt.Printf("Result: %t\n", res.Result)
	case *executor.ConstructResult:
		for _, triple := range res.Triples {
			fmt.Printf("%s %s %s .\n", triple.Subject, triple.Predicate, triple.Object)
		}
	}
}

func runServer(addr string) {
	ts := seedDemoData()
	fmt.Printf("Loaded %d quads\n", ts.Count())

	srv := server.NewServer(ts, addr)
	fmt.Printf("\nArbor SPARQL endpoint starting...\n")
	fmt.Printf("   Endpoint: http://%s/sparql\n", addr)
	fmt.Printf("   Web UI:   http://%s/\n\n", addr)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func formatTerm(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri := t.IRI
		for i := len(iri) - 1; i >= 0; i-- {
			if iri[i] == '/' || iri[i] == '#' {
				return iri[i+1:]
			}
		}
		return iri
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
