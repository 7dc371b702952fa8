// Package sparql wires the parser, planner and executor into one
// configurable entry point, the way a caller embedding the store as a
// library is expected to use it rather than reaching into the three
// subpackages directly.
package sparql

import (
	"time"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/executor"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/sparql/planner"
	"github.com/arbordb/arbor/pkg/store"
)

// Options configures query parsing, planning and execution. The zero
// value is NOT the default configuration: EnableWCOJ's spec-documented
// default is on, so construct Options via DefaultOptions and override
// only the fields a caller cares about.
type Options struct {
	// DefaultBase is the base IRI used when a query has no BASE clause.
	DefaultBase string
	// DefaultPrefixes is injected into every query's prefix map before
	// parsing, so PREFIX declarations in the query itself still win.
	DefaultPrefixes map[string]string
	// MaxRows caps SELECT/CONSTRUCT/DESCRIBE result size; 0 disables
	// the cap. Exceeding it surfaces a CardinalityLimit error with
	// partial results discarded, never a silent truncation.
	MaxRows int
	// PathDepthLimit caps how many BFS frontier expansions a `p*`/`p+`
	// property path may take; 0 disables the cap.
	PathDepthLimit int
	// EnableWCOJ turns worst-case-optimal join planning on for
	// star/chain BGPs. Defaults to true in DefaultOptions.
	EnableWCOJ bool
}

// DefaultOptions returns the configuration NewEngine uses when no
// Options are supplied: no base IRI or injected prefixes, no row or
// path-depth cap, worst-case-optimal join planning on.
func DefaultOptions() Options {
	return Options{EnableWCOJ: true}
}

// Engine is a configured parser+planner+executor pipeline over one
// store, the unit a caller embedding the store as a library constructs
// once and reuses across queries. Safe for concurrent use: each query
// builds its own planner from a fresh statistics snapshot rather than
// mutating shared state.
type Engine struct {
	store *store.TripleStore
	opts  Options
	exec  *executor.Executor
}

// NewEngine builds an Engine over store with opts applied. Passing the
// zero Options turns worst-case-optimal join planning off, since Go
// zero-values a bool to false; use DefaultOptions as the base instead.
func NewEngine(s *store.TripleStore, opts Options) *Engine {
	return &Engine{
		store: s,
		opts:  opts,
		exec:  executor.NewExecutorWithLimits(s, opts.MaxRows, opts.PathDepthLimit),
	}
}

// newPlanner builds a planner from the store's current statistics, so
// concurrent queries each plan against an up-to-date quad count without
// sharing a mutable planner instance.
func (e *Engine) newPlanner() *planner.Planner {
	stats := &planner.Statistics{TotalQuads: int64(e.store.Count())}
	return planner.NewPlannerWithWCOJ(stats, e.opts.EnableWCOJ)
}

// Options returns the configuration this engine was built with.
func (e *Engine) Options() Options { return e.opts }

// Query parses, plans and executes a SPARQL query string, applying the
// engine's DefaultBase/DefaultPrefixes to the parse step and its
// MaxRows/PathDepthLimit/EnableWCOJ to planning and execution.
func (e *Engine) Query(queryString string) (executor.QueryResult, error) {
	prefixes := e.opts.DefaultPrefixes

	p := parser.NewParser(queryString, e.opts.DefaultBase, prefixes)
	query, err := p.Parse()
	if err != nil {
		return nil, err
	}

	plan, err := e.newPlanner().Plan(query)
	if err != nil {
		return nil, err
	}

	return e.exec.Execute(plan)
}

// Stats returns the store statistics this engine's planner is using.
func (e *Engine) Stats() *planner.Statistics {
	return &planner.Statistics{TotalQuads: int64(e.store.Count())}
}

// QueryRequest carries the SPARQL HTTP query API's recognized
// per-request options on top of one query string.
type QueryRequest struct {
	Query string
	// Graph restricts the query to this named graph instead of the
	// default graph when non-empty.
	Graph string
	// Timeout bounds how long execution may run; zero means no bound.
	Timeout time.Duration
	// Limit and Offset slice a SELECT's bindings, or a
	// CONSTRUCT/DESCRIBE's triples, after execution. Limit <= 0 means
	// unbounded.
	Limit  int
	Offset int
	// IncludeStats requests store statistics alongside the result.
	IncludeStats bool
}

// QueryResponse is what Execute returns: the query result plus,
// when requested, the statistics the plan was built against.
type QueryResponse struct {
	Result executor.QueryResult
	Stats  *planner.Statistics
}

// Execute runs req's query with its per-request options layered on top
// of the engine's static Options, implementing the SPARQL HTTP query
// API's graph/timeout_ms/limit/offset/include_stats options.
func (e *Engine) Execute(req QueryRequest) (*QueryResponse, error) {
	prefixes := e.opts.DefaultPrefixes

	p := parser.NewParser(req.Query, e.opts.DefaultBase, prefixes)
	query, err := p.Parse()
	if err != nil {
		return nil, err
	}

	stats := &planner.Statistics{TotalQuads: int64(e.store.Count())}
	plan, err := planner.NewPlannerWithWCOJ(stats, e.opts.EnableWCOJ).Plan(query)
	if err != nil {
		return nil, err
	}

	result, err := e.runWithTimeout(plan, req.Graph, req.Timeout)
	if err != nil {
		return nil, err
	}

	result = applyLimitOffset(result, req.Limit, req.Offset)

	resp := &QueryResponse{Result: result}
	if req.IncludeStats {
		resp.Stats = stats
	}
	return resp, nil
}

// runWithTimeout executes plan, scoped to graph when non-empty, and
// aborts with a CancelledErr if it runs longer than timeout. The
// executor has no internal cancellation point (queries run against an
// in-process store and are normally fast), so the bound is enforced by
// racing the synchronous call against a timer on its own goroutine
// rather than threading a context through every iterator.
func (e *Engine) runWithTimeout(plan *planner.Plan, graph string, timeout time.Duration) (executor.QueryResult, error) {
	if timeout <= 0 {
		return e.runInGraph(plan, graph)
	}

	type outcome struct {
		result executor.QueryResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := e.runInGraph(plan, graph)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(timeout):
		return nil, &rdferr.CancelledErr{}
	}
}

func (e *Engine) runInGraph(plan *planner.Plan, graph string) (executor.QueryResult, error) {
	if graph == "" {
		return e.exec.Execute(plan)
	}
	return e.exec.ExecuteInGraph(plan, rdf.NewNamedNode(graph))
}

// applyLimitOffset slices a SELECT's bindings or a CONSTRUCT/DESCRIBE's
// triples to the requested window. A zero QueryRequest (limit<=0,
// offset==0) is a no-op, so callers that don't ask for paging pay
// nothing extra.
func applyLimitOffset(result executor.QueryResult, limit, offset int) executor.QueryResult {
	if limit <= 0 && offset <= 0 {
		return result
	}
	switch r := result.(type) {
	case *executor.SelectResult:
		return &executor.SelectResult{Variables: r.Variables, Bindings: windowBindings(r.Bindings, limit, offset)}
	case *executor.ConstructResult:
		return &executor.ConstructResult{Triples: windowTriples(r.Triples, limit, offset)}
	default:
		return result
	}
}

func windowBindings(rows []*store.Binding, limit, offset int) []*store.Binding {
	if offset > len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func windowTriples(triples []*rdf.Triple, limit, offset int) []*rdf.Triple {
	if offset > len(triples) {
		return nil
	}
	triples = triples[offset:]
	if limit > 0 && limit < len(triples) {
		triples = triples[:limit]
	}
	return triples
}
