// Package executor runs a planner.Plan over a store.TripleStore using
// the teacher's Volcano iterator model: every plan node becomes a
// BindingIterator that pulls rows from its inputs one at a time. Join
// is nested-loop (teacher's own choice, simpler than hash join and
// sufficient at in-process scale), OPTIONAL is a left outer nested
// loop, property paths are evaluated by BFS over the quad index.
package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/evaluator"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/sparql/planner"
	"github.com/arbordb/arbor/pkg/store"
)

// Executor executes a lowered plan against a triple store.
type Executor struct {
	store          *store.TripleStore
	eval           *evaluator.Evaluator
	maxRows        int // 0 means unlimited
	pathDepthLimit int // 0 means unlimited
}

// NewExecutor builds an executor with no row or path-depth limits.
func NewExecutor(s *store.TripleStore) *Executor {
	return NewExecutorWithLimits(s, 0, 0)
}

// NewExecutorWithLimits builds an executor enforcing max_rows (result
// rows per query) and path_depth_limit (BFS frontier expansions per
// property-path evaluation). Either limit set to 0 disables it.
func NewExecutorWithLimits(s *store.TripleStore, maxRows, pathDepthLimit int) *Executor {
	return &Executor{store: s, eval: evaluator.New(), maxRows: maxRows, pathDepthLimit: pathDepthLimit}
}

// QueryResult is the result of one query, tagged by form.
type QueryResult interface{ resultType() }

type SelectResult struct {
	Variables []*parser.Variable
	Bindings  []*store.Binding
}

func (*SelectResult) resultType() {}

type AskResult struct{ Result bool }

func (*AskResult) resultType() {}

type ConstructResult struct{ Triples []*rdf.Triple }

func (*ConstructResult) resultType() {}

// Execute runs plan over the store's default graph and produces its
// result.
func (e *Executor) Execute(plan *planner.Plan) (QueryResult, error) {
	return e.execute(plan, nil)
}

// ExecuteInGraph runs plan scoped to graph instead of the default
// graph, for callers implementing the SPARQL HTTP query API's `graph`
// option. graph must be a bound IRI term.
func (e *Executor) ExecuteInGraph(plan *planner.Plan, graph rdf.Term) (QueryResult, error) {
	return e.execute(plan, &graphScope{iri: graph})
}

func (e *Executor) execute(plan *planner.Plan, scope *graphScope) (QueryResult, error) {
	switch plan.Query.QueryType {
	case parser.QueryTypeSelect:
		return e.executeSelect(plan, scope)
	case parser.QueryTypeAsk:
		return e.executeAsk(plan, scope)
	case parser.QueryTypeConstruct:
		return e.executeConstruct(plan, scope)
	case parser.QueryTypeDescribe:
		return e.executeDescribe(plan, scope)
	default:
		return nil, fmt.Errorf("unsupported query type")
	}
}

func (e *Executor) executeSelect(plan *planner.Plan, scope *graphScope) (*SelectResult, error) {
	iter, err := e.createIterator(plan.Root, scope)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var bindings []*store.Binding
	for iter.Next() {
		if e.maxRows > 0 && len(bindings) >= e.maxRows {
			return nil, rdferr.NewCardinalityLimit(e.maxRows, "SELECT produced more than %d rows", e.maxRows)
		}
		bindings = append(bindings, iter.Binding().Clone())
	}

	variables := plan.Query.Select.Variables
	if plan.Query.Select.Star {
		variables = extractVariables(plan.Query.Select.Where)
	}

	return &SelectResult{Variables: variables, Bindings: bindings}, nil
}

func (e *Executor) executeAsk(plan *planner.Plan, scope *graphScope) (*AskResult, error) {
	iter, err := e.createIterator(plan.Root, scope)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	return &AskResult{Result: iter.Next()}, nil
}

func (e *Executor) executeConstruct(plan *planner.Plan, scope *graphScope) (*ConstructResult, error) {
	cn, ok := plan.Root.(*planner.ConstructNode)
	if !ok {
		return nil, fmt.Errorf("expected ConstructNode")
	}
	var iter bindingIterator
	var err error
	if cn.Input != nil {
		iter, err = e.createIterator(cn.Input, scope)
		if err != nil {
			return nil, err
		}
		defer iter.Close()
	}

	seen := make(map[string]bool)
	var triples []*rdf.Triple
	solutionNum := 0
	for iter != nil && iter.Next() {
		if e.maxRows > 0 && len(triples) >= e.maxRows {
			return nil, rdferr.NewCardinalityLimit(e.maxRows, "CONSTRUCT produced more than %d triples", e.maxRows)
		}
		binding := iter.Binding()
		blanks := make(map[string]*rdf.BlankNode)
		for _, tp := range cn.Template {
			triple, ok := instantiateTemplate(tp, binding, blanks, solutionNum)
			if !ok {
				continue
			}
			key := triple.Subject.String() + "|" + triple.Predicate.String() + "|" + triple.Object.String()
			if !seen[key] {
				seen[key] = true
				triples = append(triples, triple)
			}
		}
		solutionNum++
	}
	return &ConstructResult{Triples: triples}, nil
}

// instantiateTemplate fills in a CONSTRUCT template triple from a
// solution. Template blank nodes get a fresh identity per solution
// (scoped by solutionNum) but keep the same identity across the
// template's own triples within one solution, per SPARQL 1.1 CONSTRUCT.
func instantiateTemplate(tp *parser.TriplePattern, binding *store.Binding, blanks map[string]*rdf.BlankNode, solutionNum int) (*rdf.Triple, bool) {
	s, ok := instantiateTerm(tp.Subject, binding, blanks, solutionNum)
	if !ok {
		return nil, false
	}
	p, ok := instantiateTerm(tp.Predicate, binding, blanks, solutionNum)
	if !ok {
		return nil, false
	}
	o, ok := instantiateTerm(tp.Object, binding, blanks, solutionNum)
	if !ok {
		return nil, false
	}
	return rdf.NewTriple(s, p, o), true
}

func instantiateTerm(tv parser.TermOrVariable, binding *store.Binding, blanks map[string]*rdf.BlankNode, solutionNum int) (rdf.Term, bool) {
	if tv.IsVariable() {
		t, ok := binding.Vars[tv.Variable.Name]
		return t, ok
	}
	if bn, ok := tv.Term.(*rdf.BlankNode); ok {
		key := fmt.Sprintf("%d:%s", solutionNum, bn.ID)
		if existing, ok := blanks[key]; ok {
			return existing, true
		}
		fresh := rdf.NewBlankNode(fmt.Sprintf("c%d_%s", solutionNum, bn.ID))
		blanks[key] = fresh
		return fresh, true
	}
	return tv.Term, true
}

func (e *Executor) executeDescribe(plan *planner.Plan, scope *graphScope) (*ConstructResult, error) {
	dn, ok := plan.Root.(*planner.DescribeNode)
	if !ok {
		return nil, fmt.Errorf("expected DescribeNode")
	}

	var resources []rdf.Term
	if dn.Input != nil {
		iter, err := e.createIterator(dn.Input, scope)
		if err != nil {
			return nil, err
		}
		defer iter.Close()
		seen := make(map[string]bool)
		for iter.Next() {
			b := iter.Binding()
			for _, tv := range dn.Resources {
				if !tv.IsVariable() {
					continue
				}
				t, ok := b.Vars[tv.Variable.Name]
				if !ok {
					continue
				}
				if !seen[t.String()] {
					seen[t.String()] = true
					resources = append(resources, t)
				}
			}
		}
	} else {
		for _, tv := range dn.Resources {
			if !tv.IsVariable() {
				resources = append(resources, tv.Term)
			}
		}
	}

	// Concise Bounded Description: every triple with the resource as
	// subject, plus recursively for any blank-node object reached.
	seenTriples := make(map[string]bool)
	seenResources := make(map[string]bool)
	var triples []*rdf.Triple
	queue := resources
	for len(queue) > 0 {
		res := queue[0]
		queue = queue[1:]
		if seenResources[res.String()] {
			continue
		}
		seenResources[res.String()] = true

		pattern := &store.Pattern{Subject: res, Predicate: store.NewVariable("p"), Object: store.NewVariable("o")}
		it, err := e.store.QueryAllGraphs(pattern)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			q, err := it.Quad()
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			t := rdf.NewTriple(q.Subject, q.Predicate, q.Object)
			key := t.Subject.String() + "|" + t.Predicate.String() + "|" + t.Object.String()
			if !seenTriples[key] {
				if e.maxRows > 0 && len(triples) >= e.maxRows {
					_ = it.Close()
					return nil, rdferr.NewCardinalityLimit(e.maxRows, "DESCRIBE produced more than %d triples", e.maxRows)
				}
				seenTriples[key] = true
				triples = append(triples, t)
			}
			if bn, ok := q.Object.(*rdf.BlankNode); ok && !seenResources[bn.String()] {
				queue = append(queue, bn)
			}
		}
		_ = it.Close()
	}

	return &ConstructResult{Triples: triples}, nil
}

func extractVariables(pattern *parser.GraphPattern) []*parser.Variable {
	if pattern == nil {
		return nil
	}
	var vars []*parser.Variable
	seen := make(map[string]bool)
	add := func(tv parser.TermOrVariable) {
		if tv.IsVariable() && !seen[tv.Variable.Name] {
			seen[tv.Variable.Name] = true
			vars = append(vars, tv.Variable)
		}
	}
	for _, tp := range pattern.Patterns {
		add(tp.Subject)
		add(tp.Object)
		if tp.Predicate.IsVariable() {
			add(tp.Predicate)
		}
	}
	for _, b := range pattern.Binds {
		if !seen[b.Variable.Name] {
			seen[b.Variable.Name] = true
			vars = append(vars, b.Variable)
		}
	}
	for _, child := range pattern.Children {
		vars = append(vars, extractVariables(child)...)
	}
	return vars
}

// bindingIterator is the Volcano-model pull interface every plan node
// compiles to.
type bindingIterator interface {
	Next() bool
	Binding() *store.Binding
	Close() error
}

// graphScope threads GRAPH context down through createIterator:
// nil means "default graph only"; iri means a bound named graph;
// variable names the SPARQL variable bound to whichever graph a
// matching quad actually came from.
type graphScope struct {
	iri      rdf.Term
	variable string
}

func (e *Executor) createIterator(node planner.Node, scope *graphScope) (bindingIterator, error) {
	switch n := node.(type) {
	case nil:
		return &singleEmptyIterator{done: false}, nil
	case *planner.ScanNode:
		return e.scan(n.Pattern, scope)
	case *planner.PathNode:
		return e.path(n, scope)
	case *planner.JoinNode:
		return e.join(n, scope)
	case *planner.WCOJNode:
		return e.wcoj(n, scope)
	case *planner.LeftJoinNode:
		return e.leftJoin(n, scope)
	case *planner.UnionNode:
		left, err := e.createIterator(n.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := e.createIterator(n.Right, scope)
		if err != nil {
			return nil, err
		}
		return &unionIterator{left: left, right: right}, nil
	case *planner.MinusNode:
		return e.minus(n, scope)
	case *planner.FilterNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		return &filterIterator{input: input, filter: n.Filter, eval: e.eval}, nil
	case *planner.BindNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		return &bindIterator{input: input, bind: n.Bind, eval: e.eval}, nil
	case *planner.ValuesNode:
		return e.values(n, scope)
	case *planner.GraphNode:
		inner := scope
		if n.Variable != nil {
			inner = &graphScope{variable: n.Variable.Name}
		} else if n.IRI != nil && n.IRI.IRI != nil {
			inner = &graphScope{iri: n.IRI.IRI}
		}
		return e.createIterator(n.Input, inner)
	case *planner.ProjectNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		return &projectIterator{input: input, variables: n.Variables}, nil
	case *planner.DistinctNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		return &distinctIterator{input: input, seen: make(map[string]bool)}, nil
	case *planner.OrderByNode:
		return e.orderBy(n, scope)
	case *planner.LimitNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		limit := n.Limit
		if limit < 0 {
			limit = -1
		}
		return &limitIterator{input: input, limit: limit}, nil
	case *planner.OffsetNode:
		input, err := e.createIterator(n.Input, scope)
		if err != nil {
			return nil, err
		}
		return &offsetIterator{input: input, offset: n.Offset}, nil
	case *planner.GroupNode:
		return e.group(n, scope)
	default:
		return nil, fmt.Errorf("unsupported plan node: %T", node)
	}
}

func (e *Executor) convertTerm(tv parser.TermOrVariable) any {
	if tv.IsVariable() {
		return store.NewVariable(tv.Variable.Name)
	}
	return tv.Term
}

func (e *Executor) scan(pattern *parser.TriplePattern, scope *graphScope) (bindingIterator, error) {
	sp := &store.Pattern{
		Subject:   e.convertTerm(pattern.Subject),
		Predicate: e.convertTerm(pattern.Predicate),
		Object:    e.convertTerm(pattern.Object),
	}
	var quadIter store.QuadIterator
	var err error
	switch {
	case scope == nil:
		quadIter, err = e.store.Query(sp)
	case scope.variable != "":
		sp.Graph = store.NewVariable(scope.variable)
		quadIter, err = e.store.QueryAllGraphs(sp)
	default:
		sp.Graph = scope.iri
		quadIter, err = e.store.Query(sp)
	}
	if err != nil {
		return nil, err
	}
	graphVar := ""
	if scope != nil {
		graphVar = scope.variable
	}
	return &scanIterator{quadIter: quadIter, pattern: pattern, graphVar: graphVar, binding: store.NewBinding()}, nil
}

type scanIterator struct {
	quadIter store.QuadIterator
	pattern  *parser.TriplePattern
	graphVar string
	binding  *store.Binding
}

func (it *scanIterator) Next() bool {
	for it.quadIter.Next() {
		quad, err := it.quadIter.Quad()
		if err != nil {
			return false
		}
		b := store.NewBinding()
		if bindTerm(b, it.pattern.Subject, quad.Subject) &&
			bindTerm(b, it.pattern.Predicate, quad.Predicate) &&
			bindTerm(b, it.pattern.Object, quad.Object) &&
			(it.graphVar == "" || bindNamed(b, it.graphVar, quad.Graph)) {
			it.binding = b
			return true
		}
	}
	return false
}

func bindTerm(b *store.Binding, tv parser.TermOrVariable, val rdf.Term) bool {
	if !tv.IsVariable() {
		return true
	}
	return bindNamed(b, tv.Variable.Name, val)
}

func bindNamed(b *store.Binding, name string, val rdf.Term) bool {
	if existing, ok := b.Vars[name]; ok {
		return existing.Equals(val)
	}
	b.Vars[name] = val
	return true
}

func (it *scanIterator) Binding() *store.Binding { return it.binding }
func (it *scanIterator) Close() error             { return it.quadIter.Close() }

type singleEmptyIterator struct{ done bool }

func (it *singleEmptyIterator) Next() bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}
func (it *singleEmptyIterator) Binding() *store.Binding { return store.NewBinding() }
func (it *singleEmptyIterator) Close() error             { return nil }

func (e *Executor) join(n *planner.JoinNode, scope *graphScope) (bindingIterator, error) {
	left, err := e.createIterator(n.Left, scope)
	if err != nil {
		return nil, err
	}
	return &nestedLoopIterator{left: left, rightNode: n.Right, scope: scope, exec: e}, nil
}

type nestedLoopIterator struct {
	left        bindingIterator
	rightNode   planner.Node
	scope       *graphScope
	exec        *Executor
	currentLeft *store.Binding
	right       bindingIterator
	result      *store.Binding
}

func (it *nestedLoopIterator) Next() bool {
	for {
		if it.right != nil {
			if it.right.Next() {
				merged := mergeBindings(it.currentLeft, it.right.Binding())
				if merged != nil {
					it.result = merged
					return true
				}
				continue
			}
			_ = it.right.Close()
			it.right = nil
		}
		if !it.left.Next() {
			return false
		}
		it.currentLeft = it.left.Binding()
		r, err := it.exec.createIterator(it.rightNode, it.scope)
		if err != nil {
			return false
		}
		it.right = r
	}
}

func (it *nestedLoopIterator) Binding() *store.Binding { return it.result }
func (it *nestedLoopIterator) Close() error {
	if it.right != nil {
		_ = it.right.Close()
	}
	return it.left.Close()
}

func mergeBindings(left, right *store.Binding) *store.Binding {
	result := left.Clone()
	for k, v := range right.Vars {
		if existing, ok := result.Vars[k]; ok {
			if !existing.Equals(v) {
				return nil
			}
		} else {
			result.Vars[k] = v
		}
	}
	return result
}

// wcoj evaluates a WCOJNode by binding its shared variables one at a
// time: for each variable it intersects, across every pattern that
// mentions it, the set of values the store already holds for it given
// the bindings fixed so far. A left-deep nested-loop chain would
// materialize every combination surviving the first two patterns before
// it ever looks at the third; this instead computes the shared
// variable's domain from ALL patterns touching it at once, so the join
// is bounded by the true intersection size rather than an intermediate
// product. Once every shared variable is bound, each pattern's
// remaining private variables (if any) are filled in by a cheap,
// already-constrained scan per pattern.
func (e *Executor) wcoj(n *planner.WCOJNode, scope *graphScope) (bindingIterator, error) {
	var rows []*store.Binding
	if err := e.wcojBindVariable(n.Patterns, n.Variables, 0, store.NewBinding(), scope, &rows); err != nil {
		return nil, err
	}
	return &valuesIterator{rows: rows, pos: -1}, nil
}

func (e *Executor) wcojBindVariable(patterns []*parser.TriplePattern, vars []string, varIdx int, binding *store.Binding, scope *graphScope, out *[]*store.Binding) error {
	if varIdx == len(vars) {
		return e.wcojCompletePatterns(patterns, 0, binding, scope, out)
	}
	v := vars[varIdx]
	var domain map[string]rdf.Term
	for _, tp := range patterns {
		if !patternHasVariable(tp, v) {
			continue
		}
		candidates, err := e.wcojDomain(tp, v, binding, scope)
		if err != nil {
			return err
		}
		if domain == nil {
			domain = candidates
		} else {
			for key := range domain {
				if _, ok := candidates[key]; !ok {
					delete(domain, key)
				}
			}
		}
		if len(domain) == 0 {
			return nil
		}
	}
	for _, val := range domain {
		next := binding.Clone()
		next.Vars[v] = val
		if err := e.wcojBindVariable(patterns, vars, varIdx+1, next, scope, out); err != nil {
			return err
		}
	}
	return nil
}

// wcojDomain scans tp with every variable binding already knows
// substituted for a bound term, returning the distinct values seen at
// v's position (v itself is left as a free variable in the scan).
func (e *Executor) wcojDomain(tp *parser.TriplePattern, v string, binding *store.Binding, scope *graphScope) (map[string]rdf.Term, error) {
	it, err := e.scan(substitutePattern(tp, binding), scope)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make(map[string]rdf.Term)
	for it.Next() {
		if val, ok := it.Binding().Vars[v]; ok {
			out[val.String()] = val
		}
	}
	return out, nil
}

// wcojCompletePatterns fills in every pattern's remaining (non-shared)
// variables once all of WCOJNode.Variables are already bound. This is a
// left-deep nested loop too, but over patterns whose shared positions
// are already constant, so it never drives a full scan on an unbound
// join variable the way the fallback chain's first pattern can.
func (e *Executor) wcojCompletePatterns(patterns []*parser.TriplePattern, idx int, binding *store.Binding, scope *graphScope, out *[]*store.Binding) error {
	if idx == len(patterns) {
		*out = append(*out, binding.Clone())
		return nil
	}
	it, err := e.scan(substitutePattern(patterns[idx], binding), scope)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		merged := mergeBindings(binding, it.Binding())
		if merged == nil {
			continue
		}
		if err := e.wcojCompletePatterns(patterns, idx+1, merged, scope, out); err != nil {
			return err
		}
	}
	return nil
}

// substitutePattern copies tp with every variable slot binding already
// has a value for replaced by that bound term; unbound slots (variable
// or not) pass through unchanged.
func substitutePattern(tp *parser.TriplePattern, binding *store.Binding) *parser.TriplePattern {
	return &parser.TriplePattern{
		Subject:   substituteBoundTerm(tp.Subject, binding),
		Predicate: substituteBoundTerm(tp.Predicate, binding),
		Object:    substituteBoundTerm(tp.Object, binding),
	}
}

func substituteBoundTerm(tv parser.TermOrVariable, binding *store.Binding) parser.TermOrVariable {
	if tv.IsVariable() {
		if val, ok := binding.Vars[tv.Variable.Name]; ok {
			return parser.TermOrVariable{Term: val}
		}
	}
	return tv
}

func patternHasVariable(tp *parser.TriplePattern, name string) bool {
	for _, v := range []parser.TermOrVariable{tp.Subject, tp.Predicate, tp.Object} {
		if v.IsVariable() && v.Variable.Name == name {
			return true
		}
	}
	return false
}

func (e *Executor) leftJoin(n *planner.LeftJoinNode, scope *graphScope) (bindingIterator, error) {
	left, err := e.createIterator(n.Left, scope)
	if err != nil {
		return nil, err
	}
	return &leftJoinIterator{left: left, rightNode: n.Right, scope: scope, exec: e}, nil
}

type leftJoinIterator struct {
	left        bindingIterator
	rightNode   planner.Node
	scope       *graphScope
	exec        *Executor
	currentLeft *store.Binding
	right       bindingIterator
	matched     bool
	result      *store.Binding
}

func (it *leftJoinIterator) Next() bool {
	for {
		if it.right != nil {
			for it.right.Next() {
				merged := mergeBindings(it.currentLeft, it.right.Binding())
				if merged == nil {
					continue
				}
				it.matched = true
				it.result = merged
				return true
			}
			_ = it.right.Close()
			it.right = nil
			if !it.matched {
				it.result = it.currentLeft
				return true
			}
		}
		if !it.left.Next() {
			return false
		}
		it.currentLeft = it.left.Binding()
		it.matched = false
		r, err := it.exec.createIterator(it.rightNode, it.scope)
		if err != nil {
			return false
		}
		it.right = r
	}
}

func (it *leftJoinIterator) Binding() *store.Binding { return it.result }
func (it *leftJoinIterator) Close() error {
	if it.right != nil {
		_ = it.right.Close()
	}
	return it.left.Close()
}

type unionIterator struct {
	left, right bindingIterator
	onRight     bool
}

func (it *unionIterator) Next() bool {
	if !it.onRight {
		if it.left.Next() {
			return true
		}
		_ = it.left.Close()
		it.onRight = true
	}
	return it.right.Next()
}

func (it *unionIterator) Binding() *store.Binding {
	if it.onRight {
		return it.right.Binding()
	}
	return it.left.Binding()
}

func (it *unionIterator) Close() error {
	_ = it.left.Close()
	return it.right.Close()
}

func (e *Executor) minus(n *planner.MinusNode, scope *graphScope) (bindingIterator, error) {
	left, err := e.createIterator(n.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := e.createIterator(n.Right, scope)
	if err != nil {
		return nil, err
	}
	var excluded []*store.Binding
	for right.Next() {
		excluded = append(excluded, right.Binding().Clone())
	}
	_ = right.Close()
	return &minusIterator{left: left, excluded: excluded}, nil
}

type minusIterator struct {
	left     bindingIterator
	excluded []*store.Binding
	result   *store.Binding
}

func (it *minusIterator) Next() bool {
	for it.left.Next() {
		b := it.left.Binding()
		if !anyCompatible(b, it.excluded) {
			it.result = b
			return true
		}
	}
	return false
}

// anyCompatible reports whether b shares at least one variable with
// some candidate and agrees on every shared variable's value — the
// SPARQL MINUS exclusion test.
func anyCompatible(b *store.Binding, candidates []*store.Binding) bool {
	for _, c := range candidates {
		shared := false
		compatible := true
		for k, v := range b.Vars {
			if cv, ok := c.Vars[k]; ok {
				shared = true
				if !v.Equals(cv) {
					compatible = false
					break
				}
			}
		}
		if shared && compatible {
			return true
		}
	}
	return false
}

func (it *minusIterator) Binding() *store.Binding { return it.result }
func (it *minusIterator) Close() error             { return it.left.Close() }

type filterIterator struct {
	input  bindingIterator
	filter *parser.Filter
	eval   *evaluator.Evaluator
}

func (it *filterIterator) Next() bool {
	for it.input.Next() {
		v, err := it.eval.Evaluate(it.filter.Expr, it.input.Binding())
		if err != nil {
			continue
		}
		ok, err := rdf.EffectiveBooleanValue(v)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (it *filterIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *filterIterator) Close() error             { return it.input.Close() }

type bindIterator struct {
	input bindingIterator
	bind  *parser.Bind
	eval  *evaluator.Evaluator
	cur   *store.Binding
}

func (it *bindIterator) Next() bool {
	if !it.input.Next() {
		return false
	}
	b := it.input.Binding().Clone()
	v, err := it.eval.Evaluate(it.bind.Expr, b)
	if err == nil {
		b.Vars[it.bind.Variable.Name] = v
	}
	it.cur = b
	return true
}

func (it *bindIterator) Binding() *store.Binding { return it.cur }
func (it *bindIterator) Close() error             { return it.input.Close() }

func (e *Executor) values(n *planner.ValuesNode, scope *graphScope) (bindingIterator, error) {
	var rows []*store.Binding
	for _, row := range n.Values.Rows {
		b := store.NewBinding()
		for i, v := range n.Values.Variables {
			if i < len(row) && row[i] != nil {
				b.Vars[v.Name] = row[i]
			}
		}
		rows = append(rows, b)
	}
	if n.Input == nil {
		return &valuesIterator{rows: rows, pos: -1}, nil
	}
	left, err := e.createIterator(n.Input, scope)
	if err != nil {
		return nil, err
	}
	// rightNode re-lowers to a fresh valuesIterator on every left row, so
	// the join can rescan VALUES' rows once per outer binding.
	return &nestedLoopIterator{left: left, rightNode: &planner.ValuesNode{Values: n.Values}, scope: scope, exec: e}, nil
}

type valuesIterator struct {
	rows []*store.Binding
	pos  int
}

func (it *valuesIterator) Next() bool {
	it.pos++
	return it.pos < len(it.rows)
}
func (it *valuesIterator) Binding() *store.Binding { return it.rows[it.pos] }
func (it *valuesIterator) Close() error             { return nil }

type projectIterator struct {
	input     bindingIterator
	variables []*parser.Variable
}

func (it *projectIterator) Next() bool { return it.input.Next() }
func (it *projectIterator) Binding() *store.Binding {
	out := store.NewBinding()
	in := it.input.Binding()
	for _, v := range it.variables {
		if t, ok := in.Vars[v.Name]; ok {
			out.Vars[v.Name] = t
		}
	}
	return out
}
func (it *projectIterator) Close() error { return it.input.Close() }

type distinctIterator struct {
	input bindingIterator
	seen  map[string]bool
}

func (it *distinctIterator) Next() bool {
	for it.input.Next() {
		sig := bindingSignature(it.input.Binding())
		if !it.seen[sig] {
			it.seen[sig] = true
			return true
		}
	}
	return false
}
func (it *distinctIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *distinctIterator) Close() error             { return it.input.Close() }

func bindingSignature(b *store.Binding) string {
	var parts []string
	for k, v := range b.Vars {
		parts = append(parts, k+"="+termSignature(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func termSignature(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "iri:" + v.IRI
	case *rdf.BlankNode:
		return "blank:" + v.ID
	case *rdf.Literal:
		sig := "lit:" + v.Value
		if v.Language != "" {
			sig += "@" + v.Language
		}
		if v.Datatype != nil {
			sig += "^^" + v.Datatype.IRI
		}
		return sig
	default:
		return "term:" + t.String()
	}
}

type limitIterator struct {
	input bindingIterator
	limit int
	count int
}

func (it *limitIterator) Next() bool {
	if it.limit >= 0 && it.count >= it.limit {
		return false
	}
	if it.input.Next() {
		it.count++
		return true
	}
	return false
}
func (it *limitIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *limitIterator) Close() error             { return it.input.Close() }

type offsetIterator struct {
	input   bindingIterator
	offset  int
	skipped int
}

func (it *offsetIterator) Next() bool {
	for it.skipped < it.offset {
		if !it.input.Next() {
			return false
		}
		it.skipped++
	}
	return it.input.Next()
}
func (it *offsetIterator) Binding() *store.Binding { return it.input.Binding() }
func (it *offsetIterator) Close() error             { return it.input.Close() }

// path evaluates a property path via BFS over the quad index, the
// seen-set including the zero-length (subject, subject) pair so `p*`
// matches reflexively without looping.
func (e *Executor) path(n *planner.PathNode, scope *graphScope) (bindingIterator, error) {
	var starts []rdf.Term
	boundSubject, subjectIsBound := n.Subject.Term, !n.Subject.IsVariable()
	if subjectIsBound {
		starts = []rdf.Term{boundSubject}
	} else {
		// No bound subject: enumerate every term that could start the
		// path by scanning the whole default/graph-scoped store once.
		sp := &store.Pattern{Subject: store.NewVariable("s"), Predicate: store.NewVariable("p"), Object: store.NewVariable("o")}
		it, err := e.scanAll(sp, scope)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for it.Next() {
			s := it.Binding().Vars["s"]
			if !seen[s.String()] {
				seen[s.String()] = true
				starts = append(starts, s)
			}
		}
		_ = it.Close()
	}

	var results []*store.Binding
	for _, start := range starts {
		reached, err := e.walkPath(n.Path, start, scope)
		if err != nil {
			return nil, err
		}
		for _, end := range reached {
			b := store.NewBinding()
			if n.Subject.IsVariable() {
				b.Vars[n.Subject.Variable.Name] = start
			}
			if n.Object.IsVariable() {
				b.Vars[n.Object.Variable.Name] = end
			} else if !end.Equals(n.Object.Term) {
				continue
			}
			results = append(results, b)
		}
	}
	return &valuesIterator{rows: results, pos: -1}, nil
}

func (e *Executor) scanAll(sp *store.Pattern, scope *graphScope) (bindingIterator, error) {
	var it store.QuadIterator
	var err error
	if scope != nil && scope.variable != "" {
		sp.Graph = store.NewVariable(scope.variable)
		it, err = e.store.QueryAllGraphs(sp)
	} else if scope != nil {
		sp.Graph = scope.iri
		it, err = e.store.Query(sp)
	} else {
		it, err = e.store.Query(sp)
	}
	if err != nil {
		return nil, err
	}
	return &scanIterator{quadIter: it, pattern: &parser.TriplePattern{
		Subject:   parser.TermOrVariable{Variable: &parser.Variable{Name: "s"}},
		Predicate: parser.TermOrVariable{Variable: &parser.Variable{Name: "p"}},
		Object:    parser.TermOrVariable{Variable: &parser.Variable{Name: "o"}},
	}, binding: store.NewBinding()}, nil
}

// walkPath returns every term reachable from start along path.
func (e *Executor) walkPath(path *parser.PropertyPath, start rdf.Term, scope *graphScope) ([]rdf.Term, error) {
	switch path.Op {
	case parser.PathPredicate:
		return e.stepOnce(start, path.IRI, false, scope)
	case parser.PathInverse:
		return e.walkInverse(path.Sub, start, scope)
	case parser.PathSequence:
		mids, err := e.walkPath(path.Left, start, scope)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var out []rdf.Term
		for _, mid := range mids {
			ends, err := e.walkPath(path.Right, mid, scope)
			if err != nil {
				return nil, err
			}
			for _, t := range ends {
				if !seen[t.String()] {
					seen[t.String()] = true
					out = append(out, t)
				}
			}
		}
		return out, nil
	case parser.PathAlternative:
		left, err := e.walkPath(path.Left, start, scope)
		if err != nil {
			return nil, err
		}
		right, err := e.walkPath(path.Right, start, scope)
		if err != nil {
			return nil, err
		}
		return unionTerms(left, right), nil
	case parser.PathZeroOrOne:
		sub, err := e.walkPath(path.Sub, start, scope)
		if err != nil {
			return nil, err
		}
		return unionTerms([]rdf.Term{start}, sub), nil
	case parser.PathZeroOrMore, parser.PathOneOrMore:
		return e.walkClosure(path, start, scope)
	case parser.PathNegatedSet:
		excluded := make(map[string]bool)
		for _, iri := range path.Negated {
			excluded[iri.IRI] = true
		}
		var out []rdf.Term
		sp := &store.Pattern{Subject: start, Predicate: store.NewVariable("p"), Object: store.NewVariable("o")}
		it, err := e.scanAll(sp, scope)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			b := it.Binding()
			pred := b.Vars["p"].(*rdf.NamedNode)
			if !excluded[pred.IRI] {
				out = append(out, b.Vars["o"])
			}
		}
		_ = it.Close()
		return out, nil
	default:
		return nil, rdferr.NewUnsupportedFeature("property path operator")
	}
}

func (e *Executor) walkInverse(sub *parser.PropertyPath, start rdf.Term, scope *graphScope) ([]rdf.Term, error) {
	if sub.Op != parser.PathPredicate {
		return nil, rdferr.NewUnsupportedFeature("inverse of a composite path")
	}
	return e.stepOnce(start, sub.IRI, true, scope)
}

func (e *Executor) stepOnce(start rdf.Term, pred *rdf.NamedNode, inverse bool, scope *graphScope) ([]rdf.Term, error) {
	var sp *store.Pattern
	if inverse {
		sp = &store.Pattern{Subject: store.NewVariable("s"), Predicate: pred, Object: start}
	} else {
		sp = &store.Pattern{Subject: start, Predicate: pred, Object: store.NewVariable("o")}
	}
	it, err := e.scanAll(sp, scope)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []rdf.Term
	for it.Next() {
		if inverse {
			out = append(out, it.Binding().Vars["s"])
		} else {
			out = append(out, it.Binding().Vars["o"])
		}
	}
	return out, nil
}

func (e *Executor) walkClosure(path *parser.PropertyPath, start rdf.Term, scope *graphScope) ([]rdf.Term, error) {
	seen := map[string]rdf.Term{}
	if path.Op == parser.PathZeroOrMore {
		seen[start.String()] = start
	}
	frontier := []rdf.Term{start}
	depth := 0
	for len(frontier) > 0 {
		if e.pathDepthLimit > 0 && depth >= e.pathDepthLimit {
			return nil, rdferr.NewCardinalityLimit(e.pathDepthLimit, "property path exceeded depth limit of %d hops", e.pathDepthLimit)
		}
		depth++
		var next []rdf.Term
		for _, f := range frontier {
			steps, err := e.walkPath(path.Sub, f, scope)
			if err != nil {
				return nil, err
			}
			for _, t := range steps {
				if _, ok := seen[t.String()]; !ok {
					seen[t.String()] = t
					next = append(next, t)
				}
			}
		}
		frontier = next
	}
	out := make([]rdf.Term, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

func unionTerms(a, b []rdf.Term) []rdf.Term {
	seen := make(map[string]bool)
	var out []rdf.Term
	for _, t := range append(append([]rdf.Term{}, a...), b...) {
		if !seen[t.String()] {
			seen[t.String()] = true
			out = append(out, t)
		}
	}
	return out
}

// orderBy materializes and sorts per spec §4.6: ascending by default,
// unbound values sort first, two literals compare via
// rdf.CompareLiterals (numerics and booleans by value, others by lexical
// form), and any other pair compares by its string form.
func (e *Executor) orderBy(n *planner.OrderByNode, scope *graphScope) (bindingIterator, error) {
	input, err := e.createIterator(n.Input, scope)
	if err != nil {
		return nil, err
	}
	var rows []*store.Binding
	for input.Next() {
		rows = append(rows, input.Binding().Clone())
	}
	_ = input.Close()

	sort.SliceStable(rows, func(i, j int) bool {
		for _, cond := range n.OrderBy {
			vi, erri := e.eval.Evaluate(cond.Expr, rows[i])
			vj, errj := e.eval.Evaluate(cond.Expr, rows[j])
			c := compareOrderValues(vi, erri, vj, errj)
			if c == 0 {
				continue
			}
			if cond.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return &valuesIterator{rows: rows, pos: -1}, nil
}

func compareOrderValues(a rdf.Term, aErr error, b rdf.Term, bErr error) int {
	if aErr != nil && bErr != nil {
		return 0
	}
	if aErr != nil {
		return -1
	}
	if bErr != nil {
		return 1
	}
	al, aok := a.(*rdf.Literal)
	bl, bok := b.(*rdf.Literal)
	if aok && bok {
		return rdf.CompareLiterals(al, bl)
	}
	return strings.Compare(a.String(), b.String())
}

// group implements GROUP BY + aggregate projection. Input rows are
// bucketed by their group key's signature, each bucket reduced to one
// output row carrying the group-by variables plus every aggregate in
// Aggregates, then HAVING filters the reduced rows.
func (e *Executor) group(n *planner.GroupNode, scope *graphScope) (bindingIterator, error) {
	input, err := e.createIterator(n.Input, scope)
	if err != nil {
		return nil, err
	}
	defer input.Close()

	type bucket struct {
		key  *store.Binding
		rows []*store.Binding
	}
	order := []string{}
	buckets := map[string]*bucket{}

	for input.Next() {
		row := input.Binding().Clone()
		key := store.NewBinding()
		for i, g := range n.GroupBy {
			v, err := e.eval.Evaluate(g.Expr, row)
			name := groupKeyName(g, i)
			if err == nil {
				key.Vars[name] = v
			}
		}
		sig := bindingSignature(key)
		bk, ok := buckets[sig]
		if !ok {
			bk = &bucket{key: key}
			buckets[sig] = bk
			order = append(order, sig)
		}
		bk.rows = append(bk.rows, row)
	}
	if len(buckets) == 0 && len(n.GroupBy) == 0 {
		// An aggregate over zero rows still produces one row (e.g. COUNT = 0).
		order = append(order, "")
		buckets[""] = &bucket{key: store.NewBinding()}
	}

	var out []*store.Binding
	for _, sig := range order {
		bk := buckets[sig]
		row := bk.key.Clone()
		for name, call := range n.Aggregates {
			v, err := evaluateAggregate(e.eval, call, bk.rows)
			if err == nil {
				row.Vars[name] = v
			}
		}
		ok := true
		for _, h := range n.Having {
			v, err := e.eval.Evaluate(h.Expr, row)
			if err != nil {
				ok = false
				break
			}
			b, err := rdf.EffectiveBooleanValue(v)
			if err != nil || !b {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return &valuesIterator{rows: out, pos: -1}, nil
}

// groupKeyName names a GROUP BY condition's slot in the group key
// binding: its bound variable if the condition was written as a plain
// variable or with "AS ?v", else a positional placeholder.
func groupKeyName(g *parser.GroupCondition, index int) string {
	if g.As != nil {
		return g.As.Name
	}
	if ve, ok := g.Expr.(*parser.VariableExpression); ok {
		return ve.Variable.Name
	}
	return fmt.Sprintf("__group%d", index)
}
