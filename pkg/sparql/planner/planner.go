// Package planner lowers a parsed SPARQL query into an explicit plan
// tree the executor can run. It follows the teacher's
// internal/sparql/optimizer shape (ScanPlan/JoinPlan/FilterPlan/...,
// selectivity-ordered triple patterns, filter/bind push-down) extended
// with the plan nodes the new algebra needs: property paths, VALUES,
// GROUP BY/aggregates, and a GRAPH node that distinguishes a bound IRI
// from a variable.
package planner

import (
	"sort"

	"github.com/arbordb/arbor/pkg/sparql/parser"
)

// Statistics holds cheap cardinality hints. Join ordering does not read
// them: reorderBySelectivity ranks patterns only by which positions are
// bound.
type Statistics struct {
	TotalQuads int64
}

// Planner turns a parsed Query into a QueryPlan.
type Planner struct {
	stats      *Statistics
	enableWCOJ bool
}

// NewPlanner builds a planner with worst-case-optimal join detection on,
// matching the enable_wcoj option's documented default.
func NewPlanner(stats *Statistics) *Planner {
	return NewPlannerWithWCOJ(stats, true)
}

// NewPlannerWithWCOJ builds a planner with explicit control over whether
// planBasic may lower a star/chain BGP to a WCOJNode (spec §4.6 rule 1)
// instead of always falling back to the left-deep chain (rule 2).
func NewPlannerWithWCOJ(stats *Statistics, enableWCOJ bool) *Planner {
	if stats == nil {
		stats = &Statistics{}
	}
	return &Planner{stats: stats, enableWCOJ: enableWCOJ}
}

// Plan lowers query into its execution plan.
func (p *Planner) Plan(query *parser.Query) (*Plan, error) {
	plan := &Plan{Query: query}
	switch query.QueryType {
	case parser.QueryTypeSelect:
		node, err := p.planSelect(query.Select)
		if err != nil {
			return nil, err
		}
		plan.Root = node
	case parser.QueryTypeAsk:
		node, err := p.planGraphPattern(query.Ask.Where)
		if err != nil {
			return nil, err
		}
		plan.Root = &LimitNode{Input: node, Limit: 1}
	case parser.QueryTypeConstruct:
		node, err := p.planGraphPattern(query.Construct.Where)
		if err != nil {
			return nil, err
		}
		if query.Construct.Offset > 0 {
			node = &OffsetNode{Input: node, Offset: query.Construct.Offset}
		}
		if query.Construct.Limit >= 0 {
			node = &LimitNode{Input: node, Limit: query.Construct.Limit}
		}
		plan.Root = &ConstructNode{Input: node, Template: query.Construct.Template}
	case parser.QueryTypeDescribe:
		var node Node
		if query.Describe.Where != nil {
			var err error
			node, err = p.planGraphPattern(query.Describe.Where)
			if err != nil {
				return nil, err
			}
		}
		plan.Root = &DescribeNode{Input: node, Resources: query.Describe.Resources}
	}
	return plan, nil
}

// Plan is a fully lowered query: its original AST (needed by the
// executor for SELECT's variable list / aggregate map) plus the root
// plan node.
type Plan struct {
	Query *parser.Query
	Root  Node
}

// Node is one step of the execution plan.
type Node interface {
	planNode()
}

type ScanNode struct{ Pattern *parser.TriplePattern }

func (*ScanNode) planNode() {}

type PathNode struct {
	Subject, Object parser.TermOrVariable
	Path            *parser.PropertyPath
}

func (*PathNode) planNode() {}

type JoinNode struct{ Left, Right Node }

func (*JoinNode) planNode() {}

// WCOJNode is a worst-case-optimal multiway join over a BGP whose
// patterns form a single star (one variable shared by every pattern) or
// chain (patterns linked pairwise by distinct shared variables, one
// path, no branching). Variables lists the shared ("join") variables in
// the order the executor should bind them — for a star this is the one
// shared variable; for a chain, path order from one endpoint to the
// other, so each variable's domain is computed against an already-bound
// neighbor rather than a free one.
type WCOJNode struct {
	Patterns  []*parser.TriplePattern
	Variables []string
}

func (*WCOJNode) planNode() {}

// LeftJoinNode is SPARQL OPTIONAL: every Left row survives even when no
// Right row is compatible with it. Filters written inside the OPTIONAL
// block already became FilterNodes wrapping Right during planBasic, so
// they run before the join sees Right's rows, per SPARQL semantics.
type LeftJoinNode struct {
	Left, Right Node
}

func (*LeftJoinNode) planNode() {}

type UnionNode struct{ Left, Right Node }

func (*UnionNode) planNode() {}

type MinusNode struct{ Left, Right Node }

func (*MinusNode) planNode() {}

type FilterNode struct {
	Input  Node
	Filter *parser.Filter
}

func (*FilterNode) planNode() {}

type BindNode struct {
	Input Node
	Bind  *parser.Bind
}

func (*BindNode) planNode() {}

type ValuesNode struct {
	Input  Node // nil when VALUES is the entire pattern
	Values *parser.ValuesClause
}

func (*ValuesNode) planNode() {}

// GraphNode scopes Input's scans to a named graph: a bound IRI, or
// every graph (binding Variable) when Variable is set.
type GraphNode struct {
	Input    Node
	IRI      *parser.GraphTerm
	Variable *parser.Variable
}

func (*GraphNode) planNode() {}

type ProjectNode struct {
	Input     Node
	Variables []*parser.Variable
}

func (*ProjectNode) planNode() {}

type DistinctNode struct{ Input Node }

func (*DistinctNode) planNode() {}

type OrderByNode struct {
	Input   Node
	OrderBy []*parser.OrderCondition
}

func (*OrderByNode) planNode() {}

type LimitNode struct {
	Input Node
	Limit int
}

func (*LimitNode) planNode() {}

type OffsetNode struct {
	Input  Node
	Offset int
}

func (*OffsetNode) planNode() {}

// GroupNode performs GROUP BY + aggregate projection. Bare SELECT
// without GROUP BY but with an aggregate in the projection list is
// lowered as a single implicit group (GroupBy empty).
type GroupNode struct {
	Input      Node
	GroupBy    []*parser.GroupCondition
	Having     []*parser.Filter
	Aggregates map[string]*parser.FunctionCallExpression
}

func (*GroupNode) planNode() {}

type ConstructNode struct {
	Input    Node
	Template []*parser.TriplePattern
}

func (*ConstructNode) planNode() {}

type DescribeNode struct {
	Input     Node // nil when DESCRIBE names resources directly
	Resources []*parser.TermOrVariable
}

func (*DescribeNode) planNode() {}

func (p *Planner) planSelect(q *parser.SelectQuery) (Node, error) {
	node, err := p.planGraphPattern(q.Where)
	if err != nil {
		return nil, err
	}

	if len(q.GroupBy) > 0 || len(q.Aggregates) > 0 {
		node = &GroupNode{Input: node, GroupBy: q.GroupBy, Having: q.Having, Aggregates: q.Aggregates}
	}

	if len(q.OrderBy) > 0 {
		node = &OrderByNode{Input: node, OrderBy: q.OrderBy}
	}

	if !q.Star {
		node = &ProjectNode{Input: node, Variables: q.Variables}
	}

	if q.Distinct {
		node = &DistinctNode{Input: node}
	}

	if q.Offset > 0 {
		node = &OffsetNode{Input: node, Offset: q.Offset}
	}
	if q.Limit >= 0 {
		node = &LimitNode{Input: node, Limit: q.Limit}
	}

	return node, nil
}

func (p *Planner) planGraphPattern(pattern *parser.GraphPattern) (Node, error) {
	if pattern == nil {
		return nil, nil
	}
	switch pattern.Type {
	case parser.GraphPatternTypeGraph:
		inner, err := p.planBasic(pattern)
		if err != nil {
			return nil, err
		}
		return &GraphNode{Input: inner, IRI: pattern.Graph, Variable: graphVariable(pattern.Graph)}, nil
	default:
		return p.planBasic(pattern)
	}
}

func graphVariable(g *parser.GraphTerm) *parser.Variable {
	if g == nil {
		return nil
	}
	return g.Variable
}

// planBasic lowers one GraphPattern's own triples/paths/filters/binds
// and then folds in its children (UNION branches, OPTIONAL, MINUS,
// nested GRAPH) as the teacher's optimizeBasicGraphPattern does.
func (p *Planner) planBasic(pattern *parser.GraphPattern) (Node, error) {
	var node Node

	if pattern.Type == parser.GraphPatternTypeUnion && len(pattern.Children) == 2 {
		left, err := p.planGraphPattern(pattern.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := p.planGraphPattern(pattern.Children[1])
		if err != nil {
			return nil, err
		}
		return &UnionNode{Left: left, Right: right}, nil
	}

	if len(pattern.Patterns) > 0 {
		if vars, ok := p.tryWCOJ(pattern.Patterns); ok {
			node = &WCOJNode{Patterns: pattern.Patterns, Variables: vars}
		} else {
			ordered := reorderBySelectivity(pattern.Patterns)
			for _, tp := range ordered {
				var leaf Node
				if tp.Predicate.Path != nil {
					leaf = &PathNode{Subject: tp.Subject, Object: tp.Object, Path: tp.Predicate.Path}
				} else {
					leaf = &ScanNode{Pattern: tp}
				}
				if node == nil {
					node = leaf
				} else {
					node = &JoinNode{Left: node, Right: leaf}
				}
			}
		}
	}

	if pattern.Values != nil {
		if node == nil {
			node = &ValuesNode{Values: pattern.Values}
		} else {
			node = &JoinNode{Left: node, Right: &ValuesNode{Values: pattern.Values}}
		}
	}

	for _, child := range pattern.Children {
		childNode, err := p.planGraphPattern(child)
		if err != nil {
			return nil, err
		}
		if childNode == nil {
			continue
		}
		if node == nil {
			node = childNode
			continue
		}
		switch child.Type {
		case parser.GraphPatternTypeOptional:
			node = &LeftJoinNode{Left: node, Right: childNode}
		case parser.GraphPatternTypeMinus:
			node = &MinusNode{Left: node, Right: childNode}
		default:
			node = &JoinNode{Left: node, Right: childNode}
		}
	}

	for _, f := range pattern.Filters {
		if node != nil {
			node = &FilterNode{Input: node, Filter: f}
		}
	}
	for _, b := range pattern.Binds {
		if node != nil {
			node = &BindNode{Input: node, Bind: b}
		}
	}

	return node, nil
}

// reorderBySelectivity sorts triple patterns bound-subject-first, then
// bound-predicate/object, mirroring the teacher's greedy selectivity
// heuristic (cheap to compute, no statistics needed).
func reorderBySelectivity(patterns []*parser.TriplePattern) []*parser.TriplePattern {
	ordered := make([]*parser.TriplePattern, len(patterns))
	copy(ordered, patterns)
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if selectivity(ordered[j]) < selectivity(ordered[i]) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	return ordered
}

// tryWCOJ reports the shared-variable order for patterns when WCOJ is
// enabled and the BGP is a single star or chain, else ok=false.
func (p *Planner) tryWCOJ(patterns []*parser.TriplePattern) ([]string, bool) {
	if !p.enableWCOJ {
		return nil, false
	}
	return detectStarChain(patterns)
}

// detectStarChain inspects the BGP's join-variable topology and returns
// an ordered list of shared variables when the whole BGP is a single
// star (one variable shared by every pattern) or a single chain
// (patterns linked pairwise by distinct shared variables, forming one
// path with no branching or cycles) — the two shapes spec §4.6 rule 1
// targets. Anything else (disjoint patterns, branching, property paths)
// returns ok=false so planBasic falls back to the left-deep chain.
func detectStarChain(patterns []*parser.TriplePattern) (vars []string, ok bool) {
	if len(patterns) < 2 {
		return nil, false
	}
	for _, tp := range patterns {
		if tp.Predicate.Path != nil {
			return nil, false
		}
	}

	occurrences := map[string][]int{}
	for i, tp := range patterns {
		seen := map[string]bool{}
		for _, v := range patternVariables(tp) {
			if seen[v] {
				continue
			}
			seen[v] = true
			occurrences[v] = append(occurrences[v], i)
		}
	}

	var shared []string
	for v, idxs := range occurrences {
		if len(idxs) >= 2 {
			shared = append(shared, v)
		}
	}
	sort.Strings(shared)

	// Star: exactly one shared variable, touching every pattern.
	if len(shared) == 1 && len(occurrences[shared[0]]) == len(patterns) {
		return shared, true
	}

	// Chain: exactly len(patterns)-1 shared variables, each connecting
	// exactly two patterns, forming one simple path over all patterns.
	if len(shared) != len(patterns)-1 {
		return nil, false
	}
	adj := make([][]int, len(patterns))
	varBetween := make(map[[2]int]string)
	for _, v := range shared {
		idxs := occurrences[v]
		if len(idxs) != 2 {
			return nil, false
		}
		a, b := idxs[0], idxs[1]
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
		varBetween[[2]int{a, b}] = v
		varBetween[[2]int{b, a}] = v
	}
	var endpoints []int
	for i, ns := range adj {
		switch len(ns) {
		case 1:
			endpoints = append(endpoints, i)
		case 2:
		default:
			return nil, false
		}
	}
	if len(endpoints) != 2 {
		return nil, false
	}

	order := make([]string, 0, len(patterns)-1)
	visited := make([]bool, len(patterns))
	cur := endpoints[0]
	visited[cur] = true
	for len(order) < len(patterns)-1 {
		advanced := false
		for _, next := range adj[cur] {
			if !visited[next] {
				order = append(order, varBetween[[2]int{cur, next}])
				visited[next] = true
				cur = next
				advanced = true
				break
			}
		}
		if !advanced {
			// A dead end before visiting every pattern means the
			// adjacency graph wasn't one simple path (a cycle or a
			// second component the degree check alone can't catch).
			return nil, false
		}
	}
	return order, true
}

// patternVariables lists the distinct variable names appearing anywhere
// in tp (subject/predicate/object positions).
func patternVariables(tp *parser.TriplePattern) []string {
	var names []string
	if tp.Subject.IsVariable() {
		names = append(names, tp.Subject.Variable.Name)
	}
	if tp.Predicate.IsVariable() {
		names = append(names, tp.Predicate.Variable.Name)
	}
	if tp.Object.IsVariable() {
		names = append(names, tp.Object.Variable.Name)
	}
	return names
}

func selectivity(tp *parser.TriplePattern) float64 {
	s := 1.0
	if !tp.Subject.IsVariable() {
		s *= 0.01
	}
	if !tp.Predicate.IsVariable() && tp.Predicate.Path == nil {
		s *= 0.1
	}
	if !tp.Object.IsVariable() {
		s *= 0.1
	}
	return s
}
