// Package parser turns SPARQL 1.1 query text into an algebra tree: BGP,
// Join, LeftJoin (OPTIONAL), Union, Filter, Extend (BIND), Graph, Path,
// Group, Aggregate, OrderBy, Project, Distinct, Slice, Ask, Construct,
// Describe. Prefix and base resolution happens during parse, the same way
// the teacher's parser folds PREFIX/BASE into IRI resolution rather than
// leaving it for a later pass.
package parser

import "github.com/arbordb/arbor/pkg/rdf"

// QueryType distinguishes the four SPARQL query forms.
type QueryType int

const (
	QueryTypeSelect QueryType = iota + 1
	QueryTypeAsk
	QueryTypeConstruct
	QueryTypeDescribe
)

// Query is the parsed, fully resolved query of whichever form matched.
type Query struct {
	QueryType QueryType
	Select    *SelectQuery
	Ask       *AskQuery
	Construct *ConstructQuery
	Describe  *DescribeQuery
}

// Variable names a SPARQL projection/pattern variable (without the `?`).
type Variable struct {
	Name string
}

// GroupCondition is one GROUP BY key, optionally an aggregate/bind
// expression rather than a bare variable ("GROUP BY (?a + ?b AS ?c)").
type GroupCondition struct {
	Expr Expression
	As   *Variable // non-nil when the condition binds a fresh variable
}

// OrderCondition is one ORDER BY key.
type OrderCondition struct {
	Expr       Expression
	Descending bool
}

// SelectQuery is a SELECT query's resolved form.
type SelectQuery struct {
	Variables  []*Variable // nil/empty means SELECT *
	Star       bool
	Distinct   bool
	Reduced    bool
	Where      *GraphPattern
	GroupBy    []*GroupCondition
	Having     []*Filter
	OrderBy    []*OrderCondition
	Limit      int // -1 means unset
	Offset     int
	Aggregates map[string]*FunctionCallExpression // projected var name -> aggregate call, when SELECT lists an aggregate
}

// ConstructQuery is a CONSTRUCT query's resolved form.
type ConstructQuery struct {
	Template []*TriplePattern
	Where    *GraphPattern
	Limit    int
	Offset   int
}

// AskQuery is an ASK query's resolved form.
type AskQuery struct {
	Where *GraphPattern
}

// DescribeQuery is a DESCRIBE query's resolved form. Resources may be
// bound via a WHERE clause ("DESCRIBE ?x WHERE {...}") or named directly
// ("DESCRIBE <iri>").
type DescribeQuery struct {
	Resources []*TermOrVariable
	Where     *GraphPattern
}

// GraphPatternType tags the shape of a GraphPattern node.
type GraphPatternType int

const (
	GraphPatternTypeBasic GraphPatternType = iota
	GraphPatternTypeUnion
	GraphPatternTypeOptional
	GraphPatternTypeGraph
	GraphPatternTypeMinus
)

// PatternElement preserves the textual order of triples/filters/binds
// within a basic graph pattern. The parser fills GraphPattern.Elements;
// the planner does not read it.
type PatternElement struct {
	Triple *TriplePattern
	Filter *Filter
	Bind   *Bind
}

// GraphPattern is one node of the algebra tree's pattern side (the
// planner further lowers BGP/Union/Optional/Graph/Minus into Join/
// LeftJoin/Union/Graph/Minus plan nodes; GraphPattern is the parser's output
// shape, one level above the planner's).
type GraphPattern struct {
	Type     GraphPatternType
	Patterns []*TriplePattern
	Filters  []*Filter
	Binds    []*Bind
	Values   *ValuesClause
	Children []*GraphPattern
	Elements []PatternElement
	Graph    *GraphTerm // set when Type == GraphPatternTypeGraph
}

// GraphTerm names a graph in a GRAPH clause: either a bound IRI or a
// variable to bind as the pattern is matched against every named graph.
type GraphTerm struct {
	IRI      *rdf.NamedNode
	Variable *Variable
}

// TermOrVariable is a concrete rdf.Term, a SPARQL variable, or (in
// predicate position only) a property path — exactly one of the three
// fields is set.
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
	Path     *PropertyPath // set only in predicate position
}

// IsVariable reports whether this slot is a variable rather than a bound term.
func (t *TermOrVariable) IsVariable() bool { return t.Variable != nil }

// PathOp tags a property path expression's shape (spec §4.5).
type PathOp int

const (
	PathPredicate PathOp = iota // a plain IRI used as a path of length 1
	PathInverse                 // ^p
	PathSequence                // p1/p2
	PathAlternative              // p1|p2
	PathZeroOrMore              // p*
	PathOneOrMore                // p+
	PathZeroOrOne                // p?
	PathNegatedSet                // !(p1|...|pn)
)

// PropertyPath is a SPARQL 1.1 property path expression.
type PropertyPath struct {
	Op       PathOp
	IRI      *rdf.NamedNode // valid when Op == PathPredicate or inside a negated set
	Sub      *PropertyPath  // valid when Op is unary (Inverse/ZeroOrMore/OneOrMore/ZeroOrOne)
	Left     *PropertyPath  // valid when Op is binary (Sequence/Alternative)
	Right    *PropertyPath
	Negated  []*rdf.NamedNode // valid when Op == PathNegatedSet
}

// TriplePattern is one (subject, predicate, object) slot of a BGP; the
// predicate is a property path so a plain IRI and a path expression
// share one representation.
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Object    TermOrVariable
}

// Filter wraps a boolean expression restricting the enclosing pattern.
type Filter struct {
	Expr Expression
}

// Bind assigns the value of Expr to Variable (SPARQL `BIND ... AS ?v`).
type Bind struct {
	Expr     Expression
	Variable *Variable
}

// ValuesClause seeds a set of bindings inline (SPARQL 1.1 VALUES).
type ValuesClause struct {
	Variables []*Variable
	Rows      [][]rdf.Term // nil entry within a row means UNDEF
}

// Expression is any SPARQL filter/bind/select expression node.
type Expression interface {
	exprNode()
}

// Operator enumerates every operator an Expression node may carry.
type Operator int

const (
	OpAnd Operator = iota
	OpOr
	OpNot
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessEqual
	OpGreaterThan
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpUnaryMinus
	OpUnaryPlus
	OpIn
	OpNotIn
)

// BinaryExpression is a two-operand expression (AND/OR/comparisons/arithmetic).
type BinaryExpression struct {
	Op    Operator
	Left  Expression
	Right Expression
}

func (*BinaryExpression) exprNode() {}

// UnaryExpression is a one-operand expression (NOT, unary -, unary +).
type UnaryExpression struct {
	Op      Operator
	Operand Expression
}

func (*UnaryExpression) exprNode() {}

// InExpression implements `expr IN (e1, ..., en)` / `NOT IN`.
type InExpression struct {
	Negated bool
	Operand Expression
	Set     []Expression
}

func (*InExpression) exprNode() {}

// VariableExpression references a bound variable's value.
type VariableExpression struct {
	Variable *Variable
}

func (*VariableExpression) exprNode() {}

// LiteralExpression wraps a constant rdf.Term.
type LiteralExpression struct {
	Term rdf.Term
}

func (*LiteralExpression) exprNode() {}

// FunctionCallExpression is a built-in or aggregate function call: BOUND,
// ISIRI, STR, REGEX, COUNT, SUM, AVG, MIN, MAX, GROUP_CONCAT, SAMPLE, ...
type FunctionCallExpression struct {
	Name     string
	Args     []Expression
	Distinct bool // COUNT(DISTINCT ?x) etc.
}

func (*FunctionCallExpression) exprNode() {}
