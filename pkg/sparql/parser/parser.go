package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
)

// Parser parses SPARQL 1.1 query text.
type Parser struct {
	input    string
	pos      int
	length   int
	line     int
	col      int
	prefixes map[string]string
	baseURI  string
	blankSeq int
}

// NewParser creates a parser seeded with a base IRI and prefix map (the
// `default_base`/`default_prefixes` options from spec §6).
func NewParser(input string, baseURI string, prefixes map[string]string) *Parser {
	p := &Parser{
		input:    input,
		length:   len(input),
		line:     1,
		col:      1,
		prefixes: make(map[string]string),
		baseURI:  baseURI,
	}
	for k, v := range prefixes {
		p.prefixes[k] = v
	}
	return p
}

// Parse parses a complete SPARQL query.
func (p *Parser) Parse() (*Query, error) {
	p.skipWhitespace()
	for {
		p.skipWhitespace()
		if p.matchKeyword("PREFIX") {
			if err := p.parsePrefixDecl(); err != nil {
				return nil, err
			}
			continue
		}
		if p.matchKeyword("BASE") {
			if err := p.parseBaseDecl(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	p.skipWhitespace()
	switch {
	case p.matchKeyword("SELECT"):
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &Query{QueryType: QueryTypeSelect, Select: sel}, nil
	case p.matchKeyword("ASK"):
		ask, err := p.parseAsk()
		if err != nil {
			return nil, err
		}
		return &Query{QueryType: QueryTypeAsk, Ask: ask}, nil
	case p.matchKeyword("CONSTRUCT"):
		c, err := p.parseConstruct()
		if err != nil {
			return nil, err
		}
		return &Query{QueryType: QueryTypeConstruct, Construct: c}, nil
	case p.matchKeyword("DESCRIBE"):
		d, err := p.parseDescribe()
		if err != nil {
			return nil, err
		}
		return &Query{QueryType: QueryTypeDescribe, Describe: d}, nil
	default:
		return nil, p.errf("expected SELECT, ASK, CONSTRUCT or DESCRIBE")
	}
}

func (p *Parser) parsePrefixDecl() error {
	p.skipWhitespace()
	name := p.readWhile(func(b byte) bool { return b != ':' && !isWS(b) })
	if p.peek() != ':' {
		return p.errf("expected ':' in PREFIX declaration")
	}
	p.advance()
	p.skipWhitespace()
	iri, err := p.parseIRIRef()
	if err != nil {
		return err
	}
	p.prefixes[name] = iri
	return nil
}

func (p *Parser) parseBaseDecl() error {
	p.skipWhitespace()
	iri, err := p.parseIRIRef()
	if err != nil {
		return err
	}
	p.baseURI = iri
	return nil
}

// parseSelect parses everything after the SELECT keyword.
func (p *Parser) parseSelect() (*SelectQuery, error) {
	q := &SelectQuery{Limit: -1, Aggregates: make(map[string]*FunctionCallExpression)}
	p.skipWhitespace()
	if p.matchKeyword("DISTINCT") {
		q.Distinct = true
	} else if p.matchKeyword("REDUCED") {
		q.Reduced = true
	}

	p.skipWhitespace()
	if p.peek() == '*' {
		p.advance()
		q.Star = true
	} else {
		for {
			p.skipWhitespace()
			if p.peek() == '(' {
				p.advance()
				expr, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				p.skipWhitespace()
				if !p.matchKeyword("AS") {
					return nil, p.errf("expected AS in select expression")
				}
				p.skipWhitespace()
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				p.skipWhitespace()
				if p.peek() != ')' {
					return nil, p.errf("expected ')' after AS variable")
				}
				p.advance()
				q.Variables = append(q.Variables, v)
				if fc, ok := expr.(*FunctionCallExpression); ok && isAggregateName(fc.Name) {
					q.Aggregates[v.Name] = fc
				}
				continue
			}
			if p.peek() != '?' && p.peek() != '$' {
				break
			}
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			q.Variables = append(q.Variables, v)
		}
	}

	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if !p.matchKeyword("WHERE") {
		return nil, p.errf("expected WHERE")
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	q.Where = where

	if err := p.parseSolutionModifiers(&q.GroupBy, &q.Having, &q.OrderBy, &q.Limit, &q.Offset); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *Parser) parseAsk() (*AskQuery, error) {
	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.matchKeyword("WHERE") {
		return nil, p.errf("expected WHERE")
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	return &AskQuery{Where: where}, nil
}

func (p *Parser) parseConstruct() (*ConstructQuery, error) {
	p.skipWhitespace()
	template, err := p.parseTemplate()
	if err != nil {
		return nil, err
	}
	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.matchKeyword("WHERE") {
		return nil, p.errf("expected WHERE")
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	c := &ConstructQuery{Template: template, Where: where, Limit: -1}
	var group []*GroupCondition
	var having []*Filter
	var order []*OrderCondition
	if err := p.parseSolutionModifiers(&group, &having, &order, &c.Limit, &c.Offset); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseTemplate() ([]*TriplePattern, error) {
	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, p.errf("expected '{' to start CONSTRUCT template")
	}
	p.advance()
	var out []*TriplePattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		triples, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		out = append(out, triples...)
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}
	return out, nil
}

func (p *Parser) parseDescribe() (*DescribeQuery, error) {
	d := &DescribeQuery{}
	p.skipWhitespace()
	if p.peek() == '*' {
		p.advance()
	} else {
		for {
			p.skipWhitespace()
			if p.peek() != '?' && p.peek() != '$' && p.peek() != '<' && !isPrefixedNameStart(p.peek()) {
				break
			}
			term, err := p.parseTermOrVariable()
			if err != nil {
				return nil, err
			}
			d.Resources = append(d.Resources, term)
		}
	}
	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.matchKeyword("WHERE") {
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		d.Where = where
	}
	return d, nil
}

func (p *Parser) parseDatasetClauses() error {
	for {
		p.skipWhitespace()
		if !p.matchKeyword("FROM") {
			return nil
		}
		p.skipWhitespace()
		p.matchKeyword("NAMED")
		p.skipWhitespace()
		if _, err := p.parseIRIRef(); err != nil {
			return err
		}
	}
}

func (p *Parser) parseSolutionModifiers(group *[]*GroupCondition, having *[]*Filter, order *[]*OrderCondition, limit, offset *int) error {
	p.skipWhitespace()
	if p.matchKeyword("GROUP") {
		p.skipWhitespace()
		if !p.matchKeyword("BY") {
			return p.errf("expected BY after GROUP")
		}
		for {
			p.skipWhitespace()
			c, ok, err := p.tryParseGroupCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			*group = append(*group, c)
		}
	}

	p.skipWhitespace()
	if p.matchKeyword("HAVING") {
		p.skipWhitespace()
		if p.peek() != '(' {
			return p.errf("expected '(' after HAVING")
		}
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return p.errf("expected ')' after HAVING expression")
		}
		p.advance()
		*having = append(*having, &Filter{Expr: expr})
	}

	p.skipWhitespace()
	if p.matchKeyword("ORDER") {
		p.skipWhitespace()
		if !p.matchKeyword("BY") {
			return p.errf("expected BY after ORDER")
		}
		for {
			p.skipWhitespace()
			c, ok, err := p.tryParseOrderCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			*order = append(*order, c)
		}
	}

	p.skipWhitespace()
	if p.matchKeyword("LIMIT") {
		p.skipWhitespace()
		n, err := p.parseInteger()
		if err != nil {
			return err
		}
		*limit = n
	}
	p.skipWhitespace()
	if p.matchKeyword("OFFSET") {
		p.skipWhitespace()
		n, err := p.parseInteger()
		if err != nil {
			return err
		}
		*offset = n
	}
	return nil
}

func (p *Parser) tryParseGroupCondition() (*GroupCondition, bool, error) {
	ch := p.peek()
	if ch == '?' || ch == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, false, err
		}
		return &GroupCondition{Expr: &VariableExpression{Variable: v}}, true, nil
	}
	if ch == '(' {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, false, err
		}
		p.skipWhitespace()
		var as *Variable
		if p.matchKeyword("AS") {
			p.skipWhitespace()
			v, err := p.parseVariable()
			if err != nil {
				return nil, false, err
			}
			as = v
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, false, p.errf("expected ')' in GROUP BY condition")
		}
		p.advance()
		return &GroupCondition{Expr: expr, As: as}, true, nil
	}
	return nil, false, nil
}

func (p *Parser) tryParseOrderCondition() (*OrderCondition, bool, error) {
	desc := false
	if p.matchKeyword("DESC") {
		desc = true
	} else {
		p.matchKeyword("ASC")
	}
	p.skipWhitespace()
	ch := p.peek()
	if ch == 0 || ch == '}' {
		return nil, false, nil
	}
	var expr Expression
	var err error
	if ch == '(' {
		p.advance()
		expr, err = p.parseExpression()
		if err != nil {
			return nil, false, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, false, p.errf("expected ')' in ORDER BY condition")
		}
		p.advance()
	} else if ch == '?' || ch == '$' {
		v, verr := p.parseVariable()
		if verr != nil {
			return nil, false, verr
		}
		expr = &VariableExpression{Variable: v}
	} else {
		return nil, false, nil
	}
	return &OrderCondition{Expr: expr, Descending: desc}, true, nil
}

// parseGraphPattern parses a `{ ... }` group graph pattern.
func (p *Parser) parseGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, p.errf("expected '{' to start graph pattern")
	}
	p.advance()

	pattern := &GraphPattern{Type: GraphPatternTypeBasic}

	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}

		switch {
		case p.matchKeyword("GRAPH"):
			gp, err := p.parseGraphGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.Children = append(pattern.Children, gp)
			continue
		case p.matchKeyword("OPTIONAL"):
			opt, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			opt.Type = GraphPatternTypeOptional
			pattern.Children = append(pattern.Children, opt)
			continue
		case p.matchKeyword("MINUS"):
			m, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			m.Type = GraphPatternTypeMinus
			pattern.Children = append(pattern.Children, m)
			continue
		case p.matchKeyword("FILTER"):
			f, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			pattern.Filters = append(pattern.Filters, f)
			pattern.Elements = append(pattern.Elements, PatternElement{Filter: f})
			continue
		case p.matchKeyword("BIND"):
			b, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			pattern.Binds = append(pattern.Binds, b)
			pattern.Elements = append(pattern.Elements, PatternElement{Bind: b})
			continue
		case p.matchKeyword("VALUES"):
			v, err := p.parseValuesClause()
			if err != nil {
				return nil, err
			}
			pattern.Values = v
			continue
		}

		if p.peek() == '{' {
			nested, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			p.skipWhitespace()
			if p.matchKeyword("UNION") {
				right, err := p.parseGraphPattern()
				if err != nil {
					return nil, err
				}
				union := &GraphPattern{Type: GraphPatternTypeUnion, Children: []*GraphPattern{nested, right}}
				pattern.Children = append(pattern.Children, union)
			} else {
				pattern.Children = append(pattern.Children, nested)
			}
			continue
		}

		triples, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		pattern.Patterns = append(pattern.Patterns, triples...)
		for _, t := range triples {
			pattern.Elements = append(pattern.Elements, PatternElement{Triple: t})
		}
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}
	return pattern, nil
}

func (p *Parser) parseGraphGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()
	term := &GraphTerm{}
	switch {
	case p.peek() == '?' || p.peek() == '$':
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		term.Variable = v
	case p.peek() == '<' || isPrefixedNameStart(p.peek()):
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		term.IRI = rdf.NewNamedNode(iri)
	default:
		return nil, p.errf("expected IRI or variable after GRAPH")
	}
	nested, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	nested.Type = GraphPatternTypeGraph
	nested.Graph = term
	return nested, nil
}

func (p *Parser) parseValuesClause() (*ValuesClause, error) {
	vc := &ValuesClause{}
	p.skipWhitespace()
	if p.peek() == '(' {
		p.advance()
		for {
			p.skipWhitespace()
			if p.peek() == ')' {
				p.advance()
				break
			}
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			vc.Variables = append(vc.Variables, v)
		}
	} else {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		vc.Variables = []*Variable{v}
	}

	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, p.errf("expected '{' in VALUES clause")
	}
	p.advance()
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		row, err := p.parseValuesRow(len(vc.Variables))
		if err != nil {
			return nil, err
		}
		vc.Rows = append(vc.Rows, row)
	}
	return vc, nil
}

func (p *Parser) parseValuesRow(width int) ([]rdf.Term, error) {
	p.skipWhitespace()
	multi := p.peek() == '('
	if multi {
		p.advance()
	}
	row := make([]rdf.Term, 0, width)
	for i := 0; i < width; i++ {
		p.skipWhitespace()
		if p.matchKeyword("UNDEF") {
			row = append(row, nil)
			continue
		}
		term, err := p.parseTermOrVariable()
		if err != nil {
			return nil, err
		}
		row = append(row, term.Term)
	}
	if multi {
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, p.errf("expected ')' closing VALUES row")
		}
		p.advance()
	}
	return row, nil
}

func (p *Parser) parseTriplePattern() (*TriplePattern, error) {
	p.skipWhitespace()
	subj, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	p.skipWhitespace()
	pred, err := p.parsePredicate()
	if err != nil {
		return nil, fmt.Errorf("predicate: %w", err)
	}
	p.skipWhitespace()
	obj, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}
	return &TriplePattern{Subject: *subj, Predicate: *pred, Object: *obj}, nil
}

func (p *Parser) parseTriplePatterns() ([]*TriplePattern, error) {
	var triples []*TriplePattern
	first, err := p.parseTriplePattern()
	if err != nil {
		return nil, err
	}
	triples = append(triples, first)
	last := first

	for {
		p.skipWhitespace()
		switch p.peek() {
		case ',':
			p.advance()
			p.skipWhitespace()
			obj, err := p.parseTermOrVariable()
			if err != nil {
				return nil, err
			}
			last = &TriplePattern{Subject: last.Subject, Predicate: last.Predicate, Object: *obj}
			triples = append(triples, last)
		case ';':
			p.advance()
			p.skipWhitespace()
			if p.peek() == '.' || p.peek() == '}' {
				return triples, nil
			}
			pred, err := p.parsePredicate()
			if err != nil {
				return nil, err
			}
			p.skipWhitespace()
			obj, err := p.parseTermOrVariable()
			if err != nil {
				return nil, err
			}
			last = &TriplePattern{Subject: first.Subject, Predicate: *pred, Object: *obj}
			triples = append(triples, last)
		default:
			return triples, nil
		}
	}
}

// parsePredicate parses a predicate position: either a plain term/variable
// or a property path expression (spec §4.5).
func (p *Parser) parsePredicate() (*TermOrVariable, error) {
	p.skipWhitespace()
	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Variable: v}, nil
	}
	if p.matchKeyword("a") {
		return &TermOrVariable{Term: rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
	}
	path, err := p.parsePathAlternative()
	if err != nil {
		return nil, err
	}
	if path.Op == PathPredicate {
		return &TermOrVariable{Term: path.IRI}, nil
	}
	return &TermOrVariable{Path: path}, nil
}

func (p *Parser) parsePathAlternative() (*PropertyPath, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peek() != '|' {
			return left, nil
		}
		p.advance()
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = &PropertyPath{Op: PathAlternative, Left: left, Right: right}
	}
}

func (p *Parser) parsePathSequence() (*PropertyPath, error) {
	left, err := p.parsePathPostfix()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peek() != '/' {
			return left, nil
		}
		p.advance()
		right, err := p.parsePathPostfix()
		if err != nil {
			return nil, err
		}
		left = &PropertyPath{Op: PathSequence, Left: left, Right: right}
	}
}

func (p *Parser) parsePathPostfix() (*PropertyPath, error) {
	base, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	switch p.peek() {
	case '*':
		p.advance()
		return &PropertyPath{Op: PathZeroOrMore, Sub: base}, nil
	case '+':
		p.advance()
		return &PropertyPath{Op: PathOneOrMore, Sub: base}, nil
	case '?':
		// Ambiguous with the end of a predicate term-or-variable parse
		// only at top level; inside a path this is always the cardinality
		// modifier since a bare '?' cannot start a term here.
		p.advance()
		return &PropertyPath{Op: PathZeroOrOne, Sub: base}, nil
	}
	return base, nil
}

func (p *Parser) parsePathPrimary() (*PropertyPath, error) {
	p.skipWhitespace()
	switch p.peek() {
	case '^':
		p.advance()
		sub, err := p.parsePathPrimary()
		if err != nil {
			return nil, err
		}
		return &PropertyPath{Op: PathInverse, Sub: sub}, nil
	case '(':
		p.advance()
		inner, err := p.parsePathAlternative()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, p.errf("expected ')' in property path")
		}
		p.advance()
		return inner, nil
	case '!':
		p.advance()
		p.skipWhitespace()
		var iris []*rdf.NamedNode
		if p.peek() == '(' {
			p.advance()
			for {
				p.skipWhitespace()
				iri, err := p.parseIRIOrPrefixedName()
				if err != nil {
					return nil, err
				}
				iris = append(iris, rdf.NewNamedNode(iri))
				p.skipWhitespace()
				if p.peek() == '|' {
					p.advance()
					continue
				}
				break
			}
			p.skipWhitespace()
			if p.peek() != ')' {
				return nil, p.errf("expected ')' in negated property set")
			}
			p.advance()
		} else {
			iri, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return nil, err
			}
			iris = append(iris, rdf.NewNamedNode(iri))
		}
		return &PropertyPath{Op: PathNegatedSet, Negated: iris}, nil
	default:
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &PropertyPath{Op: PathPredicate, IRI: rdf.NewNamedNode(iri)}, nil
	}
}

func (p *Parser) parseTermOrVariable() (*TermOrVariable, error) {
	p.skipWhitespace()
	ch := p.peek()
	switch {
	case ch == '?' || ch == '$':
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Variable: v}, nil
	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(p.resolveIRI(iri))}, nil
	case ch == '"' || ch == '\'':
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: lit}, nil
	case ch == '_':
		bn, err := p.parseBlankNode()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: bn}, nil
	case ch == '[':
		p.advance()
		p.skipWhitespace()
		if p.peek() != ']' {
			return nil, p.errf("anonymous blank nodes with properties are not supported in patterns")
		}
		p.advance()
		p.blankSeq++
		return &TermOrVariable{Term: rdf.NewBlankNode(fmt.Sprintf("anon%d", p.blankSeq))}, nil
	case ch == '-' || ch == '+' || isDigit(ch):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: lit}, nil
	case p.matchKeyword("true"):
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(true)}, nil
	case p.matchKeyword("false"):
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(false)}, nil
	case p.matchKeyword("a"):
		return &TermOrVariable{Term: rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
	default:
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	}
}

func (p *Parser) parseVariable() (*Variable, error) {
	if p.peek() != '?' && p.peek() != '$' {
		return nil, p.errf("expected variable")
	}
	p.advance()
	name := p.readWhile(isNameChar)
	if name == "" {
		return nil, p.errf("empty variable name")
	}
	return &Variable{Name: name}, nil
}

func (p *Parser) parseIRIRef() (string, error) {
	if p.peek() != '<' {
		return "", p.errf("expected '<' to start IRI")
	}
	p.advance()
	start := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		p.advance()
	}
	if p.pos >= p.length {
		return "", p.errf("unterminated IRI")
	}
	iri := p.input[start:p.pos]
	p.advance() // consume '>'
	return iri, nil
}

func (p *Parser) parseIRIOrPrefixedName() (string, error) {
	p.skipWhitespace()
	if p.peek() == '<' {
		iri, err := p.parseIRIRef()
		if err != nil {
			return "", err
		}
		return p.resolveIRI(iri), nil
	}
	return p.parsePrefixedName()
}

func (p *Parser) parsePrefixedName() (string, error) {
	prefix := p.readWhile(func(b byte) bool { return b != ':' && isNameChar(b) })
	if p.peek() != ':' {
		return "", p.errf("expected ':' in prefixed name")
	}
	p.advance()
	local := p.readWhile(isNameChar)
	base, ok := p.prefixes[prefix]
	if !ok {
		return "", p.errf("unknown prefix %q", prefix)
	}
	return base + local, nil
}

func (p *Parser) resolveIRI(iri string) string {
	if strings.Contains(iri, ":") || p.baseURI == "" {
		return iri
	}
	return p.baseURI + iri
}

func (p *Parser) parseStringLiteral() (*rdf.Literal, error) {
	quote := p.peek()
	long := false
	if p.pos+2 < p.length && p.input[p.pos+1] == quote && p.input[p.pos+2] == quote {
		long = true
		p.advance()
		p.advance()
		p.advance()
	} else {
		p.advance()
	}

	var sb strings.Builder
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == '\\' && p.pos+1 < p.length {
			esc, n := decodeEscape(p.input[p.pos:])
			sb.WriteString(esc)
			for i := 0; i < n; i++ {
				p.advance()
			}
			continue
		}
		if long {
			if ch == quote && p.pos+2 < p.length && p.input[p.pos+1] == quote && p.input[p.pos+2] == quote {
				p.advance()
				p.advance()
				p.advance()
				break
			}
		} else if ch == quote {
			p.advance()
			break
		}
		sb.WriteByte(ch)
		p.advance()
	}

	value := sb.String()
	if p.peek() == '@' {
		p.advance()
		lang := p.readWhile(func(b byte) bool { return b == '-' || isAlnum(b) })
		return rdf.NewLiteralWithLanguage(value, lang), nil
	}
	if p.peek() == '^' && p.pos+1 < p.length && p.input[p.pos+1] == '^' {
		p.advance()
		p.advance()
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(iri)), nil
	}
	return rdf.NewLiteralWithDatatype(value, rdf.XSDString), nil
}

func (p *Parser) parseBlankNode() (*rdf.BlankNode, error) {
	p.advance() // '_'
	if p.peek() != ':' {
		return nil, p.errf("expected ':' after '_' in blank node label")
	}
	p.advance()
	label := p.readWhile(isNameChar)
	return rdf.NewBlankNode(label), nil
}

func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.advance()
	}
	for isDigit(p.peek()) {
		p.advance()
	}
	isDouble := false
	isDecimal := false
	if p.peek() == '.' {
		isDecimal = true
		p.advance()
		for isDigit(p.peek()) {
			p.advance()
		}
	}
	if p.peek() == 'e' || p.peek() == 'E' {
		isDouble = true
		p.advance()
		if p.peek() == '+' || p.peek() == '-' {
			p.advance()
		}
		for isDigit(p.peek()) {
			p.advance()
		}
	}
	lexical := p.input[start:p.pos]
	switch {
	case isDouble:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDDouble), nil
	case isDecimal:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDDecimal), nil
	default:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDInteger), nil
	}
}

func (p *Parser) parseFilter() (*Filter, error) {
	p.skipWhitespace()
	// FILTER ( expr ) or FILTER builtinCall
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Filter{Expr: expr}, nil
}

func (p *Parser) parseBind() (*Bind, error) {
	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, p.errf("expected '(' after BIND")
	}
	p.advance()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.matchKeyword("AS") {
		return nil, p.errf("expected AS in BIND")
	}
	p.skipWhitespace()
	v, err := p.parseVariable()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.peek() != ')' {
		return nil, p.errf("expected ')' closing BIND")
	}
	p.advance()
	return &Bind{Expr: expr, Variable: v}, nil
}

func (p *Parser) parseInteger() (int, error) {
	start := p.pos
	if p.peek() == '-' {
		p.advance()
	}
	for isDigit(p.peek()) {
		p.advance()
	}
	if p.pos == start {
		return 0, p.errf("expected integer")
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return 0, p.errf("invalid integer: %v", err)
	}
	return n, nil
}

// --- expression grammar: Or > And > Comparison/IN > Additive > Multiplicative > Unary > Primary ---

func (p *Parser) parseExpression() (Expression, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.pos+1 < p.length && p.input[p.pos] == '|' && p.input[p.pos+1] == '|' {
			p.advance()
			p.advance()
			right, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpOr, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *Parser) parseAnd() (Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.pos+1 < p.length && p.input[p.pos] == '&' && p.input[p.pos+1] == '&' {
			p.advance()
			p.advance()
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpAnd, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *Parser) parseComparison() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	op, n, ok := matchCompareOp(p.input[p.pos:])
	if ok {
		for i := 0; i < n; i++ {
			p.advance()
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Op: op, Left: left, Right: right}, nil
	}
	p.skipWhitespace()
	negated := false
	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		negated = true
	}
	if p.matchKeyword("IN") {
		set, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &InExpression{Negated: negated, Operand: left, Set: set}, nil
	}
	return left, nil
}

func matchCompareOp(s string) (Operator, int, bool) {
	switch {
	case strings.HasPrefix(s, "<="):
		return OpLessEqual, 2, true
	case strings.HasPrefix(s, ">="):
		return OpGreaterEqual, 2, true
	case strings.HasPrefix(s, "!="):
		return OpNotEqual, 2, true
	case strings.HasPrefix(s, "="):
		return OpEqual, 1, true
	case strings.HasPrefix(s, "<"):
		return OpLessThan, 1, true
	case strings.HasPrefix(s, ">"):
		return OpGreaterThan, 1, true
	default:
		return 0, 0, false
	}
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, p.errf("expected '(' in expression list")
	}
	p.advance()
	var out []Expression
	for {
		p.skipWhitespace()
		if p.peek() == ')' {
			p.advance()
			break
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		p.skipWhitespace()
		if p.peek() == ',' {
			p.advance()
			continue
		}
	}
	return out, nil
}

func (p *Parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		switch p.peek() {
		case '+':
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpAdd, Left: left, Right: right}
		case '-':
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpSubtract, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		switch p.peek() {
		case '*':
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpMultiply, Left: left, Right: right}
		case '/':
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Op: OpDivide, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseUnary() (Expression, error) {
	p.skipWhitespace()
	switch p.peek() {
	case '!':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Op: OpNot, Operand: operand}, nil
	case '-':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Op: OpUnaryMinus, Operand: operand}, nil
	case '+':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Op: OpUnaryPlus, Operand: operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (Expression, error) {
	p.skipWhitespace()
	ch := p.peek()
	switch {
	case ch == '(':
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, p.errf("expected ')' closing expression")
		}
		p.advance()
		return expr, nil
	case ch == '?' || ch == '$':
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: v}, nil
	case ch == '"' || ch == '\'':
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Term: lit}, nil
	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Term: rdf.NewNamedNode(p.resolveIRI(iri))}, nil
	case isDigit(ch):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Term: lit}, nil
	case p.matchKeyword("true"):
		return &LiteralExpression{Term: rdf.NewBooleanLiteral(true)}, nil
	case p.matchKeyword("false"):
		return &LiteralExpression{Term: rdf.NewBooleanLiteral(false)}, nil
	default:
		return p.parseFunctionCall()
	}
}

var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"GROUP_CONCAT": true, "SAMPLE": true,
}

func isAggregateName(name string) bool { return aggregateNames[strings.ToUpper(name)] }

func (p *Parser) parseFunctionCall() (Expression, error) {
	name := p.readWhile(func(b byte) bool { return isAlnum(b) || b == '_' || b == ':' })
	if name == "" {
		return nil, p.errf("expected expression")
	}
	p.skipWhitespace()
	if p.peek() != '(' {
		// bare IRI/prefixed-name token used as a constant in an expression context
		return &LiteralExpression{Term: rdf.NewNamedNode(name)}, nil
	}
	p.advance()
	fc := &FunctionCallExpression{Name: strings.ToUpper(name)}
	p.skipWhitespace()
	if p.matchKeyword("DISTINCT") {
		fc.Distinct = true
	}
	p.skipWhitespace()
	if p.peek() == '*' { // COUNT(*)
		p.advance()
		fc.Args = append(fc.Args, &LiteralExpression{Term: rdf.NewNamedNode("*")})
	} else if p.peek() != ')' {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			fc.Args = append(fc.Args, arg)
			p.skipWhitespace()
			if p.peek() == ',' {
				p.advance()
				continue
			}
			break
		}
	}
	p.skipWhitespace()
	if p.peek() != ')' {
		return nil, p.errf("expected ')' closing function call %s", name)
	}
	p.advance()
	return fc, nil
}

// --- lexical helpers ---

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) advance() {
	if p.pos >= p.length {
		return
	}
	if p.input[p.pos] == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	p.pos++
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		if isWS(ch) {
			p.advance()
			continue
		}
		if ch == '#' {
			for p.pos < p.length && p.input[p.pos] != '\n' {
				p.advance()
			}
			continue
		}
		break
	}
}

func (p *Parser) readWhile(pred func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && pred(p.input[p.pos]) {
		p.advance()
	}
	return p.input[start:p.pos]
}

// matchKeyword consumes keyword (case-insensitive) if it appears next,
// requiring a non-identifier boundary after it.
func (p *Parser) matchKeyword(keyword string) bool {
	p.skipWhitespace()
	end := p.pos + len(keyword)
	if end > p.length {
		return false
	}
	if !strings.EqualFold(p.input[p.pos:end], keyword) {
		return false
	}
	if end < p.length && isNameChar(p.input[end]) {
		return false
	}
	for i := 0; i < len(keyword); i++ {
		p.advance()
	}
	return true
}

func (p *Parser) errf(format string, args ...any) error {
	return rdferr.NewParseError(p.line, p.col, format, args...)
}

func isWS(b byte) bool    { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }
func isNameChar(b byte) bool {
	return isAlnum(b) || b == '_' || b == '-' || b > 127
}
func isPrefixedNameStart(b byte) bool { return isAlpha(b) || b == ':' }

// decodeEscape decodes one escape sequence at the start of s (which
// begins with '\'), returning the decoded text and the number of input
// bytes consumed.
func decodeEscape(s string) (string, int) {
	if len(s) < 2 {
		return s, len(s)
	}
	switch s[1] {
	case 't':
		return "\t", 2
	case 'n':
		return "\n", 2
	case 'r':
		return "\r", 2
	case '"':
		return "\"", 2
	case '\'':
		return "'", 2
	case '\\':
		return "\\", 2
	case 'u':
		if len(s) >= 6 {
			n, err := strconv.ParseInt(s[2:6], 16, 32)
			if err == nil {
				return string(rune(n)), 6
			}
		}
	case 'U':
		if len(s) >= 10 {
			n, err := strconv.ParseInt(s[2:10], 16, 32)
			if err == nil {
				return string(rune(n)), 10
			}
		}
	}
	return s[1:2], 2
}
