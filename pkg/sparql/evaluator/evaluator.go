// Package evaluator evaluates SPARQL FILTER/BIND/SELECT expressions
// against a single solution mapping, implementing the operator and
// built-in function semantics of spec §4.4 and §4.6: xsd numeric
// promotion, effective boolean value coercion, and the rule that a type
// error is row-local (the caller drops the row for FILTER or leaves the
// variable unbound for BIND) rather than fatal to the query.
package evaluator

import (
	"fmt"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/store"
)

// Evaluator evaluates expressions; stateless, safe for concurrent use by
// independent goroutines each holding their own binding.
type Evaluator struct{}

func New() *Evaluator { return &Evaluator{} }

// Evaluate computes expr's value under binding. Operand and type
// failures return a TypeErr per spec §4.6's row-local failure model; an
// unknown function returns an UnsupportedFeatureErr and an unknown
// expression node a plain error. Callers decide what any error means for
// their node (drop row / leave unbound).
func (e *Evaluator) Evaluate(expr parser.Expression, binding *store.Binding) (rdf.Term, error) {
	switch ex := expr.(type) {
	case *parser.BinaryExpression:
		return e.evalBinary(ex, binding)
	case *parser.UnaryExpression:
		return e.evalUnary(ex, binding)
	case *parser.InExpression:
		return e.evalIn(ex, binding)
	case *parser.VariableExpression:
		t, ok := binding.Vars[ex.Variable.Name]
		if !ok {
			return nil, rdferr.NewTypeError("unbound variable ?%s", ex.Variable.Name)
		}
		return t, nil
	case *parser.LiteralExpression:
		return ex.Term, nil
	case *parser.FunctionCallExpression:
		return e.evalFunctionCall(ex, binding)
	default:
		return nil, fmt.Errorf("unsupported expression type %T", expr)
	}
}

func (e *Evaluator) evalBinary(ex *parser.BinaryExpression, binding *store.Binding) (rdf.Term, error) {
	switch ex.Op {
	case parser.OpAnd:
		l, err := e.evalEBV(ex.Left, binding)
		if err != nil {
			return nil, err
		}
		if !l {
			return rdf.NewBooleanLiteral(false), nil
		}
		r, err := e.evalEBV(ex.Right, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(r), nil
	case parser.OpOr:
		l, lerr := e.evalEBV(ex.Left, binding)
		if lerr == nil && l {
			return rdf.NewBooleanLiteral(true), nil
		}
		r, rerr := e.evalEBV(ex.Right, binding)
		if rerr == nil && r {
			return rdf.NewBooleanLiteral(true), nil
		}
		if lerr != nil || rerr != nil {
			return nil, rdferr.NewTypeError("operand of || is not boolean-coercible")
		}
		return rdf.NewBooleanLiteral(false), nil
	}

	left, err := e.Evaluate(ex.Left, binding)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(ex.Right, binding)
	if err != nil {
		return nil, err
	}

	switch ex.Op {
	case parser.OpEqual:
		return rdf.NewBooleanLiteral(termsEqual(left, right)), nil
	case parser.OpNotEqual:
		return rdf.NewBooleanLiteral(!termsEqual(left, right)), nil
	case parser.OpLessThan, parser.OpLessEqual, parser.OpGreaterThan, parser.OpGreaterEqual:
		return e.compareOp(ex.Op, left, right)
	case parser.OpAdd, parser.OpSubtract, parser.OpMultiply, parser.OpDivide:
		return e.arithmetic(ex.Op, left, right)
	default:
		return nil, fmt.Errorf("unsupported binary operator %v", ex.Op)
	}
}

func (e *Evaluator) evalUnary(ex *parser.UnaryExpression, binding *store.Binding) (rdf.Term, error) {
	switch ex.Op {
	case parser.OpNot:
		v, err := e.evalEBV(ex.Operand, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!v), nil
	case parser.OpUnaryPlus:
		return e.Evaluate(ex.Operand, binding)
	case parser.OpUnaryMinus:
		val, err := e.Evaluate(ex.Operand, binding)
		if err != nil {
			return nil, err
		}
		lit, ok := val.(*rdf.Literal)
		if !ok {
			return nil, rdferr.NewTypeError("unary minus on non-literal")
		}
		num, ok := rdf.ClassifyNumeric(lit)
		if !ok {
			return nil, rdferr.NewTypeError("unary minus on non-numeric literal")
		}
		if num.Kind == rdf.KindInteger {
			return rdf.NewIntegerLiteral(-num.Int), nil
		}
		return rdf.NumericLiteral(num.Kind, -num.Flt), nil
	default:
		return nil, fmt.Errorf("unsupported unary operator %v", ex.Op)
	}
}

func (e *Evaluator) evalIn(ex *parser.InExpression, binding *store.Binding) (rdf.Term, error) {
	val, err := e.Evaluate(ex.Operand, binding)
	if err != nil {
		return nil, err
	}
	found := false
	for _, member := range ex.Set {
		mv, err := e.Evaluate(member, binding)
		if err != nil {
			continue
		}
		if termsEqual(val, mv) {
			found = true
			break
		}
	}
	if ex.Negated {
		found = !found
	}
	return rdf.NewBooleanLiteral(found), nil
}

func (e *Evaluator) evalEBV(expr parser.Expression, binding *store.Binding) (bool, error) {
	v, err := e.Evaluate(expr, binding)
	if err != nil {
		return false, err
	}
	ok, err := rdf.EffectiveBooleanValue(v)
	if err != nil {
		return false, rdferr.NewTypeError("%s", err.Error())
	}
	return ok, nil
}

func (e *Evaluator) compareOp(op parser.Operator, left, right rdf.Term) (rdf.Term, error) {
	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if !lok || !rok {
		return nil, rdferr.NewTypeError("relational operator on non-literal operand")
	}
	c := rdf.CompareLiterals(ll, rl)
	var result bool
	switch op {
	case parser.OpLessThan:
		result = c < 0
	case parser.OpLessEqual:
		result = c <= 0
	case parser.OpGreaterThan:
		result = c > 0
	case parser.OpGreaterEqual:
		result = c >= 0
	}
	return rdf.NewBooleanLiteral(result), nil
}

func (e *Evaluator) arithmetic(op parser.Operator, left, right rdf.Term) (rdf.Term, error) {
	ll, lok := left.(*rdf.Literal)
	rl, rok := right.(*rdf.Literal)
	if !lok || !rok {
		return nil, rdferr.NewTypeError("arithmetic operator on non-literal operand")
	}
	ln, lok := rdf.ClassifyNumeric(ll)
	rn, rok := rdf.ClassifyNumeric(rl)
	if !lok || !rok {
		return nil, rdferr.NewTypeError("arithmetic operator on non-numeric operand")
	}
	kind := rdf.Promote(ln.Kind, rn.Kind)

	if kind == rdf.KindInteger && op != parser.OpDivide {
		var r int64
		switch op {
		case parser.OpAdd:
			r = ln.Int + rn.Int
		case parser.OpSubtract:
			r = ln.Int - rn.Int
		case parser.OpMultiply:
			r = ln.Int * rn.Int
		}
		return rdf.NewIntegerLiteral(r), nil
	}

	lf, rf := ln.AsFloat(), rn.AsFloat()
	var r float64
	switch op {
	case parser.OpAdd:
		r = lf + rf
	case parser.OpSubtract:
		r = lf - rf
	case parser.OpMultiply:
		r = lf * rf
	case parser.OpDivide:
		if rf == 0 {
			return nil, rdferr.NewTypeError("division by zero")
		}
		r = lf / rf
		if kind == rdf.KindInteger {
			kind = rdf.KindDecimal
		}
	}
	return rdf.NumericLiteral(kind, r), nil
}

// termsEqual implements SPARQL `=` term equality: numerics by value,
// everything else structurally (spec §3's sameTerm-style equality).
func termsEqual(a, b rdf.Term) bool {
	al, aok := a.(*rdf.Literal)
	bl, bok := b.(*rdf.Literal)
	if aok && bok {
		an, aNum := rdf.ClassifyNumeric(al)
		bn, bNum := rdf.ClassifyNumeric(bl)
		if aNum && bNum {
			return an.AsFloat() == bn.AsFloat()
		}
	}
	return a.Equals(b)
}
