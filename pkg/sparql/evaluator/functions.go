package evaluator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/store"
)

// evalFunctionCall dispatches SPARQL built-ins. Aggregate names
// (COUNT/SUM/AVG/MIN/MAX/GROUP_CONCAT/SAMPLE) are evaluated by the
// executor over a group of bindings, not here, since they need more
// than one row's context.
func (e *Evaluator) evalFunctionCall(fc *parser.FunctionCallExpression, binding *store.Binding) (rdf.Term, error) {
	switch fc.Name {
	case "BOUND":
		v, ok := fc.Args[0].(*parser.VariableExpression)
		if !ok {
			return nil, rdferr.NewTypeError("BOUND expects a variable")
		}
		_, bound := binding.Vars[v.Variable.Name]
		return rdf.NewBooleanLiteral(bound), nil
	case "ISIRI", "ISURI":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		_, ok := t.(*rdf.NamedNode)
		return rdf.NewBooleanLiteral(ok), nil
	case "ISBLANK":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		_, ok := t.(*rdf.BlankNode)
		return rdf.NewBooleanLiteral(ok), nil
	case "ISLITERAL":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		_, ok := t.(*rdf.Literal)
		return rdf.NewBooleanLiteral(ok), nil
	case "ISNUMERIC":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		lit, ok := t.(*rdf.Literal)
		if !ok {
			return rdf.NewBooleanLiteral(false), nil
		}
		_, numeric := rdf.ClassifyNumeric(lit)
		return rdf.NewBooleanLiteral(numeric), nil
	case "STR":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(extractString(t), rdf.XSDString), nil
	case "LANG":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		lit, ok := t.(*rdf.Literal)
		if !ok {
			return nil, rdferr.NewTypeError("LANG expects a literal")
		}
		return rdf.NewLiteralWithDatatype(lit.Language, rdf.XSDString), nil
	case "DATATYPE":
		t, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		lit, ok := t.(*rdf.Literal)
		if !ok {
			return nil, rdferr.NewTypeError("DATATYPE expects a literal")
		}
		if lit.Datatype == nil {
			if lit.Language != "" {
				return rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"), nil
			}
			return rdf.XSDString, nil
		}
		return lit.Datatype, nil
	case "STRLEN":
		s, err := e.evalString(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewIntegerLiteral(int64(len([]rune(s)))), nil
	case "SUBSTR":
		s, err := e.evalString(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		start, err := e.evalInt(fc.Args[1], binding)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		begin := int(start) - 1
		if begin < 0 {
			begin = 0
		}
		if begin > len(runes) {
			begin = len(runes)
		}
		end := len(runes)
		if len(fc.Args) > 2 {
			length, err := e.evalInt(fc.Args[2], binding)
			if err != nil {
				return nil, err
			}
			end = begin + int(length)
			if end > len(runes) {
				end = len(runes)
			}
		}
		if end < begin {
			end = begin
		}
		return rdf.NewLiteralWithDatatype(string(runes[begin:end]), rdf.XSDString), nil
	case "UCASE":
		s, err := e.evalString(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(strings.ToUpper(s), rdf.XSDString), nil
	case "LCASE":
		s, err := e.evalString(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(strings.ToLower(s), rdf.XSDString), nil
	case "CONCAT":
		var sb strings.Builder
		for _, arg := range fc.Args {
			s, err := e.evalString(arg, binding)
			if err != nil {
				return nil, err
			}
			sb.WriteString(s)
		}
		return rdf.NewLiteralWithDatatype(sb.String(), rdf.XSDString), nil
	case "CONTAINS":
		a, b, err := e.evalStringPair(fc.Args, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(strings.Contains(a, b)), nil
	case "STRSTARTS":
		a, b, err := e.evalStringPair(fc.Args, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(strings.HasPrefix(a, b)), nil
	case "STRENDS":
		a, b, err := e.evalStringPair(fc.Args, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(strings.HasSuffix(a, b)), nil
	case "REGEX":
		a, b, err := e.evalStringPair(fc.Args, binding)
		if err != nil {
			return nil, err
		}
		flags := ""
		if len(fc.Args) > 2 {
			flags, err = e.evalString(fc.Args[2], binding)
			if err != nil {
				return nil, err
			}
		}
		pattern := b
		if strings.Contains(flags, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, rdferr.NewTypeError("invalid REGEX pattern: %v", err)
		}
		return rdf.NewBooleanLiteral(re.MatchString(a)), nil
	case "LANGMATCHES":
		a, b, err := e.evalStringPair(fc.Args, binding)
		if err != nil {
			return nil, err
		}
		if b == "*" {
			return rdf.NewBooleanLiteral(a != ""), nil
		}
		return rdf.NewBooleanLiteral(strings.EqualFold(a, b) || strings.HasPrefix(strings.ToLower(a), strings.ToLower(b)+"-")), nil
	case "SAMETERM":
		left, err := e.Evaluate(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		right, err := e.Evaluate(fc.Args[1], binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(left.Equals(right)), nil
	case "ABS", "CEIL", "FLOOR", "ROUND":
		return e.evalMathFunc(fc, binding)
	case "COALESCE":
		for _, arg := range fc.Args {
			v, err := e.Evaluate(arg, binding)
			if err == nil {
				return v, nil
			}
		}
		return nil, rdferr.NewTypeError("COALESCE: all arguments unbound or erroring")
	case "IF":
		cond, err := e.evalEBV(fc.Args[0], binding)
		if err != nil {
			return nil, err
		}
		if cond {
			return e.Evaluate(fc.Args[1], binding)
		}
		return e.Evaluate(fc.Args[2], binding)
	default:
		return nil, rdferr.NewUnsupportedFeature(fmt.Sprintf("function %s", fc.Name))
	}
}

func (e *Evaluator) evalMathFunc(fc *parser.FunctionCallExpression, binding *store.Binding) (rdf.Term, error) {
	v, err := e.Evaluate(fc.Args[0], binding)
	if err != nil {
		return nil, err
	}
	lit, ok := v.(*rdf.Literal)
	if !ok {
		return nil, rdferr.NewTypeError("%s expects a numeric literal", fc.Name)
	}
	num, ok := rdf.ClassifyNumeric(lit)
	if !ok {
		return nil, rdferr.NewTypeError("%s expects a numeric literal", fc.Name)
	}
	if fc.Name == "ABS" && num.Kind == rdf.KindInteger {
		if num.Int < 0 {
			return rdf.NewIntegerLiteral(-num.Int), nil
		}
		return rdf.NewIntegerLiteral(num.Int), nil
	}
	f := num.AsFloat()
	var r float64
	switch fc.Name {
	case "ABS":
		r = math.Abs(f)
	case "CEIL":
		r = math.Ceil(f)
	case "FLOOR":
		r = math.Floor(f)
	case "ROUND":
		r = math.Round(f)
	}
	if num.Kind == rdf.KindInteger {
		return rdf.NewIntegerLiteral(int64(r)), nil
	}
	return rdf.NumericLiteral(num.Kind, r), nil
}

func (e *Evaluator) evalString(expr parser.Expression, binding *store.Binding) (string, error) {
	v, err := e.Evaluate(expr, binding)
	if err != nil {
		return "", err
	}
	return extractString(v), nil
}

func (e *Evaluator) evalStringPair(args []parser.Expression, binding *store.Binding) (string, string, error) {
	a, err := e.evalString(args[0], binding)
	if err != nil {
		return "", "", err
	}
	b, err := e.evalString(args[1], binding)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func (e *Evaluator) evalInt(expr parser.Expression, binding *store.Binding) (int64, error) {
	v, err := e.Evaluate(expr, binding)
	if err != nil {
		return 0, err
	}
	lit, ok := v.(*rdf.Literal)
	if !ok {
		return 0, rdferr.NewTypeError("expected integer literal")
	}
	n, err := strconv.ParseInt(lit.Value, 10, 64)
	if err != nil {
		return 0, rdferr.NewTypeError("expected integer literal, got %q", lit.Value)
	}
	return n, nil
}

func extractString(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.Literal:
		return v.Value
	case *rdf.NamedNode:
		return v.IRI
	default:
		return t.String()
	}
}
