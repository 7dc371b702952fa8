package executor

import (
	"strings"

	"github.com/arbordb/arbor/pkg/rdf"
	"github.com/arbordb/arbor/pkg/rdferr"
	"github.com/arbordb/arbor/pkg/sparql/evaluator"
	"github.com/arbordb/arbor/pkg/sparql/parser"
	"github.com/arbordb/arbor/pkg/store"
)

// evaluateAggregate reduces one group's rows to a single term for an
// aggregate function call (COUNT/SUM/AVG/MIN/MAX/GROUP_CONCAT/SAMPLE).
func evaluateAggregate(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) (rdf.Term, error) {
	switch call.Name {
	case "COUNT":
		return aggregateCount(eval, call, rows)
	case "SUM":
		return aggregateSum(eval, call, rows)
	case "AVG":
		return aggregateAvg(eval, call, rows)
	case "MIN":
		return aggregateMinMax(eval, call, rows, true)
	case "MAX":
		return aggregateMinMax(eval, call, rows, false)
	case "GROUP_CONCAT":
		return aggregateGroupConcat(eval, call, rows)
	case "SAMPLE":
		if len(rows) == 0 {
			return nil, rdferr.NewTypeError("SAMPLE over empty group")
		}
		return eval.Evaluate(call.Args[0], rows[0])
	default:
		return nil, rdferr.NewUnsupportedFeature("aggregate " + call.Name)
	}
}

func aggregateCount(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) (rdf.Term, error) {
	if len(call.Args) == 0 {
		return rdf.NewIntegerLiteral(int64(len(rows))), nil
	}
	seen := make(map[string]bool)
	var n int64
	for _, row := range rows {
		v, err := eval.Evaluate(call.Args[0], row)
		if err != nil {
			continue
		}
		if call.Distinct {
			sig := termSignature(v)
			if seen[sig] {
				continue
			}
			seen[sig] = true
		}
		n++
	}
	return rdf.NewIntegerLiteral(n), nil
}

func collectNumerics(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) ([]rdf.NumericValue, error) {
	seen := make(map[string]bool)
	var values []rdf.NumericValue
	for _, row := range rows {
		v, err := eval.Evaluate(call.Args[0], row)
		if err != nil {
			continue
		}
		lit, ok := v.(*rdf.Literal)
		if !ok {
			return nil, rdferr.NewTypeError("aggregate over non-numeric value")
		}
		num, ok := rdf.ClassifyNumeric(lit)
		if !ok {
			return nil, rdferr.NewTypeError("aggregate over non-numeric value")
		}
		if call.Distinct {
			sig := termSignature(v)
			if seen[sig] {
				continue
			}
			seen[sig] = true
		}
		values = append(values, num)
	}
	return values, nil
}

func aggregateSum(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) (rdf.Term, error) {
	values, err := collectNumerics(eval, call, rows)
	if err != nil {
		return nil, err
	}
	kind := rdf.KindInteger
	var sumInt int64
	var sumFloat float64
	allInt := true
	for _, v := range values {
		kind = rdf.Promote(kind, v.Kind)
		if v.Kind != rdf.KindInteger {
			allInt = false
		}
		sumInt += v.Int
		sumFloat += v.AsFloat()
	}
	if allInt {
		return rdf.NewIntegerLiteral(sumInt), nil
	}
	return rdf.NumericLiteral(kind, sumFloat), nil
}

func aggregateAvg(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) (rdf.Term, error) {
	values, err := collectNumerics(eval, call, rows)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return rdf.NewIntegerLiteral(0), nil
	}
	var sum float64
	kind := rdf.KindInteger
	for _, v := range values {
		sum += v.AsFloat()
		kind = rdf.Promote(kind, v.Kind)
	}
	avg := sum / float64(len(values))
	if kind == rdf.KindInteger {
		kind = rdf.KindDecimal
	}
	return rdf.NumericLiteral(kind, avg), nil
}

func aggregateMinMax(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding, min bool) (rdf.Term, error) {
	var best rdf.Term
	for _, row := range rows {
		v, err := eval.Evaluate(call.Args[0], row)
		if err != nil {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		bl, bok := best.(*rdf.Literal)
		vl, vok := v.(*rdf.Literal)
		if !bok || !vok {
			continue
		}
		c := rdf.CompareLiterals(vl, bl)
		if (min && c < 0) || (!min && c > 0) {
			best = v
		}
	}
	if best == nil {
		return nil, rdferr.NewTypeError("MIN/MAX over empty group")
	}
	return best, nil
}

func aggregateGroupConcat(eval *evaluator.Evaluator, call *parser.FunctionCallExpression, rows []*store.Binding) (rdf.Term, error) {
	sep := " "
	parts := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, row := range rows {
		v, err := eval.Evaluate(call.Args[0], row)
		if err != nil {
			continue
		}
		if call.Distinct {
			sig := termSignature(v)
			if seen[sig] {
				continue
			}
			seen[sig] = true
		}
		parts = append(parts, lexicalForm(v))
	}
	return rdf.NewLiteralWithDatatype(strings.Join(parts, sep), rdf.XSDString), nil
}

func lexicalForm(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.Literal:
		return v.Value
	case *rdf.NamedNode:
		return v.IRI
	default:
		return t.String()
	}
}
