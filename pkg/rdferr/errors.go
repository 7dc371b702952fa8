// Package rdferr defines the stable error taxonomy shared by every layer of
// the store: parsing, query execution, the Datalog engine and the reasoner.
// Each kind carries an enumerable tag so callers can branch on it without
// string-matching messages, and none carry a backtrace so assertions stay
// stable across runs.
package rdferr

import "fmt"

// Kind tags an error with its taxonomy category.
type Kind string

const (
	KindParseError         Kind = "ParseError"
	KindInvalidID          Kind = "InvalidId"
	KindTypeError          Kind = "TypeError"
	KindUnsupportedFeature Kind = "UnsupportedFeature"
	KindCardinalityLimit   Kind = "CardinalityLimit"
	KindRuleShapeError     Kind = "RuleShapeError"
	KindCancelled          Kind = "Cancelled"
	KindInvariantViolation Kind = "InvariantViolation"
)

// ParseErr reports malformed Turtle/N-Triples/N-Quads/SPARQL input.
type ParseErr struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseErr) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

func (e *ParseErr) Kind() Kind { return KindParseError }

// NewParseError builds a ParseErr.
func NewParseError(line, column int, format string, args ...any) *ParseErr {
	return &ParseErr{Line: line, Column: column, Message: fmt.Sprintf(format, args...)}
}

// InvalidIDErr reports a dictionary lookup of an id that was never assigned.
type InvalidIDErr struct {
	ID uint64
}

func (e *InvalidIDErr) Error() string {
	return fmt.Sprintf("invalid id: %d", e.ID)
}

func (e *InvalidIDErr) Kind() Kind { return KindInvalidID }

// TypeErr reports a SPARQL arithmetic/casting failure. Row-level: the
// caller drops the row (FILTER) or leaves the variable unbound (BIND).
type TypeErr struct {
	Message string
}

func (e *TypeErr) Error() string { return "type error: " + e.Message }

func (e *TypeErr) Kind() Kind { return KindTypeError }

func NewTypeError(format string, args ...any) *TypeErr {
	return &TypeErr{Message: fmt.Sprintf(format, args...)}
}

// UnsupportedFeatureErr names a construct outside the store's scope
// (SPARQL Update, SERVICE, ...).
type UnsupportedFeatureErr struct {
	Feature string
}

func (e *UnsupportedFeatureErr) Error() string {
	return "unsupported feature: " + e.Feature
}

func (e *UnsupportedFeatureErr) Kind() Kind { return KindUnsupportedFeature }

func NewUnsupportedFeature(feature string) *UnsupportedFeatureErr {
	return &UnsupportedFeatureErr{Feature: feature}
}

// CardinalityLimitErr reports max_rows or path_depth_limit being exceeded.
type CardinalityLimitErr struct {
	Limit   int
	Message string
}

func (e *CardinalityLimitErr) Error() string {
	return fmt.Sprintf("cardinality limit exceeded (%d): %s", e.Limit, e.Message)
}

func (e *CardinalityLimitErr) Kind() Kind { return KindCardinalityLimit }

func NewCardinalityLimit(limit int, format string, args ...any) *CardinalityLimitErr {
	return &CardinalityLimitErr{Limit: limit, Message: fmt.Sprintf(format, args...)}
}

// RuleShapeErr reports a Datalog rule that fails range-restriction or
// introduces an ungrounded head term.
type RuleShapeErr struct {
	Message string
}

func (e *RuleShapeErr) Error() string { return "rule shape error: " + e.Message }

func (e *RuleShapeErr) Kind() Kind { return KindRuleShapeError }

func NewRuleShapeError(format string, args ...any) *RuleShapeErr {
	return &RuleShapeErr{Message: fmt.Sprintf(format, args...)}
}

// CancelledErr reports cooperative cancellation of a long-running op.
type CancelledErr struct{}

func (e *CancelledErr) Error() string { return "operation cancelled" }

func (e *CancelledErr) Kind() Kind { return KindCancelled }

// InvariantViolationErr reports internal consistency failure (e.g. a
// corrupt index). Fatal for the operation; the store must be rebuilt.
type InvariantViolationErr struct {
	Message string
}

func (e *InvariantViolationErr) Error() string { return "invariant violation: " + e.Message }

func (e *InvariantViolationErr) Kind() Kind { return KindInvariantViolation }

func NewInvariantViolation(format string, args ...any) *InvariantViolationErr {
	return &InvariantViolationErr{Message: fmt.Sprintf(format, args...)}
}
