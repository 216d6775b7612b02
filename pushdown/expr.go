package pushdown

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Row is the view of one feature a residual filter is evaluated against.
// Implementations resolve fields lazily, an expression only touches what it
// references.
type Row interface {
	ID() int64
	Kind() gol.FeatureKind
	Tag(key string) (string, bool)
	Bound() (orb.Bound, bool)
}

// Expression is one node of a filter tree. Literal values are string, int64
// or float64.
type Expression interface {
	Evaluate(row Row) (bool, error)
	Print(indent int)
}

type ComparisonExpression struct {
	Column   Column
	Key      string
	Operator BinaryOperator
	Value    any
}

func NewComparisonExpression(column Column, key string, operator BinaryOperator, value any) *ComparisonExpression {
	return &ComparisonExpression{Column: column, Key: key, Operator: operator, Value: value}
}

func (e *ComparisonExpression) Evaluate(row Row) (bool, error) {
	switch e.Column {
	case ColumnID:
		value, ok := numericValue(e.Value)
		if !ok {
			return false, errors.Errorf("Cannot compare id column to non-numeric value %v", e.Value)
		}
		return compareFloats(float64(row.ID()), value, e.Operator)
	case ColumnKind:
		value, ok := numericValue(e.Value)
		if !ok {
			return false, errors.Errorf("Cannot compare kind column to non-numeric value %v", e.Value)
		}
		return compareFloats(float64(int(row.Kind())), value, e.Operator)
	case ColumnTag:
		tagValue, ok := row.Tag(e.Key)
		if !ok {
			// A missing tag never satisfies a predicate, not even !=.
			return false, nil
		}
		return compareTagValue(tagValue, e.Value, e.Operator)
	}
	return false, errors.Errorf("Unknown column %d in comparison", e.Column)
}

func (e *ComparisonExpression) Print(indent int) {
	sigolo.Debugf("%s%s %s %v", spacing(indent), columnName(e.Column, e.Key), e.Operator.String(), e.Value)
}

type InExpression struct {
	Column Column
	Key    string
	Values []any
}

func NewInExpression(column Column, key string, values []any) *InExpression {
	return &InExpression{Column: column, Key: key, Values: values}
}

func (e *InExpression) Evaluate(row Row) (bool, error) {
	for _, value := range e.Values {
		comparison := ComparisonExpression{Column: e.Column, Key: e.Key, Operator: BinOpEqual, Value: value}
		matches, err := comparison.Evaluate(row)
		if err != nil {
			return false, err
		}
		if matches {
			return true, nil
		}
	}
	return false, nil
}

func (e *InExpression) Print(indent int) {
	sigolo.Debugf("%s%s in %v", spacing(indent), columnName(e.Column, e.Key), e.Values)
}

// KeyExistsExpression matches features carrying the tag key with any value.
type KeyExistsExpression struct {
	Key string
}

func NewKeyExistsExpression(key string) *KeyExistsExpression {
	return &KeyExistsExpression{Key: key}
}

func (e *KeyExistsExpression) Evaluate(row Row) (bool, error) {
	_, ok := row.Tag(e.Key)
	return ok, nil
}

func (e *KeyExistsExpression) Print(indent int) {
	sigolo.Debugf("%stags.%s exists", spacing(indent), e.Key)
}

// IntersectsExpression matches features whose bounding box intersects the
// given Web Mercator bound.
type IntersectsExpression struct {
	Bound orb.Bound
}

func NewIntersectsExpression(bound orb.Bound) *IntersectsExpression {
	return &IntersectsExpression{Bound: bound}
}

func (e *IntersectsExpression) Evaluate(row Row) (bool, error) {
	bound, ok := row.Bound()
	if !ok {
		return false, nil
	}
	return bound.Intersects(e.Bound), nil
}

func (e *IntersectsExpression) Print(indent int) {
	sigolo.Debugf("%sintersects(%v)", spacing(indent), e.Bound)
}

type AndExpression struct {
	Children []Expression
}

func NewAndExpression(children ...Expression) *AndExpression {
	return &AndExpression{Children: children}
}

func (e *AndExpression) Evaluate(row Row) (bool, error) {
	for _, child := range e.Children {
		matches, err := child.Evaluate(row)
		if err != nil {
			return false, err
		}
		if !matches {
			return false, nil
		}
	}
	return true, nil
}

func (e *AndExpression) Print(indent int) {
	sigolo.Debugf("%sAND", spacing(indent))
	for _, child := range e.Children {
		child.Print(indent + 2)
	}
}

type OrExpression struct {
	Children []Expression
}

func NewOrExpression(children ...Expression) *OrExpression {
	return &OrExpression{Children: children}
}

func (e *OrExpression) Evaluate(row Row) (bool, error) {
	for _, child := range e.Children {
		matches, err := child.Evaluate(row)
		if err != nil {
			return false, err
		}
		if matches {
			return true, nil
		}
	}
	return false, nil
}

func (e *OrExpression) Print(indent int) {
	sigolo.Debugf("%sOR", spacing(indent))
	for _, child := range e.Children {
		child.Print(indent + 2)
	}
}

type NotExpression struct {
	Child Expression
}

func NewNotExpression(child Expression) *NotExpression {
	return &NotExpression{Child: child}
}

func (e *NotExpression) Evaluate(row Row) (bool, error) {
	matches, err := e.Child.Evaluate(row)
	if err != nil {
		return false, err
	}
	return !matches, nil
}

func (e *NotExpression) Print(indent int) {
	sigolo.Debugf("%sNOT", spacing(indent))
	e.Child.Print(indent + 2)
}

// NeedsBound reports whether any of the expressions references the feature
// geometry, so that scans know to resolve bounding boxes for residual
// evaluation.
func NeedsBound(expressions []Expression) bool {
	found := false
	for _, expression := range expressions {
		walk(expression, func(e Expression) {
			if _, ok := e.(*IntersectsExpression); ok {
				found = true
			}
		})
	}
	return found
}

func walk(expression Expression, visit func(Expression)) {
	visit(expression)
	switch e := expression.(type) {
	case *AndExpression:
		for _, child := range e.Children {
			walk(child, visit)
		}
	case *OrExpression:
		for _, child := range e.Children {
			walk(child, visit)
		}
	case *NotExpression:
		walk(e.Child, visit)
	}
}

func columnName(column Column, key string) string {
	if column == ColumnTag {
		return "tags." + key
	}
	return column.String()
}

func spacing(indent int) string {
	return strings.Repeat(" ", indent)
}

// numericValue converts a literal to float64 where possible. Strings are
// parsed, so '42' compares numerically against a numeric literal.
func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil
	}
	return 0, false
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", value)
}

// compareTagValue compares a tag value against a literal. When both sides
// parse as numbers the comparison is numeric, otherwise lexicographic. So
// "maxspeed > 30" treats "100" as larger, not smaller.
func compareTagValue(tagValue string, literal any, operator BinaryOperator) (bool, error) {
	literalNumber, literalIsNumber := numericValue(literal)
	tagNumber, tagIsNumber := numericValue(tagValue)

	if literalIsNumber && tagIsNumber {
		return compareFloats(tagNumber, literalNumber, operator)
	}
	return compareStrings(tagValue, stringValue(literal), operator)
}

func compareFloats(left float64, right float64, operator BinaryOperator) (bool, error) {
	switch operator {
	case BinOpEqual:
		return left == right, nil
	case BinOpNotEqual:
		return left != right, nil
	case BinOpGreater:
		return left > right, nil
	case BinOpGreaterEqual:
		return left >= right, nil
	case BinOpLower:
		return left < right, nil
	case BinOpLowerEqual:
		return left <= right, nil
	}
	return false, errors.Errorf("Operator %d not supported in comparison", operator)
}

func compareStrings(left string, right string, operator BinaryOperator) (bool, error) {
	switch operator {
	case BinOpEqual:
		return left == right, nil
	case BinOpNotEqual:
		return left != right, nil
	case BinOpGreater:
		return left > right, nil
	case BinOpGreaterEqual:
		return left >= right, nil
	case BinOpLower:
		return left < right, nil
	case BinOpLowerEqual:
		return left <= right, nil
	}
	return false, errors.Errorf("Operator %d not supported in comparison", operator)
}
