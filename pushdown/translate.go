package pushdown

import (
	"strings"

	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
)

// Plan is the result of splitting a filter tree into the part the store
// evaluates natively and the residual part evaluated per row.
type Plan struct {
	// Types is the pushed feature type restriction. TypeAll when no kind
	// predicate was pushed.
	Types gol.TypeMask

	// Fragments are the pushed tag query fragments, e.g. "[building=yes]".
	Fragments []string

	// Box is the pushed spatial restriction in store coordinates, nil when
	// no spatial predicate was pushed.
	Box *gol.Box

	// Pushed are the conjuncts covered by Types, Fragments and Box.
	Pushed []Expression

	// Residual are the conjuncts the store cannot evaluate. They must be
	// re-checked for every row the store returns.
	Residual []Expression
}

// StoreQuery renders the pushed type and tag restrictions as a store query
// string.
func (p *Plan) StoreQuery() string {
	builder := strings.Builder{}
	builder.WriteString(p.Types.Token())
	for _, fragment := range p.Fragments {
		builder.WriteString(fragment)
	}
	return builder.String()
}

func (p *Plan) Print() {
	sigolo.Debugf("Plan: query=%q box=%v", p.StoreQuery(), p.Box)
	sigolo.Debugf("  pushed:")
	for _, expression := range p.Pushed {
		expression.Print(4)
	}
	sigolo.Debugf("  residual:")
	for _, expression := range p.Residual {
		expression.Print(4)
	}
}

/*
Translate splits a filter into pushable conjuncts and a residual.

Only the conjuncts of a top-level AND can be pushed individually, anything
below an OR or NOT is opaque to the store and stays residual as a whole. Per
concern the first pushable conjunct wins:

  - kind predicates become the type restriction
  - one intersects predicate becomes the bounding box restriction
  - tag equality, value lists and existence checks become tag fragments,
    these all combine since fragments are conjunctive

Type and tag restrictions are exact and drop out of the residual entirely.
The box restriction is an envelope test and may return a superset, so an
intersects conjunct stays in the residual as well.
*/
func Translate(filter Expression) *Plan {
	plan := &Plan{Types: gol.TypeAll}

	if filter == nil {
		return plan
	}

	conjuncts := flattenAnd(filter)

	typesPushed := false
	for _, conjunct := range conjuncts {
		switch e := conjunct.(type) {
		case *ComparisonExpression:
			if e.Column == ColumnKind && e.Operator == BinOpEqual && !typesPushed {
				if mask, ok := kindMask(e.Value); ok {
					plan.Types = mask
					plan.Pushed = append(plan.Pushed, conjunct)
					typesPushed = true
					continue
				}
			}
			if e.Column == ColumnTag && e.Operator == BinOpEqual {
				if value, ok := pushableString(e.Value); ok && pushableToken(e.Key) {
					plan.Fragments = append(plan.Fragments, "["+e.Key+"="+value+"]")
					plan.Pushed = append(plan.Pushed, conjunct)
					continue
				}
			}
		case *InExpression:
			if e.Column == ColumnKind && !typesPushed {
				if mask, ok := kindListMask(e.Values); ok {
					plan.Types = mask
					plan.Pushed = append(plan.Pushed, conjunct)
					typesPushed = true
					continue
				}
			}
			if e.Column == ColumnTag && pushableToken(e.Key) {
				if values, ok := pushableStrings(e.Values); ok {
					plan.Fragments = append(plan.Fragments, "["+e.Key+"="+strings.Join(values, ",")+"]")
					plan.Pushed = append(plan.Pushed, conjunct)
					continue
				}
			}
		case *KeyExistsExpression:
			if pushableToken(e.Key) {
				plan.Fragments = append(plan.Fragments, "["+e.Key+"=*]")
				plan.Pushed = append(plan.Pushed, conjunct)
				continue
			}
		case *IntersectsExpression:
			if plan.Box == nil {
				box := gol.BoxFromMercator(e.Bound)
				plan.Box = &box
				plan.Pushed = append(plan.Pushed, conjunct)
				// The box restriction is an envelope test, the exact check
				// stays in the residual.
				plan.Residual = append(plan.Residual, conjunct)
				continue
			}
		}

		plan.Residual = append(plan.Residual, conjunct)
	}

	return plan
}

// flattenAnd collects the conjuncts of nested AND expressions into one list.
func flattenAnd(expression Expression) []Expression {
	and, ok := expression.(*AndExpression)
	if !ok {
		return []Expression{expression}
	}

	var conjuncts []Expression
	for _, child := range and.Children {
		conjuncts = append(conjuncts, flattenAnd(child)...)
	}
	return conjuncts
}

// kindMask maps a kind literal to its type mask. Only the literal kind
// values are valid.
func kindMask(value any) (gol.TypeMask, bool) {
	number, ok := numericValue(value)
	if !ok || number != float64(int64(number)) {
		return gol.TypeNone, false
	}

	switch int64(number) {
	case int64(gol.KindNode):
		return gol.TypeNode, true
	case int64(gol.KindWay):
		return gol.TypeWay, true
	case int64(gol.KindRelation):
		return gol.TypeRelation, true
	}
	return gol.TypeNone, false
}

func kindListMask(values []any) (gol.TypeMask, bool) {
	mask := gol.TypeNone
	for _, value := range values {
		single, ok := kindMask(value)
		if !ok {
			return gol.TypeNone, false
		}
		mask |= single
	}
	return mask, mask != gol.TypeNone
}

// pushableToken reports whether a key or value can appear in a query string
// without being misread as syntax.
func pushableToken(token string) bool {
	if token == "" {
		return false
	}
	return !strings.ContainsAny(token, "[]=,*")
}

func pushableString(value any) (string, bool) {
	text, ok := value.(string)
	if !ok {
		return "", false
	}
	if !pushableToken(text) {
		return "", false
	}
	return text, true
}

func pushableStrings(values []any) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	texts := make([]string, 0, len(values))
	for _, value := range values {
		text, ok := pushableString(value)
		if !ok {
			return nil, false
		}
		texts = append(texts, text)
	}
	return texts, true
}
