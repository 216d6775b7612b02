package pushdown

import (
	"testing"

	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/hjanetzek/geodesk-fdw/util"
	"github.com/paulmach/orb"
)

func parse(t *testing.T, filterString string) Expression {
	expression, err := ParseFilter(filterString)
	util.AssertNil(t, err)
	util.AssertNotNil(t, expression)
	return expression
}

func TestParseFilter_emptyFilter(t *testing.T) {
	// Act
	expression, err := ParseFilter("   \n\t")

	// Assert
	util.AssertNil(t, err)
	util.AssertNil(t, expression)
}

func TestParseFilter_tagComparison(t *testing.T) {
	// Act
	expression := parse(t, "tags.building = 'yes'")

	// Assert
	comparison, ok := expression.(*ComparisonExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, ColumnTag, comparison.Column)
	util.AssertEqual(t, "building", comparison.Key)
	util.AssertEqual(t, BinOpEqual, comparison.Operator)
	util.AssertEqual(t, "yes", comparison.Value)
}

func TestParseFilter_bareKeywordValue(t *testing.T) {
	// Act
	expression := parse(t, "tags.highway = residential")

	// Assert
	comparison, ok := expression.(*ComparisonExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "residential", comparison.Value)
}

func TestParseFilter_idComparison(t *testing.T) {
	// Act
	expression := parse(t, "id >= 1000")

	// Assert
	comparison, ok := expression.(*ComparisonExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, ColumnID, comparison.Column)
	util.AssertEqual(t, BinOpGreaterEqual, comparison.Operator)
	util.AssertEqual(t, int64(1000), comparison.Value)
}

func TestParseFilter_kindLiterals(t *testing.T) {
	// Act
	byName := parse(t, "kind = way")
	byNumber := parse(t, "kind = 1")
	list := parse(t, "kind in (node, relation)")

	// Assert
	util.AssertEqual(t, int64(gol.KindWay), byName.(*ComparisonExpression).Value)
	util.AssertEqual(t, int64(gol.KindWay), byNumber.(*ComparisonExpression).Value)

	inExpression, ok := list.(*InExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, ColumnKind, inExpression.Column)
	util.AssertEqual(t, []any{int64(gol.KindNode), int64(gol.KindRelation)}, inExpression.Values)
}

func TestParseFilter_tagValueList(t *testing.T) {
	// Act
	expression := parse(t, "tags.amenity in ('cafe', 'bar')")

	// Assert
	inExpression, ok := expression.(*InExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "amenity", inExpression.Key)
	util.AssertEqual(t, []any{"cafe", "bar"}, inExpression.Values)
}

func TestParseFilter_existence(t *testing.T) {
	// Act
	exists := parse(t, "tags.name exists")
	notNull := parse(t, "tags.name is not null")

	// Assert
	existsExpression, ok := exists.(*KeyExistsExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "name", existsExpression.Key)

	notNullExpression, ok := notNull.(*KeyExistsExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "name", notNullExpression.Key)
}

func TestParseFilter_intersects(t *testing.T) {
	// Act
	expression := parse(t, "intersects(-100.5, 200, 300, 400.25)")

	// Assert
	intersects, ok := expression.(*IntersectsExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, orb.Bound{Min: orb.Point{-100.5, 200}, Max: orb.Point{300, 400.25}}, intersects.Bound)
}

func TestParseFilter_booleanOperators(t *testing.T) {
	// Act
	expression := parse(t, "kind = node and tags.amenity = 'cafe' and not (id < 10 or id > 100)")

	// Assert
	and, ok := expression.(*AndExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 3, len(and.Children))

	not, ok := and.Children[2].(*NotExpression)
	util.AssertTrue(t, ok)
	or, ok := not.Child.(*OrExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 2, len(or.Children))
}

func TestParseFilter_orBindsWeakerThanAnd(t *testing.T) {
	// Act
	expression := parse(t, "kind = node and tags.amenity exists or kind = way")

	// Assert
	or, ok := expression.(*OrExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 2, len(or.Children))

	_, ok = or.Children[0].(*AndExpression)
	util.AssertTrue(t, ok)
}

func TestParseFilter_keywordsAreCaseInsensitive(t *testing.T) {
	// Act
	expression := parse(t, "KIND = WAY AND tags.building EXISTS")

	// Assert
	and, ok := expression.(*AndExpression)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 2, len(and.Children))
	util.AssertEqual(t, int64(gol.KindWay), and.Children[0].(*ComparisonExpression).Value)
}

func TestParseFilter_invalidFilters(t *testing.T) {
	// Act & Assert
	for _, filterString := range []string{
		"tags.building",
		"tags. = 'yes'",
		"unknown = 1",
		"kind = pharmacy",
		"id = 'abc'",
		"intersects(1, 2, 3)",
		"intersects(5, 0, 1, 9)",
		"tags.a in ()",
		"tags.building = 'yes' extra",
		"tags.building = 'unterminated",
		"kind = node and",
	} {
		_, err := ParseFilter(filterString)
		util.AssertNotNil(t, err)
	}
}
