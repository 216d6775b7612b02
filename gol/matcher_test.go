package gol

import (
	"testing"

	"github.com/hjanetzek/geodesk-fdw/util"
)

func compile(t *testing.T, store *Store, query string) *Matcher {
	matcher, err := store.CompileQuery(query)
	util.AssertNil(t, err)
	return matcher
}

func TestCompileQuery_typePrefix(t *testing.T) {
	// Arrange
	store := buildTestStore(t)

	// Act & Assert
	util.AssertEqual(t, TypeNode, compile(t, store, "n").Types())
	util.AssertEqual(t, TypeWay, compile(t, store, "wa").Types())
	util.AssertEqual(t, TypeRelation, compile(t, store, "r").Types())
	util.AssertEqual(t, TypeNode|TypeWay, compile(t, store, "nwa").Types())
	util.AssertEqual(t, TypeAll, compile(t, store, "*").Types())
	util.AssertEqual(t, TypeAll, compile(t, store, "[building=yes]").Types())
}

func TestCompileQuery_invalidQueries(t *testing.T) {
	// Arrange
	store := buildTestStore(t)

	// Act
	_, typeErr := store.CompileQuery("x[building=yes]")
	_, bracketErr := store.CompileQuery("wa[building=yes")
	_, keyErr := store.CompileQuery("wa[=yes]")
	_, valueErr := store.CompileQuery("wa[building=]")

	// Assert
	util.AssertNotNil(t, typeErr)
	util.AssertNotNil(t, bracketErr)
	util.AssertNotNil(t, keyErr)
	util.AssertNotNil(t, valueErr)
}

func TestMatcher_tagEquality(t *testing.T) {
	// Arrange
	store := buildTestStore(t)
	matcher := compile(t, store, "wa[building=yes]")
	building, _ := store.Lookup(KindWay, 10)
	highway, _ := store.Lookup(KindWay, 11)

	// Act & Assert
	util.AssertTrue(t, matcher.MatchesTags(building))
	util.AssertFalse(t, matcher.MatchesTags(highway))
}

func TestMatcher_valueList(t *testing.T) {
	// Arrange
	store := buildTestStore(t)
	matcher := compile(t, store, "*[amenity=cafe,bar]")
	cafe, _ := store.Lookup(KindNode, 1)
	plain, _ := store.Lookup(KindNode, 2)

	// Act & Assert
	util.AssertTrue(t, matcher.MatchesTags(cafe))
	util.AssertFalse(t, matcher.MatchesTags(plain))
}

func TestMatcher_wildcardValue(t *testing.T) {
	// Arrange
	store := buildTestStore(t)
	matcher := compile(t, store, "n[name=*]")
	named, _ := store.Lookup(KindNode, 1)
	unnamed, _ := store.Lookup(KindNode, 2)

	// Act & Assert
	util.AssertTrue(t, matcher.MatchesTags(named))
	util.AssertFalse(t, matcher.MatchesTags(unnamed))
}

func TestMatcher_multipleFragmentsAreConjunctive(t *testing.T) {
	// Arrange
	store := buildTestStore(t)
	matcher := compile(t, store, "n[amenity=cafe][name=Aroma]")
	onlyAmenity := compile(t, store, "n[amenity=cafe][name=Bistro]")
	cafe, _ := store.Lookup(KindNode, 1)

	// Act & Assert
	util.AssertTrue(t, matcher.MatchesTags(cafe))
	util.AssertFalse(t, onlyAmenity.MatchesTags(cafe))
}

func TestMatcher_unknownStringsMatchNothing(t *testing.T) {
	// Arrange
	store := buildTestStore(t)

	// Act
	unknownKey := compile(t, store, "*[nosuchkey=yes]")
	unknownValue := compile(t, store, "*[building=nosuchvalue]")

	// Assert
	// Strings absent from the store cannot match any feature, the compiled
	// matcher reports an empty type mask so scans can stop early.
	util.AssertEqual(t, TypeNone, unknownKey.Types())
	util.AssertEqual(t, TypeNone, unknownValue.Types())

	cafe, _ := store.Lookup(KindNode, 1)
	util.AssertFalse(t, unknownKey.MatchesTags(cafe))
}

func TestMatcher_typeMask(t *testing.T) {
	// Arrange
	mask := TypeNode | TypeWay

	// Act & Assert
	util.AssertTrue(t, mask.Matches(KindNode))
	util.AssertTrue(t, mask.Matches(KindWay))
	util.AssertFalse(t, mask.Matches(KindRelation))
	util.AssertEqual(t, "nwa", mask.Token())
}

func TestMatcher_unknownValueInList(t *testing.T) {
	// Arrange
	store := buildTestStore(t)
	matcher := compile(t, store, "n[amenity=cafe,nosuchvalue]")
	cafe, _ := store.Lookup(KindNode, 1)

	// Act & Assert
	// A list with one known value still matches that value.
	util.AssertEqual(t, TypeNode, matcher.Types())
	util.AssertTrue(t, matcher.MatchesTags(cafe))
}
