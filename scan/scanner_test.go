package scan

import (
	"strconv"
	"testing"

	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/hjanetzek/geodesk-fdw/util"
	"github.com/paulmach/orb"
)

func buildScanTestStore(t *testing.T) *gol.Store {
	builder := gol.NewStoreBuilder()

	builder.AddNode(1, gol.Coordinate{X: 100, Y: 100}, []gol.Tag{
		{Key: "amenity", Value: "cafe"},
		{Key: "name", Value: "Aroma"},
	})
	builder.AddNode(2, gol.Coordinate{X: 900000, Y: 900000}, []gol.Tag{
		{Key: "amenity", Value: "bench"},
	})

	err := builder.AddWay(10, []gol.NodeRef{
		{ID: 1, X: 100, Y: 100},
		{ID: 0, X: 300, Y: 100},
		{ID: 0, X: 300, Y: 300},
		{ID: 0, X: 100, Y: 300},
	}, []gol.Tag{{Key: "building", Value: "yes"}}, true)
	util.AssertNil(t, err)

	err = builder.AddWay(11, []gol.NodeRef{
		{ID: 2, X: 900000, Y: 900000},
		{ID: 0, X: 910000, Y: 910000},
	}, []gol.Tag{
		{Key: "highway", Value: "residential"},
		{Key: "maxspeed", Value: "100"},
	}, false)
	util.AssertNil(t, err)

	builder.AddRelation(20, []gol.Member{
		{ID: 10, Kind: gol.KindWay, Role: "outer"},
	}, []gol.Tag{{Key: "type", Value: "multipolygon"}}, true)

	data, err := builder.Bytes()
	util.AssertNil(t, err)
	store, err := gol.OpenBytes(data, "scan-test.gol")
	util.AssertNil(t, err)
	return store
}

func scanAll(t *testing.T, store *gol.Store, filterString string, fields FieldSet) []*Row {
	scanner, err := NewScanner(store, filterString, fields, DefaultOptions())
	util.AssertNil(t, err)

	var rows []*Row
	for {
		row, err := scanner.Next()
		util.AssertNil(t, err)
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

func rowIDs(rows []*Row) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func TestScanner_emptyFilterReturnsEverything(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "", 0)

	// Assert
	util.AssertEqual(t, []int64{1, 2, 10, 11, 20}, rowIDs(rows))
}

func TestScanner_kindFilter(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "kind = node", 0)

	// Assert
	util.AssertEqual(t, []int64{1, 2}, rowIDs(rows))
}

func TestScanner_pushedTagFilter(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)
	scanner, err := NewScanner(store, "kind = way and tags.building = 'yes'", 0, DefaultOptions())
	util.AssertNil(t, err)

	// Act
	row, rowErr := scanner.Next()
	end, endErr := scanner.Next()

	// Assert
	util.AssertEqual(t, "wa[building=yes]", scanner.Plan().StoreQuery())
	util.AssertEqual(t, 0, len(scanner.Plan().Residual))

	util.AssertNil(t, rowErr)
	util.AssertEqual(t, int64(10), row.ID)
	util.AssertTrue(t, row.IsArea)

	util.AssertNil(t, endErr)
	util.AssertNil(t, end)
}

func TestScanner_residualFilter(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "tags.maxspeed > 30", 0)

	// Assert
	util.AssertEqual(t, []int64{11}, rowIDs(rows))
}

func TestScanner_spatialFilter(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)
	// A box around the origin in Mercator meters, covering node 1, way 10
	// and relation 20 but not the features around (900000, 900000).
	box := gol.Box{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}.ToMercator()

	// Act
	rows := scanAll(t, store, filterForBound(box), 0)

	// Assert
	util.AssertEqual(t, []int64{1, 10, 20}, rowIDs(rows))
}

func TestScanner_identityOnlyLeavesFieldsEmpty(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "tags.amenity = 'cafe'", 0)

	// Assert
	util.AssertEqual(t, 1, len(rows))
	util.AssertEqual(t, int64(1), rows[0].ID)
	util.AssertEqual(t, gol.KindNode, rows[0].Kind)
	util.AssertEqual(t, map[string]string(nil), rows[0].Tags)
	util.AssertEqual(t, nil, rows[0].Geometry)
}

func TestScanner_tagField(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "tags.amenity = 'cafe'", FieldTags)

	// Assert
	util.AssertEqual(t, map[string]string{"amenity": "cafe", "name": "Aroma"}, rows[0].Tags)
}

func TestScanner_geometryField(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	nodes := scanAll(t, store, "id = 1 and kind = node", FieldGeometry)
	buildings := scanAll(t, store, "tags.building exists", FieldGeometry)
	relations := scanAll(t, store, "kind = relation", FieldGeometry)

	// Assert
	_, isPoint := nodes[0].Geometry.(orb.Point)
	util.AssertTrue(t, isPoint)

	_, isPolygon := buildings[0].Geometry.(orb.Polygon)
	util.AssertTrue(t, isPolygon)

	_, isPolygon = relations[0].Geometry.(orb.Polygon)
	util.AssertTrue(t, isPolygon)
}

func TestScanner_memberField(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	ways := scanAll(t, store, "id = 10 and kind = way", FieldMembers)
	relations := scanAll(t, store, "kind = relation", FieldMembers)

	// Assert
	// Way nodes come back as node members, anonymous ones with ID 0.
	util.AssertEqual(t, 4, len(ways[0].Members))
	util.AssertEqual(t, int64(1), ways[0].Members[0].ID)
	util.AssertTrue(t, ways[0].Members[1].Anonymous())

	util.AssertEqual(t, []gol.Member{{ID: 10, Kind: gol.KindWay, Role: "outer"}}, relations[0].Members)
}

func TestScanner_parentFieldResolvesRoles(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	rows := scanAll(t, store, "id = 10 and kind = way", FieldParents)

	// Assert
	util.AssertEqual(t, []gol.Parent{{ID: 20, Kind: gol.KindRelation, Role: "outer"}}, rows[0].Parents)
}

func TestScanner_memberTruncation(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)
	opts := DefaultOptions()
	opts.MaxMembers = 2
	scanner, err := NewScanner(store, "id = 10 and kind = way", FieldMembers, opts)
	util.AssertNil(t, err)

	// Act
	row, rowErr := scanner.Next()

	// Assert
	util.AssertNil(t, rowErr)
	util.AssertEqual(t, 2, len(row.Members))
}

func TestScanner_parentTruncation(t *testing.T) {
	// Arrange
	// Node 1 is referenced by two ways, only one parent survives the cap.
	builder := gol.NewStoreBuilder()
	builder.AddNode(1, gol.Coordinate{X: 0, Y: 0}, []gol.Tag{{Key: "highway", Value: "crossing"}})
	err := builder.AddWay(10, []gol.NodeRef{
		{ID: 1, X: 0, Y: 0},
		{ID: 0, X: 100, Y: 0},
	}, []gol.Tag{{Key: "highway", Value: "residential"}}, false)
	util.AssertNil(t, err)
	err = builder.AddWay(11, []gol.NodeRef{
		{ID: 1, X: 0, Y: 0},
		{ID: 0, X: 0, Y: 100},
	}, []gol.Tag{{Key: "highway", Value: "service"}}, false)
	util.AssertNil(t, err)

	data, err := builder.Bytes()
	util.AssertNil(t, err)
	store, err := gol.OpenBytes(data, "parent-truncation-test.gol")
	util.AssertNil(t, err)

	opts := DefaultOptions()
	opts.MaxParents = 1
	scanner, err := NewScanner(store, "id = 1 and kind = node", FieldParents, opts)
	util.AssertNil(t, err)

	// Act
	row, rowErr := scanner.Next()

	// Assert
	util.AssertNil(t, rowErr)
	util.AssertEqual(t, 1, len(row.Parents))
	util.AssertEqual(t, int64(10), row.Parents[0].ID)
}

func TestScanner_reset(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)
	scanner, err := NewScanner(store, "kind = node", 0, DefaultOptions())
	util.AssertNil(t, err)

	first, _ := scanner.Next()
	second, _ := scanner.Next()
	end, _ := scanner.Next()
	util.AssertNil(t, end)

	// Act
	resetErr := scanner.Reset()
	againFirst, _ := scanner.Next()
	againSecond, _ := scanner.Next()

	// Assert
	util.AssertNil(t, resetErr)
	util.AssertEqual(t, first.ID, againFirst.ID)
	util.AssertEqual(t, second.ID, againSecond.ID)
}

func TestScanner_closedScannerFails(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)
	scanner, err := NewScanner(store, "", 0, DefaultOptions())
	util.AssertNil(t, err)

	// Act
	scanner.Close()
	_, nextErr := scanner.Next()
	resetErr := scanner.Reset()

	// Assert
	util.AssertError(t, "Scanner is closed", nextErr)
	util.AssertError(t, "Scanner is closed", resetErr)
}

func TestScanner_invalidFilterFailsEarly(t *testing.T) {
	// Arrange
	store := buildScanTestStore(t)

	// Act
	_, err := NewScanner(store, "tags.building =", 0, DefaultOptions())

	// Assert
	util.AssertNotNil(t, err)
}

// filterForBound renders an intersects predicate for a Mercator bound.
func filterForBound(bound orb.Bound) string {
	return "intersects(" +
		formatFloat(bound.Min.X()) + ", " + formatFloat(bound.Min.Y()) + ", " +
		formatFloat(bound.Max.X()) + ", " + formatFloat(bound.Max.Y()) + ")"
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
