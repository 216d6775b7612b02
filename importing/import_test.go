package importing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/hjanetzek/geodesk-fdw/util"
	"github.com/paulmach/osm"
)

const testOsmData = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="0.001" lon="0.001">
    <tag k="amenity" v="cafe"/>
    <tag k="name" v="Aroma"/>
  </node>
  <node id="2" lat="0.0" lon="0.0"/>
  <node id="3" lat="0.0" lon="0.002"/>
  <node id="4" lat="0.002" lon="0.002"/>
  <node id="5" lat="0.002" lon="0.0"/>
  <way id="10">
    <nd ref="2"/>
    <nd ref="3"/>
    <nd ref="4"/>
    <nd ref="5"/>
    <nd ref="2"/>
    <tag k="building" v="yes"/>
  </way>
  <way id="11">
    <nd ref="1"/>
    <nd ref="3"/>
    <nd ref="99"/>
    <tag k="highway" v="residential"/>
  </way>
  <relation id="20">
    <member type="way" ref="10" role="outer"/>
    <member type="node" ref="1" role=""/>
    <tag k="type" v="multipolygon"/>
  </relation>
</osm>`

func importTestStore(t *testing.T) *gol.Store {
	folder := t.TempDir()
	inputFile := filepath.Join(folder, "test.osm")
	outputFile := filepath.Join(folder, "test.gol")

	err := os.WriteFile(inputFile, []byte(testOsmData), 0644)
	util.AssertNil(t, err)

	err = Import(inputFile, outputFile)
	util.AssertNil(t, err)

	store, err := gol.Open(outputFile)
	util.AssertNil(t, err)
	return store
}

func TestImport_rejectsUnknownFileType(t *testing.T) {
	// Act
	err := Import("input.csv", "out.gol")

	// Assert
	util.AssertNotNil(t, err)
}

func TestImport_taggedNodesBecomeFeatures(t *testing.T) {
	// Arrange
	store := importTestStore(t)

	// Act
	node, ok := store.Lookup(gol.KindNode, 1)
	_, untaggedOk := store.Lookup(gol.KindNode, 2)

	// Assert
	util.AssertTrue(t, ok)
	value, hasTag := node.TagValue("amenity")
	util.AssertTrue(t, hasTag)
	util.AssertEqual(t, "cafe", value)

	point, err := node.Point()
	util.AssertNil(t, err)
	util.AssertEqual(t, toCoordinate(0.001, 0.001), point)

	// Untagged nodes have no identity of their own.
	util.AssertFalse(t, untaggedOk)
}

func TestImport_closedBuildingWayBecomesArea(t *testing.T) {
	// Arrange
	store := importTestStore(t)

	// Act
	way, ok := store.Lookup(gol.KindWay, 10)

	// Assert
	util.AssertTrue(t, ok)
	util.AssertTrue(t, way.IsArea())

	// The closing vertex is stripped, all ring nodes are anonymous.
	refs, err := way.NodeRefs()
	util.AssertNil(t, err)
	util.AssertEqual(t, 4, len(refs))
	for _, ref := range refs {
		util.AssertTrue(t, ref.Anonymous())
	}

	closed, err := way.ClosedCoordinates()
	util.AssertNil(t, err)
	util.AssertEqual(t, 5, len(closed))
	util.AssertEqual(t, closed[0], closed[4])
}

func TestImport_openWayKeepsNodeIdentity(t *testing.T) {
	// Arrange
	store := importTestStore(t)

	// Act
	way, ok := store.Lookup(gol.KindWay, 11)

	// Assert
	util.AssertTrue(t, ok)
	util.AssertFalse(t, way.IsArea())

	// Node 99 is missing from the input and is skipped. Node 1 is a tagged
	// feature and keeps its ID, node 3 is anonymous.
	refs, err := way.NodeRefs()
	util.AssertNil(t, err)
	util.AssertEqual(t, 2, len(refs))
	util.AssertEqual(t, int64(1), refs[0].ID)
	util.AssertEqual(t, int64(0), refs[1].ID)
}

func TestImport_multipolygonRelation(t *testing.T) {
	// Arrange
	store := importTestStore(t)

	// Act
	relation, ok := store.Lookup(gol.KindRelation, 20)

	// Assert
	util.AssertTrue(t, ok)
	util.AssertTrue(t, relation.IsArea())

	members, err := relation.Members()
	util.AssertNil(t, err)
	util.AssertEqual(t, []gol.Member{
		{ID: 10, Kind: gol.KindWay, Role: "outer"},
		{ID: 1, Kind: gol.KindNode, Role: ""},
	}, members)
}

func TestImport_parentsAreDerived(t *testing.T) {
	// Arrange
	store := importTestStore(t)

	// Act
	node, _ := store.Lookup(gol.KindNode, 1)
	way, _ := store.Lookup(gol.KindWay, 10)

	// Assert
	nodeParents, err := node.Parents()
	util.AssertNil(t, err)
	util.AssertEqual(t, []gol.Parent{
		{ID: 11, Kind: gol.KindWay},
		{ID: 20, Kind: gol.KindRelation},
	}, nodeParents)

	wayParents, err := way.Parents()
	util.AssertNil(t, err)
	util.AssertEqual(t, []gol.Parent{{ID: 20, Kind: gol.KindRelation}}, wayParents)
}

func TestIsAreaTagged(t *testing.T) {
	// Act & Assert
	util.AssertTrue(t, isAreaTagged(osm.Tags{{Key: "building", Value: "yes"}}))
	util.AssertTrue(t, isAreaTagged(osm.Tags{{Key: "highway", Value: "pedestrian"}, {Key: "area", Value: "yes"}}))
	util.AssertFalse(t, isAreaTagged(osm.Tags{{Key: "building", Value: "yes"}, {Key: "area", Value: "no"}}))
	util.AssertFalse(t, isAreaTagged(osm.Tags{{Key: "highway", Value: "residential"}}))
}
