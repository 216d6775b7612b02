package importing

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

// Import reads an .osm or .pbf file and writes it as a store file. The input
// must list nodes before ways and ways before relations, which is how OSM
// extracts are ordered.
func Import(inputFile string, outputFile string) error {
	sigolo.Infof("Start import of file %s", inputFile)
	importStartTime := time.Now()

	file, scanner, err := getScanner(inputFile)
	if err != nil {
		return err
	}
	defer file.Close()
	defer scanner.Close()

	builder := gol.NewStoreBuilder()
	importer := newImporter(builder)

	for scanner.Scan() {
		switch osmObj := scanner.Object().(type) {
		case *osm.Node:
			importer.handleNode(osmObj)
		case *osm.Way:
			importer.handleWay(osmObj)
		case *osm.Relation:
			importer.handleRelation(osmObj)
		}
	}
	err = scanner.Err()
	if err != nil {
		return errors.Wrapf(err, "Unable to read input file %s", inputFile)
	}

	sigolo.Infof("Read %d nodes, %d ways and %d relations", importer.numNodes, importer.numWays, importer.numRelations)

	output, err := os.Create(outputFile)
	if err != nil {
		return errors.Wrapf(err, "Unable to create output file %s", outputFile)
	}
	defer output.Close()

	err = builder.Write(output)
	if err != nil {
		return err
	}

	importDuration := time.Since(importStartTime)
	sigolo.Infof("Finished import to %s in %s", outputFile, importDuration)

	return nil
}

func getScanner(inputFile string) (*os.File, osm.Scanner, error) {
	if !strings.HasSuffix(inputFile, ".osm") && !strings.HasSuffix(inputFile, ".pbf") {
		return nil, nil, errors.Errorf("Input file %s must be an .osm or .pbf file", inputFile)
	}

	f, err := os.Open(inputFile)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Unable to open input file %s", inputFile)
	}

	var scanner osm.Scanner
	if strings.HasSuffix(inputFile, ".osm") {
		scanner = osmxml.New(context.Background(), f)
	} else {
		scanner = osmpbf.New(context.Background(), f, 1)
	}
	return f, scanner, nil
}

type importer struct {
	builder *gol.StoreBuilder

	// nodePositions remembers every node coordinate so that ways can inline
	// their vertices. taggedNodes marks the nodes that exist as features of
	// their own, untagged nodes stay anonymous.
	nodePositions map[osm.NodeID]gol.Coordinate
	taggedNodes   map[osm.NodeID]struct{}

	numNodes     int
	numWays      int
	numRelations int
}

func newImporter(builder *gol.StoreBuilder) *importer {
	return &importer{
		builder:       builder,
		nodePositions: map[osm.NodeID]gol.Coordinate{},
		taggedNodes:   map[osm.NodeID]struct{}{},
	}
}

func (i *importer) handleNode(node *osm.Node) {
	coordinate := toCoordinate(node.Lon, node.Lat)
	i.nodePositions[node.ID] = coordinate
	i.numNodes++

	if len(node.Tags) == 0 {
		// Untagged nodes only carry geometry for ways, they are not features
		// of their own.
		return
	}

	i.taggedNodes[node.ID] = struct{}{}
	i.builder.AddNode(int64(node.ID), coordinate, toTags(node.Tags))
}

func (i *importer) handleWay(way *osm.Way) {
	refs := make([]gol.NodeRef, 0, len(way.Nodes))
	for _, wayNode := range way.Nodes {
		coordinate, ok := i.nodePositions[wayNode.ID]
		if !ok {
			sigolo.Warnf("Way %d references node %d which is not in the input, skipping the node", way.ID, wayNode.ID)
			continue
		}

		id := int64(0)
		if _, tagged := i.taggedNodes[wayNode.ID]; tagged {
			id = int64(wayNode.ID)
		}
		refs = append(refs, gol.NodeRef{ID: id, X: coordinate.X, Y: coordinate.Y})
	}

	if len(refs) < 2 {
		sigolo.Warnf("Skipping way %d, only %d of its nodes are in the input", way.ID, len(refs))
		return
	}

	closed := refs[0].Coordinate() == refs[len(refs)-1].Coordinate()
	isArea := closed && isAreaTagged(way.Tags)
	if isArea {
		// Area ways are stored without the closing vertex.
		refs = refs[:len(refs)-1]
	}

	err := i.builder.AddWay(int64(way.ID), refs, toTags(way.Tags), isArea)
	if err != nil {
		sigolo.Warnf("Skipping way %d: %v", way.ID, err)
		return
	}
	i.numWays++
}

func (i *importer) handleRelation(relation *osm.Relation) {
	members := make([]gol.Member, 0, len(relation.Members))
	for _, member := range relation.Members {
		var kind gol.FeatureKind
		switch member.Type {
		case osm.TypeNode:
			kind = gol.KindNode
		case osm.TypeWay:
			kind = gol.KindWay
		case osm.TypeRelation:
			kind = gol.KindRelation
		default:
			continue
		}
		members = append(members, gol.Member{ID: member.Ref, Kind: kind, Role: member.Role})
	}

	relationType := relation.Tags.Find("type")
	isArea := relationType == "multipolygon" || relationType == "boundary"

	i.builder.AddRelation(int64(relation.ID), members, toTags(relation.Tags), isArea)
	i.numRelations++
}

func toTags(tags osm.Tags) []gol.Tag {
	result := make([]gol.Tag, 0, len(tags))
	for _, tag := range tags {
		result = append(result, gol.Tag{Key: tag.Key, Value: tag.Value})
	}
	return result
}

func toCoordinate(lon float64, lat float64) gol.Coordinate {
	return gol.CoordinateFromMercator(project.WGS84.ToMercator(orb.Point{lon, lat}))
}

// areaKeys are the tag keys that, on a closed way, indicate an area rather
// than a closed line. An explicit area tag always wins.
var areaKeys = []string{
	"aeroway", "amenity", "building", "craft", "historic", "landuse",
	"leisure", "man_made", "military", "natural", "office", "place",
	"public_transport", "shop", "tourism", "water",
}

func isAreaTagged(tags osm.Tags) bool {
	switch tags.Find("area") {
	case "yes":
		return true
	case "no":
		return false
	}

	for _, key := range areaKeys {
		if tags.Find(key) != "" {
			return true
		}
	}
	return false
}
