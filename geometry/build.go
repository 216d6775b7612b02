package geometry

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// DefaultGapTolerance is the endpoint snapping tolerance for ring assembly
// in store coordinate units, roughly one meter.
const DefaultGapTolerance = int32(100)

// Builder turns store records into Web Mercator geometries. Multipolygon
// assembly needs member lookups, so the builder is bound to one store.
type Builder struct {
	store *gol.Store

	// GapTolerance is the ring snapping tolerance in store units.
	GapTolerance int32
}

func NewBuilder(store *gol.Store) *Builder {
	return &Builder{
		store:        store,
		GapTolerance: DefaultGapTolerance,
	}
}

// Build reconstructs the geometry of a record. Non-area relations have no
// geometry and yield nil without error, as do area relations whose members
// produce no usable outer ring.
func (b *Builder) Build(record gol.Record) (orb.Geometry, error) {
	switch record.Kind() {
	case gol.KindNode:
		point, err := record.Point()
		if err != nil {
			return nil, err
		}
		return point.ToMercator(), nil
	case gol.KindWay:
		return b.buildWayGeometry(record)
	case gol.KindRelation:
		if !record.IsArea() {
			return nil, nil
		}
		return b.buildMultipolygon(record)
	}
	return nil, errors.Errorf("Feature %d has unknown kind %d", record.ID(), int(record.Kind()))
}

func (b *Builder) buildWayGeometry(record gol.Record) (orb.Geometry, error) {
	if record.IsArea() {
		coords, err := record.ClosedCoordinates()
		if err != nil {
			return nil, err
		}
		if len(coords) < 4 {
			return nil, errors.Errorf("Area way %d has only %d vertices", record.ID(), len(coords))
		}
		return orb.Polygon{toMercatorRing(coords)}, nil
	}

	coords, err := record.Coordinates()
	if err != nil {
		return nil, err
	}
	lineString := make(orb.LineString, 0, len(coords))
	for _, coord := range coords {
		lineString = append(lineString, coord.ToMercator())
	}
	return lineString, nil
}

/*
buildMultipolygon assembles the rings of an area relation.

Only members with role "outer" or "inner" contribute to the geometry, any
other role is ignored here. Each hole is tested against all
outer rings and assigned when exactly one of them contains it, otherwise it
is dropped with a diagnostic. All of this happens in store coordinates, the
transform to Web Mercator is the last step.
*/
func (b *Builder) buildMultipolygon(record gol.Record) (orb.Geometry, error) {
	members, err := record.Members()
	if err != nil {
		return nil, err
	}

	var outerFragments []Fragment
	var innerFragments []Fragment
	for _, member := range members {
		if member.Kind != gol.KindWay {
			continue
		}
		if member.Role != "outer" && member.Role != "inner" {
			continue
		}

		memberWay, ok := b.store.Lookup(gol.KindWay, member.ID)
		if !ok {
			sigolo.Warnf("Relation %d references way %d which is not in the store", record.ID(), member.ID)
			continue
		}
		// Area ways are stored unclosed, rings need the closing vertex back.
		var coords []gol.Coordinate
		if memberWay.IsArea() {
			coords, err = memberWay.ClosedCoordinates()
		} else {
			coords, err = memberWay.Coordinates()
		}
		if err != nil {
			sigolo.Warnf("Unable to read vertices of way %d for relation %d: %v", member.ID, record.ID(), err)
			continue
		}

		fragment := Fragment{WayID: member.ID, Coords: coords}
		if member.Role == "inner" {
			innerFragments = append(innerFragments, fragment)
		} else {
			outerFragments = append(outerFragments, fragment)
		}
	}

	outers := AssembleRings(outerFragments, b.GapTolerance, record.ID())
	inners := AssembleRings(innerFragments, b.GapTolerance, record.ID())

	if len(outers) == 0 {
		sigolo.Warnf("Relation %d has no usable outer ring", record.ID())
		return nil, nil
	}

	holes := make([][]Ring, len(outers))
	for _, inner := range inners {
		owner := -1
		claims := 0
		for i := range outers {
			if outers[i].Contains(inner.first()) {
				claims++
				if owner == -1 {
					owner = i
				}
			}
		}

		if claims != 1 {
			sigolo.Warnf("Dropping inner ring of relation %d built from ways %v, contained in %d outer rings", record.ID(), inner.WayIDs, claims)
			continue
		}
		holes[owner] = append(holes[owner], inner)
	}

	polygons := make(orb.MultiPolygon, 0, len(outers))
	for i := range outers {
		polygon := orb.Polygon{toMercatorRing(outers[i].Coords)}
		for _, hole := range holes[i] {
			polygon = append(polygon, toMercatorRing(hole.Coords))
		}
		polygons = append(polygons, polygon)
	}

	if len(polygons) == 1 {
		return polygons[0], nil
	}
	return polygons, nil
}

func toMercatorRing(coords []gol.Coordinate) orb.Ring {
	ring := make(orb.Ring, 0, len(coords))
	for _, coord := range coords {
		ring = append(ring, coord.ToMercator())
	}
	return ring
}
