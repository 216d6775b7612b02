package gol

import (
	"math"

	"github.com/paulmach/orb"
)

// The store uses the full signed 32-bit integer range ("imp" units) to cover
// the earth once around. Web Mercator meters at the equator map linearly onto
// that range, so the transform is a single factor in each direction.
const (
	earthCircumference = 40075016.68558
	mapWidth           = 4294967294.9999

	impToMeters = earthCircumference / mapWidth
	metersToImp = mapWidth / earthCircumference
)

// Coordinate is a position in fixed-point store units. Equality is exact
// bitwise equality, which makes Coordinate usable as a map key for endpoint
// matching during ring assembly.
type Coordinate struct {
	X int32
	Y int32
}

// ToMercator converts the coordinate into projected Web Mercator meters.
func (c Coordinate) ToMercator() orb.Point {
	return orb.Point{float64(c.X) * impToMeters, float64(c.Y) * impToMeters}
}

// CoordinateFromMercator converts projected Web Mercator meters into store
// units. The result is exact to within one store unit.
func CoordinateFromMercator(p orb.Point) Coordinate {
	return Coordinate{
		X: int32(math.Round(p[0] * metersToImp)),
		Y: int32(math.Round(p[1] * metersToImp)),
	}
}

// Box is an axis-aligned bounding box in store units. Min and max are
// inclusive.
type Box struct {
	MinX int32
	MinY int32
	MaxX int32
	MaxY int32
}

func BoxFromCoordinate(c Coordinate) Box {
	return Box{MinX: c.X, MinY: c.Y, MaxX: c.X, MaxY: c.Y}
}

// BoxFromMercator converts a bounding box given in projected Web Mercator
// meters into store units, expanding by one unit in each direction so that
// rounding can never shrink the requested area.
func BoxFromMercator(bound orb.Bound) Box {
	min := CoordinateFromMercator(bound.Min)
	max := CoordinateFromMercator(bound.Max)
	return Box{
		MinX: min.X - 1,
		MinY: min.Y - 1,
		MaxX: max.X + 1,
		MaxY: max.Y + 1,
	}
}

// ToMercator converts the box into a projected coordinate bound.
func (b Box) ToMercator() orb.Bound {
	return orb.Bound{
		Min: Coordinate{b.MinX, b.MinY}.ToMercator(),
		Max: Coordinate{b.MaxX, b.MaxY}.ToMercator(),
	}
}

func (b Box) Intersects(other Box) bool {
	return b.MinX <= other.MaxX && b.MaxX >= other.MinX &&
		b.MinY <= other.MaxY && b.MaxY >= other.MinY
}

func (b Box) Contains(c Coordinate) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}

func (b Box) ExpandToCoordinate(c Coordinate) Box {
	if c.X < b.MinX {
		b.MinX = c.X
	}
	if c.Y < b.MinY {
		b.MinY = c.Y
	}
	if c.X > b.MaxX {
		b.MaxX = c.X
	}
	if c.Y > b.MaxY {
		b.MaxY = c.Y
	}
	return b
}

func (b Box) ExpandToBox(other Box) Box {
	b = b.ExpandToCoordinate(Coordinate{other.MinX, other.MinY})
	return b.ExpandToCoordinate(Coordinate{other.MaxX, other.MaxY})
}
