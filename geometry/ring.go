package geometry

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
)

// Fragment is the vertex sequence of one member way, the raw material for
// ring assembly.
type Fragment struct {
	WayID  int64
	Coords []gol.Coordinate
}

// Ring is an assembled closed ring. WayIDs lists the ways the ring was
// stitched from, in stitching order.
type Ring struct {
	Coords []gol.Coordinate
	WayIDs []int64
}

func (r *Ring) closed() bool {
	return len(r.Coords) >= 4 && r.Coords[0] == r.Coords[len(r.Coords)-1]
}

// reverse flips the vertex order. The way list is flipped along with it so
// it keeps describing the ring in traversal order.
func (r *Ring) reverse() {
	for i, j := 0, len(r.Coords)-1; i < j; i, j = i+1, j-1 {
		r.Coords[i], r.Coords[j] = r.Coords[j], r.Coords[i]
	}
	for i, j := 0, len(r.WayIDs)-1; i < j; i, j = i+1, j-1 {
		r.WayIDs[i], r.WayIDs[j] = r.WayIDs[j], r.WayIDs[i]
	}
}

func (r *Ring) first() gol.Coordinate {
	return r.Coords[0]
}

func (r *Ring) last() gol.Coordinate {
	return r.Coords[len(r.Coords)-1]
}

// appendRing glues other onto the end of r, dropping the duplicated shared
// vertex.
func (r *Ring) appendRing(other *Ring) {
	coords := other.Coords
	if len(coords) > 0 && r.last() == coords[0] {
		coords = coords[1:]
	}
	r.Coords = append(r.Coords, coords...)
	r.WayIDs = append(r.WayIDs, other.WayIDs...)
}

/*
AssembleRings stitches way fragments into closed rings.

Open fragments are merged greedily on exactly matching endpoints, reversing
fragments as needed, until no merge is possible anymore. Remaining open
rings whose endpoints are closer than the gap tolerance on both axes are
snapped shut by repeating the first vertex. Rings that stay open or end up with
fewer than four vertices are dropped with a diagnostic naming the relation.
*/
func AssembleRings(fragments []Fragment, gapTolerance int32, relationID int64) []Ring {
	var rings []*Ring
	for _, fragment := range fragments {
		if len(fragment.Coords) == 0 {
			continue
		}
		coords := make([]gol.Coordinate, len(fragment.Coords))
		copy(coords, fragment.Coords)
		rings = append(rings, &Ring{Coords: coords, WayIDs: []int64{fragment.WayID}})
	}

	merged := true
	for merged {
		merged = false
		for i := 0; i < len(rings); i++ {
			if rings[i].closed() {
				continue
			}
			for j := i + 1; j < len(rings); j++ {
				if rings[j].closed() {
					continue
				}
				if mergeRings(rings[i], rings[j]) {
					rings = append(rings[:j], rings[j+1:]...)
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
	}

	var result []Ring
	for _, ring := range rings {
		if !ring.closed() {
			if !snapClosed(ring, gapTolerance) {
				sigolo.Warnf("Dropping unclosed ring of relation %d built from ways %v", relationID, ring.WayIDs)
				continue
			}
		}
		if len(ring.Coords) < 4 {
			sigolo.Warnf("Dropping degenerate ring of relation %d built from ways %v", relationID, ring.WayIDs)
			continue
		}
		result = append(result, *ring)
	}
	return result
}

// mergeRings tries to connect b onto a at exactly matching endpoints. On
// success a holds the combined ring and b must be discarded.
func mergeRings(a *Ring, b *Ring) bool {
	switch {
	case a.last() == b.first():
		a.appendRing(b)
	case a.last() == b.last():
		b.reverse()
		a.appendRing(b)
	case a.first() == b.last():
		b.appendRing(a)
		a.Coords = b.Coords
		a.WayIDs = b.WayIDs
	case a.first() == b.first():
		b.reverse()
		b.appendRing(a)
		a.Coords = b.Coords
		a.WayIDs = b.WayIDs
	default:
		return false
	}
	return true
}

// snapClosed closes a nearly-closed ring when its endpoints are closer than
// the tolerance on both axes.
func snapClosed(ring *Ring, gapTolerance int32) bool {
	if len(ring.Coords) < 3 {
		return false
	}

	first := ring.first()
	last := ring.last()
	dx := first.X - last.X
	if dx < 0 {
		dx = -dx
	}
	dy := first.Y - last.Y
	if dy < 0 {
		dy = -dy
	}

	if dx >= gapTolerance || dy >= gapTolerance {
		return false
	}

	ring.Coords = append(ring.Coords, first)
	return true
}

// Contains tests whether the coordinate lies inside the ring, by casting a
// ray along the x axis and counting edge crossings.
func (r *Ring) Contains(c gol.Coordinate) bool {
	x := float64(c.X)
	y := float64(c.Y)

	inside := false
	coords := r.Coords
	for i, j := 0, len(coords)-1; i < len(coords); j, i = i, i+1 {
		xi := float64(coords[i].X)
		yi := float64(coords[i].Y)
		xj := float64(coords[j].X)
		yj := float64(coords[j].Y)

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
