package scan

import (
	"github.com/hjanetzek/geodesk-fdw/gol"
)

// Cursor iterates the store in file order, applying the pushed restrictions.
// Per candidate the checks run cheapest first: feature type, then bounding
// box, then the compiled tag patterns.
type Cursor struct {
	store   *gol.Store
	matcher *gol.Matcher
	box     *gol.Box

	// candidates is the spatial index result, resolved on first use. Nil
	// when no box restriction is set.
	candidates map[int]struct{}
	resolved   bool

	pos int
}

func NewCursor(store *gol.Store, matcher *gol.Matcher, box *gol.Box) *Cursor {
	return &Cursor{
		store:   store,
		matcher: matcher,
		box:     box,
	}
}

// Next advances to the next matching record. The second return value is
// false once the cursor is exhausted.
func (c *Cursor) Next() (gol.Record, bool) {
	types := c.matcher.Types()
	if types == gol.TypeNone {
		c.pos = c.store.NumFeatures()
		return gol.Record{}, false
	}

	if c.box != nil && !c.resolved {
		c.candidates = c.store.SearchBox(*c.box)
		c.resolved = true
	}

	for ; c.pos < c.store.NumFeatures(); c.pos++ {
		if c.candidates != nil {
			if _, ok := c.candidates[c.pos]; !ok {
				continue
			}
		}

		record := c.store.RecordAt(c.pos)
		if !types.Matches(record.Kind()) {
			continue
		}
		// The spatial index over-approximates, re-check the exact box.
		if c.box != nil && !c.box.Intersects(record.Box()) {
			continue
		}
		if !c.matcher.MatchesTags(record) {
			continue
		}

		c.pos++
		return record, true
	}

	return gol.Record{}, false
}

// Reset rewinds the cursor to the start of the store. The spatial index
// result is kept, the store is not reopened.
func (c *Cursor) Reset() {
	c.pos = 0
}
