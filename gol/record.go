package gol

import (
	"encoding/binary"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// Record is a lightweight reference into a store. It only remembers its
// directory position, every accessor decodes from the raw store bytes on
// demand. Copying a record is cheap and safe.
type Record struct {
	store *Store
	pos   int
}

func (r Record) entry() *recordEntry {
	return &r.store.records[r.pos]
}

func (r Record) ID() int64 {
	return r.entry().id
}

func (r Record) Kind() FeatureKind {
	return r.entry().kind
}

// IsArea reports whether this feature represents a polygonal area. Only ways
// and relations can be areas.
func (r Record) IsArea() bool {
	return r.entry().flags&flagArea != 0
}

func (r Record) Box() Box {
	return r.entry().box
}

// Print writes the record to the trace log.
func (r Record) Print() {
	if !sigolo.ShouldLogTrace() {
		return
	}

	tags, err := r.Tags()
	if err != nil {
		sigolo.Tracef("%s/%d: <%v>", r.Kind().String(), r.ID(), err)
		return
	}
	sigolo.Tracef("%s/%d area=%v box=%v tags=%s", r.Kind().String(), r.ID(), r.IsArea(), r.Box(), formatTags(tags))
}

// decoder walks the body bytes of one record.
type decoder struct {
	store *Store
	data  []byte
	pos   int
	id    int64
}

func (r Record) bodyDecoder() *decoder {
	entry := r.entry()
	return &decoder{
		store: r.store,
		data:  r.store.data[entry.bodyPos:entry.bodyEnd],
		id:    entry.id,
	}
}

func (d *decoder) uint16() (uint16, error) {
	if d.pos+2 > len(d.data) {
		return 0, errors.Errorf("Truncated body of feature %d at offset %d", d.id, d.pos)
	}
	value := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return value, nil
}

func (d *decoder) uint32() (uint32, error) {
	if d.pos+4 > len(d.data) {
		return 0, errors.Errorf("Truncated body of feature %d at offset %d", d.id, d.pos)
	}
	value := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return value, nil
}

func (d *decoder) int32() (int32, error) {
	value, err := d.uint32()
	return int32(value), err
}

func (d *decoder) int64() (int64, error) {
	if d.pos+8 > len(d.data) {
		return 0, errors.Errorf("Truncated body of feature %d at offset %d", d.id, d.pos)
	}
	value := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return int64(value), nil
}

func (d *decoder) byte() (byte, error) {
	if d.pos+1 > len(d.data) {
		return 0, errors.Errorf("Truncated body of feature %d at offset %d", d.id, d.pos)
	}
	value := d.data[d.pos]
	d.pos++
	return value, nil
}

func (d *decoder) string() (string, error) {
	index, err := d.uint32()
	if err != nil {
		return "", err
	}
	value, err := d.store.stringAt(index)
	if err != nil {
		return "", errors.Wrapf(err, "Invalid string reference in feature %d", d.id)
	}
	return value, nil
}

// skipTags advances the decoder past the tag section without resolving the
// string references.
func (d *decoder) skipTags() error {
	numTags, err := d.uint16()
	if err != nil {
		return err
	}
	d.pos += int(numTags) * 8
	if d.pos > len(d.data) {
		return errors.Errorf("Truncated tag section of feature %d", d.id)
	}
	return nil
}

// Tags decodes all tags of this feature. Tags are stored sorted by key.
func (r Record) Tags() ([]Tag, error) {
	d := r.bodyDecoder()

	numTags, err := d.uint16()
	if err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, numTags)
	for i := 0; i < int(numTags); i++ {
		key, err := d.string()
		if err != nil {
			return nil, err
		}
		value, err := d.string()
		if err != nil {
			return nil, err
		}
		tags = append(tags, Tag{Key: key, Value: value})
	}

	return tags, nil
}

// TagValue returns the value of the given tag key, or false when the feature
// does not carry this key.
func (r Record) TagValue(key string) (string, bool) {
	keyIdx, ok := r.store.stringIndex(key)
	if !ok {
		// Key string not in the store means no feature at all has this tag.
		return "", false
	}

	d := r.bodyDecoder()
	numTags, err := d.uint16()
	if err != nil {
		return "", false
	}

	for i := 0; i < int(numTags); i++ {
		k, err := d.uint32()
		if err != nil {
			return "", false
		}
		v, err := d.uint32()
		if err != nil {
			return "", false
		}
		if k == keyIdx {
			value, err := r.store.stringAt(v)
			if err != nil {
				return "", false
			}
			return value, true
		}
	}

	return "", false
}

// Point returns the coordinate of a node feature.
func (r Record) Point() (Coordinate, error) {
	if r.Kind() != KindNode {
		return Coordinate{}, errors.Errorf("Feature %d is a %s, not a node", r.ID(), r.Kind().String())
	}

	d := r.bodyDecoder()
	err := d.skipTags()
	if err != nil {
		return Coordinate{}, err
	}

	x, err := d.int32()
	if err != nil {
		return Coordinate{}, err
	}
	y, err := d.int32()
	if err != nil {
		return Coordinate{}, err
	}

	return Coordinate{X: x, Y: y}, nil
}

// NodeRefs returns the node list of a way, including anonymous nodes with
// ID 0. The coordinates are stored inline, no further lookup is needed.
func (r Record) NodeRefs() ([]NodeRef, error) {
	if r.Kind() != KindWay {
		return nil, errors.Errorf("Feature %d is a %s, not a way", r.ID(), r.Kind().String())
	}

	d := r.bodyDecoder()
	err := d.skipTags()
	if err != nil {
		return nil, err
	}

	numNodes, err := d.uint16()
	if err != nil {
		return nil, err
	}

	refs := make([]NodeRef, 0, numNodes)
	for i := 0; i < int(numNodes); i++ {
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		x, err := d.int32()
		if err != nil {
			return nil, err
		}
		y, err := d.int32()
		if err != nil {
			return nil, err
		}
		refs = append(refs, NodeRef{ID: id, X: x, Y: y})
	}

	return refs, nil
}

// Coordinates returns the vertex sequence of a way as it is stored. For area
// ways the stored sequence is unclosed, ClosedCoordinates appends the closing
// vertex.
func (r Record) Coordinates() ([]Coordinate, error) {
	refs, err := r.NodeRefs()
	if err != nil {
		return nil, err
	}

	coordinates := make([]Coordinate, 0, len(refs))
	for _, ref := range refs {
		coordinates = append(coordinates, ref.Coordinate())
	}
	return coordinates, nil
}

// ClosedCoordinates returns the vertex sequence of an area way with the first
// vertex repeated at the end, forming an explicitly closed ring.
func (r Record) ClosedCoordinates() ([]Coordinate, error) {
	coordinates, err := r.Coordinates()
	if err != nil {
		return nil, err
	}

	if len(coordinates) > 0 {
		first := coordinates[0]
		last := coordinates[len(coordinates)-1]
		if first != last {
			coordinates = append(coordinates, first)
		}
	}

	return coordinates, nil
}

// Members returns the member list of a relation.
func (r Record) Members() ([]Member, error) {
	if r.Kind() != KindRelation {
		return nil, errors.Errorf("Feature %d is a %s, not a relation", r.ID(), r.Kind().String())
	}

	d := r.bodyDecoder()
	err := d.skipTags()
	if err != nil {
		return nil, err
	}

	numMembers, err := d.uint16()
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, numMembers)
	for i := 0; i < int(numMembers); i++ {
		kindByte, err := d.byte()
		if err != nil {
			return nil, err
		}
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		role, err := d.string()
		if err != nil {
			return nil, err
		}
		members = append(members, Member{ID: id, Kind: FeatureKind(kindByte), Role: role})
	}

	return members, nil
}

// Parents returns the features that reference this one, nodes referenced by
// ways and members referenced by relations.
func (r Record) Parents() ([]Parent, error) {
	d := r.bodyDecoder()
	err := d.skipTags()
	if err != nil {
		return nil, err
	}

	// Skip the kind specific section to reach the parent list.
	switch r.Kind() {
	case KindNode:
		d.pos += 8
	case KindWay:
		numNodes, err := d.uint16()
		if err != nil {
			return nil, err
		}
		d.pos += int(numNodes) * 16
	case KindRelation:
		numMembers, err := d.uint16()
		if err != nil {
			return nil, err
		}
		d.pos += int(numMembers) * 13
	}
	if d.pos > len(d.data) {
		return nil, errors.Errorf("Truncated body of feature %d", r.ID())
	}

	numParents, err := d.uint16()
	if err != nil {
		return nil, err
	}

	parents := make([]Parent, 0, numParents)
	for i := 0; i < int(numParents); i++ {
		kindByte, err := d.byte()
		if err != nil {
			return nil, err
		}
		id, err := d.int64()
		if err != nil {
			return nil, err
		}
		parents = append(parents, Parent{ID: id, Kind: FeatureKind(kindByte)})
	}

	return parents, nil
}
