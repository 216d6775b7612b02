package gol

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// StoreBuilder collects features and serializes them into the store format.
// Features must be added nodes first, then ways, then relations, so that
// referenced geometry is available when the referencing feature arrives.
type StoreBuilder struct {
	stringIdx map[string]uint32
	strings   []string

	nodes     []*pendingFeature
	ways      []*pendingFeature
	relations []*pendingFeature

	nodeIdx     map[int64]*pendingFeature
	wayIdx      map[int64]*pendingFeature
	relationIdx map[int64]*pendingFeature
}

type pendingFeature struct {
	id      int64
	kind    FeatureKind
	isArea  bool
	box     Box
	tags    []Tag
	point   Coordinate
	nodes   []NodeRef
	members []Member
	parents []Parent
}

func NewStoreBuilder() *StoreBuilder {
	return &StoreBuilder{
		stringIdx:   map[string]uint32{},
		nodeIdx:     map[int64]*pendingFeature{},
		wayIdx:      map[int64]*pendingFeature{},
		relationIdx: map[int64]*pendingFeature{},
	}
}

func (b *StoreBuilder) internString(value string) uint32 {
	index, ok := b.stringIdx[value]
	if ok {
		return index
	}
	index = uint32(len(b.strings))
	b.strings = append(b.strings, value)
	b.stringIdx[value] = index
	return index
}

// internTags sorts the tags by key and interns all strings. Sorted tag
// sections make the output deterministic.
func (b *StoreBuilder) internTags(tags []Tag) []Tag {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	for _, tag := range sorted {
		b.internString(tag.Key)
		b.internString(tag.Value)
	}
	return sorted
}

func (b *StoreBuilder) AddNode(id int64, coordinate Coordinate, tags []Tag) {
	feature := &pendingFeature{
		id:    id,
		kind:  KindNode,
		box:   BoxFromCoordinate(coordinate),
		tags:  b.internTags(tags),
		point: coordinate,
	}
	b.nodes = append(b.nodes, feature)
	b.nodeIdx[id] = feature
}

// AddWay adds a way with its full node list. Anonymous nodes carry ID 0 and
// only contribute their coordinate. The bounding box is derived from the
// node coordinates.
func (b *StoreBuilder) AddWay(id int64, nodes []NodeRef, tags []Tag, isArea bool) error {
	if len(nodes) == 0 {
		return errors.Errorf("Way %d has no nodes", id)
	}

	box := BoxFromCoordinate(nodes[0].Coordinate())
	for _, node := range nodes[1:] {
		box = box.ExpandToCoordinate(node.Coordinate())
	}

	feature := &pendingFeature{
		id:     id,
		kind:   KindWay,
		isArea: isArea,
		box:    box,
		tags:   b.internTags(tags),
		nodes:  nodes,
	}
	b.ways = append(b.ways, feature)
	b.wayIdx[id] = feature
	return nil
}

// AddRelation adds a relation. Members referencing features not in this
// builder are kept, they just do not contribute to the bounding box.
func (b *StoreBuilder) AddRelation(id int64, members []Member, tags []Tag, isArea bool) {
	feature := &pendingFeature{
		id:      id,
		kind:    KindRelation,
		isArea:  isArea,
		tags:    b.internTags(tags),
		members: members,
	}
	for _, member := range members {
		b.internString(member.Role)
	}
	b.relations = append(b.relations, feature)
	b.relationIdx[id] = feature
}

func (b *StoreBuilder) lookup(kind FeatureKind, id int64) (*pendingFeature, bool) {
	var feature *pendingFeature
	var ok bool
	switch kind {
	case KindNode:
		feature, ok = b.nodeIdx[id]
	case KindWay:
		feature, ok = b.wayIdx[id]
	case KindRelation:
		feature, ok = b.relationIdx[id]
	}
	return feature, ok
}

// derive fills in relation bounding boxes and the reverse parent references.
func (b *StoreBuilder) derive() {
	for _, way := range b.ways {
		for _, node := range way.nodes {
			if node.Anonymous() {
				continue
			}
			target, ok := b.nodeIdx[node.ID]
			if !ok {
				continue
			}
			target.parents = append(target.parents, Parent{ID: way.id, Kind: KindWay})
		}
	}

	for _, relation := range b.relations {
		hasBox := false
		for _, member := range relation.members {
			target, ok := b.lookup(member.Kind, member.ID)
			if !ok {
				sigolo.Debugf("Relation %d references missing %s %d", relation.id, member.Kind.String(), member.ID)
				continue
			}
			target.parents = append(target.parents, Parent{ID: relation.id, Kind: KindRelation})

			if !hasBox {
				relation.box = target.box
				hasBox = true
			} else {
				relation.box = relation.box.ExpandToBox(target.box)
			}
		}
	}
}

// Write serializes all collected features into the store format.
func (b *StoreBuilder) Write(writer io.Writer) error {
	b.derive()

	buffer := &bytes.Buffer{}

	buffer.Write(storeMagic[:])
	writeUint16(buffer, storeVersion)

	writeUint32(buffer, uint32(len(b.strings)))
	for _, value := range b.strings {
		if len(value) > 0xffff {
			return errors.Errorf("String too long for string table (%d bytes)", len(value))
		}
		writeUint16(buffer, uint16(len(value)))
		buffer.WriteString(value)
	}

	for _, features := range [][]*pendingFeature{b.nodes, b.ways, b.relations} {
		for _, feature := range features {
			err := b.writeFeature(buffer, feature)
			if err != nil {
				return err
			}
		}
	}

	_, err := writer.Write(buffer.Bytes())
	return errors.Wrap(err, "Unable to write store data")
}

// Bytes serializes the store into memory.
func (b *StoreBuilder) Bytes() ([]byte, error) {
	buffer := &bytes.Buffer{}
	err := b.Write(buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (b *StoreBuilder) writeFeature(buffer *bytes.Buffer, feature *pendingFeature) error {
	body := &bytes.Buffer{}

	if len(feature.tags) > 0xffff {
		return errors.Errorf("Feature %d has too many tags (%d)", feature.id, len(feature.tags))
	}
	writeUint16(body, uint16(len(feature.tags)))
	for _, tag := range feature.tags {
		writeUint32(body, b.stringIdx[tag.Key])
		writeUint32(body, b.stringIdx[tag.Value])
	}

	switch feature.kind {
	case KindNode:
		writeInt32(body, feature.point.X)
		writeInt32(body, feature.point.Y)
	case KindWay:
		if len(feature.nodes) > 0xffff {
			return errors.Errorf("Way %d has too many nodes (%d)", feature.id, len(feature.nodes))
		}
		writeUint16(body, uint16(len(feature.nodes)))
		for _, node := range feature.nodes {
			writeInt64(body, node.ID)
			writeInt32(body, node.X)
			writeInt32(body, node.Y)
		}
	case KindRelation:
		if len(feature.members) > 0xffff {
			return errors.Errorf("Relation %d has too many members (%d)", feature.id, len(feature.members))
		}
		writeUint16(body, uint16(len(feature.members)))
		for _, member := range feature.members {
			body.WriteByte(byte(member.Kind))
			writeInt64(body, member.ID)
			writeUint32(body, b.stringIdx[member.Role])
		}
	}

	if len(feature.parents) > 0xffff {
		return errors.Errorf("Feature %d has too many parents (%d)", feature.id, len(feature.parents))
	}
	writeUint16(body, uint16(len(feature.parents)))
	for _, parent := range feature.parents {
		body.WriteByte(byte(parent.Kind))
		writeInt64(body, parent.ID)
	}

	writeInt64(buffer, feature.id)
	buffer.WriteByte(byte(feature.kind))
	var flags byte
	if feature.isArea {
		flags |= flagArea
	}
	buffer.WriteByte(flags)
	writeInt32(buffer, feature.box.MinX)
	writeInt32(buffer, feature.box.MinY)
	writeInt32(buffer, feature.box.MaxX)
	writeInt32(buffer, feature.box.MaxY)
	writeUint32(buffer, uint32(body.Len()))
	buffer.Write(body.Bytes())

	return nil
}

func writeUint16(buffer *bytes.Buffer, value uint16) {
	var raw [2]byte
	binary.LittleEndian.PutUint16(raw[:], value)
	buffer.Write(raw[:])
}

func writeUint32(buffer *bytes.Buffer, value uint32) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], value)
	buffer.Write(raw[:])
}

func writeInt32(buffer *bytes.Buffer, value int32) {
	writeUint32(buffer, uint32(value))
}

func writeInt64(buffer *bytes.Buffer, value int64) {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], uint64(value))
	buffer.Write(raw[:])
}
