package gol

import (
	"encoding/binary"
	"os"

	"github.com/dhconnelly/rtreego"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

/*
Store file layout (all values little-endian):

	header:
	  magic   4 bytes "GOL1"
	  version uint16
	string table:
	  count uint32, then per string: length uint16 + raw bytes
	feature records, sequential until end of file:
	  id       int64
	  kind     byte  (0=node, 1=way, 2=relation)
	  flags    byte  (bit 0: area)
	  bbox     4 x int32 (minX, minY, maxX, maxY)
	  bodyLen  uint32 (number of body bytes following)
	  body:
	    tags: count uint16, per tag: keyIdx uint32, valueIdx uint32
	    node:     x int32, y int32
	    way:      count uint16, per node: id int64 (0=anonymous), x int32, y int32
	    relation: count uint16, per member: kind byte, id int64, roleIdx uint32
	    parents: count uint16, per parent: kind byte, id int64

Keys, values and roles all share the single string table. Records are stored
in file order, which is also the iteration order of every scan.
*/

var storeMagic = [4]byte{'G', 'O', 'L', '1'}

const storeVersion = 1

const (
	flagArea = 1 << 0

	recordHeaderBytes = 8 + 1 + 1 + 16 + 4
)

// recordEntry is one slot of the in-memory record directory. The body stays
// in the raw data slice and is only decoded on demand.
type recordEntry struct {
	id      int64
	bodyPos int
	bodyEnd int
	kind    FeatureKind
	flags   byte
	box     Box
}

// indexedRecord makes a directory entry searchable in the spatial index.
type indexedRecord struct {
	pos  int
	rect rtreego.Rect
}

func (r *indexedRecord) Bounds() rtreego.Rect {
	return r.rect
}

// Store is a read-only handle to one GOL file. All random access lookups go
// through the store, records never outlive it.
type Store struct {
	name      string
	data      []byte
	strings   []string
	stringIdx map[string]uint32
	records   []recordEntry
	byID      [3]map[int64]int

	rtree *rtreego.Rtree
}

// Open reads the GOL file at the given path. The whole file is loaded into
// memory, records are decoded lazily from the raw bytes.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read store file %s", path)
	}

	return OpenBytes(data, path)
}

// OpenBytes opens a store from raw file content. The name is only used in
// error messages and diagnostics.
func OpenBytes(data []byte, name string) (*Store, error) {
	store := &Store{
		name: name,
		data: data,
	}

	err := store.readHeaderAndDirectory()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open store %s", name)
	}

	store.buildSpatialIndex()

	sigolo.Debugf("Opened store %s with %d features and %d strings", name, len(store.records), len(store.strings))

	return store, nil
}

func (s *Store) readHeaderAndDirectory() error {
	if len(s.data) < 6 {
		return errors.Errorf("File too short (%d bytes)", len(s.data))
	}
	if s.data[0] != storeMagic[0] || s.data[1] != storeMagic[1] || s.data[2] != storeMagic[2] || s.data[3] != storeMagic[3] {
		return errors.Errorf("Invalid magic bytes %v", s.data[0:4])
	}
	version := binary.LittleEndian.Uint16(s.data[4:])
	if version != storeVersion {
		return errors.Errorf("Unsupported store version %d, expected %d", version, storeVersion)
	}

	pos := 6

	/*
		Read string table
	*/
	if pos+4 > len(s.data) {
		return errors.Errorf("Truncated string table header at position %d", pos)
	}
	numStrings := int(binary.LittleEndian.Uint32(s.data[pos:]))
	pos += 4

	s.strings = make([]string, numStrings)
	s.stringIdx = make(map[string]uint32, numStrings)
	for i := 0; i < numStrings; i++ {
		if pos+2 > len(s.data) {
			return errors.Errorf("Truncated string table entry %d at position %d", i, pos)
		}
		length := int(binary.LittleEndian.Uint16(s.data[pos:]))
		pos += 2
		if pos+length > len(s.data) {
			return errors.Errorf("Truncated string table entry %d at position %d", i, pos)
		}
		s.strings[i] = string(s.data[pos : pos+length])
		s.stringIdx[s.strings[i]] = uint32(i)
		pos += length
	}

	/*
		Walk the feature records to build the directory. The body length field
		allows skipping each body without decoding it.
	*/
	s.byID = [3]map[int64]int{map[int64]int{}, map[int64]int{}, map[int64]int{}}

	for pos < len(s.data) {
		if pos+recordHeaderBytes > len(s.data) {
			return errors.Errorf("Truncated record header at position %d", pos)
		}

		id := int64(binary.LittleEndian.Uint64(s.data[pos:]))
		kind := FeatureKind(s.data[pos+8])
		flags := s.data[pos+9]
		box := Box{
			MinX: int32(binary.LittleEndian.Uint32(s.data[pos+10:])),
			MinY: int32(binary.LittleEndian.Uint32(s.data[pos+14:])),
			MaxX: int32(binary.LittleEndian.Uint32(s.data[pos+18:])),
			MaxY: int32(binary.LittleEndian.Uint32(s.data[pos+22:])),
		}
		bodyLen := int(binary.LittleEndian.Uint32(s.data[pos+26:]))

		if kind != KindNode && kind != KindWay && kind != KindRelation {
			return errors.Errorf("Invalid feature kind %d for feature %d at position %d", int(kind), id, pos)
		}

		bodyPos := pos + recordHeaderBytes
		if bodyPos+bodyLen > len(s.data) {
			return errors.Errorf("Truncated record body for feature %d at position %d", id, pos)
		}

		s.byID[kind][id] = len(s.records)
		s.records = append(s.records, recordEntry{
			id:      id,
			kind:    kind,
			flags:   flags,
			box:     box,
			bodyPos: bodyPos,
			bodyEnd: bodyPos + bodyLen,
		})

		pos = bodyPos + bodyLen
	}

	return nil
}

func (s *Store) buildSpatialIndex() {
	s.rtree = rtreego.NewTree(2, 25, 50)

	for i := range s.records {
		box := s.records[i].box

		// The R-tree needs non-degenerate rectangles, point features get a
		// one-unit extent.
		lengthX := float64(box.MaxX) - float64(box.MinX)
		lengthY := float64(box.MaxY) - float64(box.MinY)
		if lengthX < 1 {
			lengthX = 1
		}
		if lengthY < 1 {
			lengthY = 1
		}

		rect, err := rtreego.NewRect(rtreego.Point{float64(box.MinX), float64(box.MinY)}, []float64{lengthX, lengthY})
		if err != nil {
			sigolo.Warnf("Unable to index bounding box of feature %d: %v", s.records[i].id, err)
			continue
		}

		s.rtree.Insert(&indexedRecord{pos: i, rect: rect})
	}
}

// Close releases the store. Records obtained from this store must not be
// used afterwards.
func (s *Store) Close() {
	s.data = nil
	s.records = nil
	s.strings = nil
	s.stringIdx = nil
	s.byID = [3]map[int64]int{}
	s.rtree = nil
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) NumFeatures() int {
	return len(s.records)
}

// RecordAt returns the record at the given directory position (file order).
func (s *Store) RecordAt(pos int) Record {
	return Record{store: s, pos: pos}
}

// Lookup finds a feature by kind and ID. The returned record carries this
// store as its origin, there is no way to obtain a record detached from the
// store that produced it.
func (s *Store) Lookup(kind FeatureKind, id int64) (Record, bool) {
	pos, ok := s.byID[kind][id]
	if !ok {
		return Record{}, false
	}
	return Record{store: s, pos: pos}, true
}

// SearchBox returns the directory positions of all features whose bounding
// box intersects the given box. The result is a set, iteration over it must
// happen in directory order to keep scans deterministic.
func (s *Store) SearchBox(box Box) map[int]struct{} {
	lengthX := float64(box.MaxX) - float64(box.MinX)
	lengthY := float64(box.MaxY) - float64(box.MinY)
	if lengthX < 1 {
		lengthX = 1
	}
	if lengthY < 1 {
		lengthY = 1
	}

	rect, err := rtreego.NewRect(rtreego.Point{float64(box.MinX), float64(box.MinY)}, []float64{lengthX, lengthY})
	if err != nil {
		sigolo.Warnf("Invalid search box %v: %v", box, err)
		return map[int]struct{}{}
	}

	matches := s.rtree.SearchIntersect(rect)
	result := make(map[int]struct{}, len(matches))
	for _, match := range matches {
		result[match.(*indexedRecord).pos] = struct{}{}
	}
	return result
}

func (s *Store) stringAt(index uint32) (string, error) {
	if int(index) >= len(s.strings) {
		return "", errors.Errorf("String index %d out of range (table size %d)", index, len(s.strings))
	}
	return s.strings[index], nil
}

// stringIndex returns the table index of the given string, or false when the
// store does not contain it at all.
func (s *Store) stringIndex(value string) (uint32, bool) {
	index, ok := s.stringIdx[value]
	return index, ok
}
