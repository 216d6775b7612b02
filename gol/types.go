package gol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FeatureKind is an enum for the three object kinds stored in a GOL file.
type FeatureKind int

const (
	KindNode FeatureKind = iota
	KindWay
	KindRelation
)

func (k FeatureKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	panic(fmt.Sprintf("[!UNKNOWN FeatureKind %d]", int(k)))
}

// TypeMask is a set of feature kinds a query should consider. It is the
// compiled form of the type-class prefix token of the store query language.
type TypeMask uint8

const (
	TypeNone     TypeMask = 0
	TypeNode     TypeMask = 1 << 0
	TypeWay      TypeMask = 1 << 1
	TypeRelation TypeMask = 1 << 2
	TypeAll               = TypeNode | TypeWay | TypeRelation
)

func (m TypeMask) Matches(kind FeatureKind) bool {
	switch kind {
	case KindNode:
		return m&TypeNode != 0
	case KindWay:
		return m&TypeWay != 0
	case KindRelation:
		return m&TypeRelation != 0
	}
	return false
}

func (m TypeMask) With(kind FeatureKind) TypeMask {
	switch kind {
	case KindNode:
		return m | TypeNode
	case KindWay:
		return m | TypeWay
	case KindRelation:
		return m | TypeRelation
	}
	return m
}

// Token returns the query language prefix for this mask. The way token is
// always "wa" so that closed ways with area semantics (buildings etc.) are
// matched as well. TypeNone has no token, a query for it matches nothing.
func (m TypeMask) Token() string {
	switch m {
	case TypeNone:
		return ""
	case TypeNode:
		return "n"
	case TypeWay:
		return "wa"
	case TypeRelation:
		return "r"
	case TypeNode | TypeWay:
		return "nwa"
	case TypeNode | TypeRelation:
		return "nr"
	case TypeWay | TypeRelation:
		return "war"
	case TypeAll:
		return "*"
	}
	panic(fmt.Sprintf("[!UNKNOWN TypeMask %d]", int(m)))
}

// ParseTypeToken parses a type-class prefix such as "n", "wa", "war" or "*".
// The "a" (area) class is folded into the way class, mirroring how area ways
// are stored as ways with the area flag set.
func ParseTypeToken(token string) (TypeMask, error) {
	mask := TypeNone
	for _, r := range token {
		switch r {
		case 'n':
			mask |= TypeNode
		case 'w', 'a':
			mask |= TypeWay
		case 'r':
			mask |= TypeRelation
		case '*':
			mask = TypeAll
		default:
			return TypeNone, errors.Errorf("Unknown type class '%c' in query prefix '%s'", r, token)
		}
	}
	return mask, nil
}

// Tag is one key-value pair of a feature.
type Tag struct {
	Key   string
	Value string
}

// Member is one entry of a feature's member list. For relations the role is
// the member role from the store (possibly empty). For ways the members are
// the way's nodes: a real node ID for tagged nodes or ID 0 for anonymous
// nodes that only contribute coordinates.
type Member struct {
	ID   int64
	Kind FeatureKind
	Role string
}

func (m Member) Anonymous() bool {
	return m.Kind == KindNode && m.ID == 0
}

// Parent is a back-reference to a way or relation containing a feature. The
// role is only set for relation parents and only when it could be resolved
// from the parent's member list.
type Parent struct {
	ID   int64
	Kind FeatureKind
	Role string
}

// NodeRef is one node of a way: its coordinate plus the node ID, which is 0
// for anonymous (untagged) nodes.
type NodeRef struct {
	ID int64
	X  int32
	Y  int32
}

func (n NodeRef) Anonymous() bool {
	return n.ID == 0
}

func (n NodeRef) Coordinate() Coordinate {
	return Coordinate{n.X, n.Y}
}

func formatTags(tags []Tag) string {
	sb := strings.Builder{}
	for i, tag := range tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tag.Key)
		sb.WriteString("=")
		sb.WriteString(tag.Value)
	}
	return sb.String()
}
