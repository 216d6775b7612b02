package scan

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldSet selects which optional fields a scan materializes per row. The
// identity fields (id, kind, area flag) are always present.
type FieldSet uint8

const (
	FieldTags FieldSet = 1 << iota
	FieldGeometry
	FieldMembers
	FieldParents

	AllFields = FieldTags | FieldGeometry | FieldMembers | FieldParents

	// DefaultFields covers the common case of feature queries.
	DefaultFields = FieldTags | FieldGeometry
)

func (s FieldSet) Has(field FieldSet) bool {
	return s&field != 0
}

// ParseFields parses a comma separated field list such as "tags,geometry".
// An empty string selects only the identity fields.
func ParseFields(fieldList string) (FieldSet, error) {
	fields := FieldSet(0)

	for _, name := range strings.Split(fieldList, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case "tags":
			fields |= FieldTags
		case "geometry":
			fields |= FieldGeometry
		case "members":
			fields |= FieldMembers
		case "parents":
			fields |= FieldParents
		default:
			return 0, errors.Errorf("Unknown field '%s', expected tags, geometry, members or parents", name)
		}
	}

	return fields, nil
}
