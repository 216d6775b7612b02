package gol

import (
	"strings"

	"github.com/pkg/errors"
)

/*
Query strings select features by type and tags. They consist of an optional
type token followed by any number of tag fragments, all of which must match:

	n                  all nodes
	wa[building=yes]   ways tagged building=yes
	*[amenity=cafe,bar][name=*]

A fragment value list matches when any of the listed values matches, the
special value "*" matches every value of the key.
*/

// tagPattern is one compiled tag fragment. The key and values are resolved
// to string table indices at compile time, so matching never touches the
// string table.
type tagPattern struct {
	keyIdx    uint32
	valueIdxs []uint32
	anyValue  bool
}

// Matcher is a query compiled against one specific store.
type Matcher struct {
	types    TypeMask
	patterns []tagPattern

	// impossible is set when the query references a key or value the store
	// does not contain at all, so no feature can ever match.
	impossible bool
}

// CompileQuery parses and compiles a query string against this store. A
// syntactically valid query referencing unknown keys or values compiles to a
// matcher that matches nothing.
func (s *Store) CompileQuery(query string) (*Matcher, error) {
	typeToken, fragments, err := splitQuery(query)
	if err != nil {
		return nil, err
	}

	// A query without type prefix applies to all feature types.
	types := TypeAll
	if typeToken != "" {
		types, err = ParseTypeToken(typeToken)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid query %s", query)
		}
	}

	matcher := &Matcher{types: types}

	for _, fragment := range fragments {
		key, values, err := parseFragment(fragment)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid query %s", query)
		}

		keyIdx, ok := s.stringIndex(key)
		if !ok {
			matcher.impossible = true
			continue
		}

		pattern := tagPattern{keyIdx: keyIdx}
		for _, value := range values {
			if value == "*" {
				pattern.anyValue = true
				continue
			}
			valueIdx, ok := s.stringIndex(value)
			if ok {
				pattern.valueIdxs = append(pattern.valueIdxs, valueIdx)
			}
		}

		if !pattern.anyValue && len(pattern.valueIdxs) == 0 {
			matcher.impossible = true
			continue
		}

		matcher.patterns = append(matcher.patterns, pattern)
	}

	return matcher, nil
}

// splitQuery separates the type token from the bracketed tag fragments.
func splitQuery(query string) (string, []string, error) {
	query = strings.TrimSpace(query)

	bracket := strings.Index(query, "[")
	if bracket == -1 {
		return query, nil, nil
	}

	typeToken := query[:bracket]
	rest := query[bracket:]

	var fragments []string
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, errors.Errorf("Expected '[' at %s", rest)
		}
		end := strings.Index(rest, "]")
		if end == -1 {
			return "", nil, errors.Errorf("Unclosed tag fragment %s", rest)
		}
		fragments = append(fragments, rest[1:end])
		rest = rest[end+1:]
	}

	return typeToken, fragments, nil
}

// parseFragment splits the inside of one bracket pair into key and values.
func parseFragment(fragment string) (string, []string, error) {
	equals := strings.Index(fragment, "=")
	if equals == -1 {
		return "", nil, errors.Errorf("Tag fragment [%s] has no '='", fragment)
	}

	key := fragment[:equals]
	if key == "" {
		return "", nil, errors.Errorf("Tag fragment [%s] has an empty key", fragment)
	}

	values := strings.Split(fragment[equals+1:], ",")
	for _, value := range values {
		if value == "" {
			return "", nil, errors.Errorf("Tag fragment [%s] has an empty value", fragment)
		}
	}

	return key, values, nil
}

// Types returns the type mask of the compiled query. Scans check the type
// before touching the record body.
func (m *Matcher) Types() TypeMask {
	if m.impossible {
		return TypeNone
	}
	return m.types
}

// MatchesTags checks the compiled tag patterns against a record. The type
// mask is not checked here, callers filter by type first.
func (m *Matcher) MatchesTags(record Record) bool {
	if m.impossible {
		return false
	}

	for _, pattern := range m.patterns {
		if !record.matchesPattern(pattern) {
			return false
		}
	}
	return true
}

// matchesPattern scans the raw tag section for the compiled pattern without
// resolving any strings.
func (r Record) matchesPattern(pattern tagPattern) bool {
	d := r.bodyDecoder()
	numTags, err := d.uint16()
	if err != nil {
		return false
	}

	for i := 0; i < int(numTags); i++ {
		k, err := d.uint32()
		if err != nil {
			return false
		}
		v, err := d.uint32()
		if err != nil {
			return false
		}
		if k != pattern.keyIdx {
			continue
		}
		if pattern.anyValue {
			return true
		}
		for _, valueIdx := range pattern.valueIdxs {
			if v == valueIdx {
				return true
			}
		}
	}

	return false
}
