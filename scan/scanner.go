package scan

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/geometry"
	"github.com/hjanetzek/geodesk-fdw/gol"
	"github.com/hjanetzek/geodesk-fdw/pushdown"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Options bound the per-row work of a scan.
type Options struct {
	// MaxMembers caps the materialized member list per feature. Longer lists
	// are truncated with a warning.
	MaxMembers int

	// MaxParents caps the materialized parent list per feature.
	MaxParents int

	// GapTolerance is the ring snapping tolerance for multipolygon assembly,
	// in store coordinate units.
	GapTolerance int32
}

func DefaultOptions() Options {
	return Options{
		MaxMembers:   1000,
		MaxParents:   100,
		GapTolerance: geometry.DefaultGapTolerance,
	}
}

// Row is one materialized scan result. Fields outside the requested field
// set stay at their zero value.
type Row struct {
	ID     int64
	Kind   gol.FeatureKind
	IsArea bool

	Tags     map[string]string
	Geometry orb.Geometry
	Members  []gol.Member
	Parents  []gol.Parent
}

// Scanner runs one filtered scan over a store and materializes the requested
// fields per matching feature.
type Scanner struct {
	store   *gol.Store
	builder *geometry.Builder
	plan    *pushdown.Plan
	cursor  *Cursor
	fields  FieldSet
	opts    Options
	closed  bool
}

// NewScanner plans and prepares a scan. The filter string is translated into
// a pushed store query plus a residual, see the pushdown package for the
// filter syntax.
func NewScanner(store *gol.Store, filterString string, fields FieldSet, opts Options) (*Scanner, error) {
	filter, err := pushdown.ParseFilter(filterString)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse filter %q", filterString)
	}

	plan := pushdown.Translate(filter)
	if sigolo.ShouldLogTrace() {
		plan.Print()
	}

	matcher, err := store.CompileQuery(plan.StoreQuery())
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to compile store query %q", plan.StoreQuery())
	}

	builder := geometry.NewBuilder(store)
	builder.GapTolerance = opts.GapTolerance

	return &Scanner{
		store:   store,
		builder: builder,
		plan:    plan,
		cursor:  NewCursor(store, matcher, plan.Box),
		fields:  fields,
		opts:    opts,
	}, nil
}

func (s *Scanner) Plan() *pushdown.Plan {
	return s.plan
}

// Next returns the next matching row, or nil once the scan is exhausted.
// Failures to materialize a single field are not fatal, the field stays
// empty and a warning names the feature.
func (s *Scanner) Next() (*Row, error) {
	if s.closed {
		return nil, errors.New("Scanner is closed")
	}

	for {
		record, ok := s.cursor.Next()
		if !ok {
			return nil, nil
		}

		matches, err := s.evaluateResidual(record)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}

		return s.materialize(record), nil
	}
}

// Reset rewinds the scan to the first feature. The plan, the compiled query
// and the store handle are all reused.
func (s *Scanner) Reset() error {
	if s.closed {
		return errors.New("Scanner is closed")
	}
	s.cursor.Reset()
	return nil
}

func (s *Scanner) Close() {
	s.closed = true
}

func (s *Scanner) evaluateResidual(record gol.Record) (bool, error) {
	if len(s.plan.Residual) == 0 {
		return true, nil
	}

	row := &recordRow{record: record}
	for _, conjunct := range s.plan.Residual {
		matches, err := conjunct.Evaluate(row)
		if err != nil {
			return false, errors.Wrapf(err, "Unable to evaluate filter for feature %d", record.ID())
		}
		if !matches {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scanner) materialize(record gol.Record) *Row {
	row := &Row{
		ID:     record.ID(),
		Kind:   record.Kind(),
		IsArea: record.IsArea(),
	}

	if s.fields.Has(FieldTags) {
		tags, err := record.Tags()
		if err != nil {
			sigolo.Warnf("Unable to read tags of feature %d: %v", record.ID(), err)
		} else {
			row.Tags = make(map[string]string, len(tags))
			for _, tag := range tags {
				row.Tags[tag.Key] = tag.Value
			}
		}
	}

	if s.fields.Has(FieldGeometry) {
		geom, err := s.builder.Build(record)
		if err != nil {
			sigolo.Warnf("Unable to build geometry of feature %d: %v", record.ID(), err)
		} else {
			row.Geometry = geom
		}
	}

	if s.fields.Has(FieldMembers) {
		row.Members = s.materializeMembers(record)
	}

	if s.fields.Has(FieldParents) {
		row.Parents = s.materializeParents(record)
	}

	return row
}

// materializeMembers returns the member list of a relation, or the node list
// of a way rendered as members. Anonymous way nodes become members with ID 0
// and no identity.
func (s *Scanner) materializeMembers(record gol.Record) []gol.Member {
	switch record.Kind() {
	case gol.KindWay:
		refs, err := record.NodeRefs()
		if err != nil {
			sigolo.Warnf("Unable to read nodes of way %d: %v", record.ID(), err)
			return nil
		}
		if len(refs) > s.opts.MaxMembers {
			sigolo.Warnf("Truncating node list of way %d from %d to %d entries", record.ID(), len(refs), s.opts.MaxMembers)
			refs = refs[:s.opts.MaxMembers]
		}
		members := make([]gol.Member, 0, len(refs))
		for _, ref := range refs {
			members = append(members, gol.Member{ID: ref.ID, Kind: gol.KindNode})
		}
		return members
	case gol.KindRelation:
		members, err := record.Members()
		if err != nil {
			sigolo.Warnf("Unable to read members of relation %d: %v", record.ID(), err)
			return nil
		}
		if len(members) > s.opts.MaxMembers {
			sigolo.Warnf("Truncating member list of relation %d from %d to %d entries", record.ID(), len(members), s.opts.MaxMembers)
			members = members[:s.opts.MaxMembers]
		}
		return members
	}
	return nil
}

func (s *Scanner) materializeParents(record gol.Record) []gol.Parent {
	parents, err := record.Parents()
	if err != nil {
		sigolo.Warnf("Unable to read parents of feature %d: %v", record.ID(), err)
		return nil
	}
	if len(parents) > s.opts.MaxParents {
		sigolo.Warnf("Truncating parent list of feature %d from %d to %d entries", record.ID(), len(parents), s.opts.MaxParents)
		parents = parents[:s.opts.MaxParents]
	}

	// Resolve the role this feature has in each parent relation.
	for i, parent := range parents {
		if parent.Kind != gol.KindRelation {
			continue
		}
		parentRecord, ok := s.store.Lookup(gol.KindRelation, parent.ID)
		if !ok {
			continue
		}
		members, err := parentRecord.Members()
		if err != nil {
			continue
		}
		for _, member := range members {
			if member.ID == record.ID() && member.Kind == record.Kind() {
				parents[i].Role = member.Role
				break
			}
		}
	}

	return parents
}

// recordRow adapts a store record to the residual filter's row view. Tags
// and the bounding box are only decoded when the filter asks for them.
type recordRow struct {
	record gol.Record
}

func (r *recordRow) ID() int64 {
	return r.record.ID()
}

func (r *recordRow) Kind() gol.FeatureKind {
	return r.record.Kind()
}

func (r *recordRow) Tag(key string) (string, bool) {
	return r.record.TagValue(key)
}

func (r *recordRow) Bound() (orb.Bound, bool) {
	return r.record.Box().ToMercator(), true
}
