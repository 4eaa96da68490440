// Package differ compares a matched facility/source pair and reports what
// changed. Attribute comparison covers a configurable field set; geometry is
// always compared, with a tolerance that absorbs floating-point noise from
// reprojection.
package differ

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// Field names a comparable attribute.
type Field string

// Comparable fields. source_name is compared as a proxy for facility name
// changes: when the authority renames a facility, both name columns follow.
const (
	FieldSourceID   Field = "source_id"
	FieldSourceName Field = "source_name"
	FieldSourceType Field = "source_type"
	FieldOccupancy  Field = "occupancy"
)

// DefaultFields is the comparison set used when none is configured.
// Occupancy is excluded by default: authorities restate it every cycle, so
// including it flags nearly every record.
var DefaultFields = []Field{FieldSourceID, FieldSourceName, FieldSourceType}

// Fields returns all valid comparable fields.
func Fields() []Field {
	return []Field{FieldSourceID, FieldSourceName, FieldSourceType, FieldOccupancy}
}

// valid reports whether f names a known comparable field.
func (f Field) valid() bool {
	switch f {
	case FieldSourceID, FieldSourceName, FieldSourceType, FieldOccupancy:
		return true
	}
	return false
}

// FieldChange records one attribute difference.
type FieldChange struct {
	Field    Field
	OldValue string
	NewValue string
}

// Result is the outcome of diffing one matched pair.
type Result struct {
	GeometryChanged   bool
	AttributesChanged bool
	Changes           []FieldChange

	// GeometryNote describes how the geometry differs when it does:
	// a point's distance from the polygon, or the symmetric difference
	// area for polygon sources.
	GeometryNote string
}

// Changed reports whether anything differs.
func (r *Result) Changed() bool {
	return r.GeometryChanged || r.AttributesChanged
}

// Description renders the human-readable change summary, in the form
// `Geom: 41.3m, Attrs: source_name: "Old" -> "New"; ...`.
func (r *Result) Description() string {
	out := ""
	if r.GeometryChanged {
		out = "Geom: " + r.GeometryNote
	}
	if r.AttributesChanged {
		attrs := ""
		for i, ch := range r.Changes {
			if i > 0 {
				attrs += "; "
			}
			attrs += fmt.Sprintf("%s: %q -> %q", ch.Field, ch.OldValue, ch.NewValue)
		}
		if out != "" {
			out += ", "
		}
		out += "Attrs: " + attrs
	}
	return out
}

// Differ compares matched pairs over a fixed field set.
type Differ struct {
	fields          []Field
	geometryEpsilon float64 // square metres of tolerated symmetric difference
	pointTolerance  float64 // metres a point source may sit from the polygon
}

// Default tolerances. The point tolerance matches the spatial matching
// buffer; the area epsilon absorbs reprojection jitter only.
const (
	DefaultGeometryEpsilon = 1.0
	DefaultPointTolerance  = 30.0
)

// New creates a Differ for the given comparison fields. A nil or empty set
// selects DefaultFields. Unknown field names and non-positive tolerances
// fail fast with a ConfigError, before any matching has run.
func New(fields []Field, opts ...Option) (*Differ, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	for _, f := range fields {
		if !f.valid() {
			return nil, errors.NewConfigError("differ", fmt.Sprintf("unknown comparison field %q", f), nil)
		}
	}
	d := &Differ{
		fields:          fields,
		geometryEpsilon: DefaultGeometryEpsilon,
		pointTolerance:  DefaultPointTolerance,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.geometryEpsilon <= 0 {
		return nil, errors.NewConfigError("differ", "geometry epsilon must be positive", nil)
	}
	if d.pointTolerance <= 0 {
		return nil, errors.NewConfigError("differ", "point tolerance must be positive", nil)
	}
	return d, nil
}

// Diff compares one matched pair. Inputs must already be normalized.
func (d *Differ) Diff(ref *facilities.Facility, src *facilities.SourceRecord) Result {
	res := Result{}
	d.diffGeometry(ref, src, &res)

	for _, field := range d.fields {
		if ch, changed := diffField(field, ref, src); changed {
			res.Changes = append(res.Changes, ch)
		}
	}
	res.AttributesChanged = len(res.Changes) > 0
	return res
}

// diffGeometry always runs, independent of the configured field set.
func (d *Differ) diffGeometry(ref *facilities.Facility, src *facilities.SourceRecord, res *Result) {
	switch g := src.Geom.(type) {
	case orb.Point:
		dist := geometry.DistanceToPolygon(ref.Geom, g)
		if dist > d.pointTolerance {
			res.GeometryChanged = true
			res.GeometryNote = fmt.Sprintf("%.1fm", dist)
		}
	case orb.Polygon, orb.MultiPolygon:
		mp, ok := geometry.MultiPolygonOf(g)
		if !ok {
			res.GeometryChanged = true
			res.GeometryNote = "missing"
			return
		}
		if !geometry.EqualWithin(ref.Geom, mp, d.geometryEpsilon) {
			area, err := geometry.SymmetricDifferenceArea(ref.Geom, mp)
			res.GeometryChanged = true
			if err != nil {
				res.GeometryNote = "modified"
			} else {
				res.GeometryNote = fmt.Sprintf("%.1fm2 difference", area)
			}
		}
	default:
		// Normalization guarantees a usable geometry; anything else is
		// reported as missing rather than dropped.
		res.GeometryChanged = true
		res.GeometryNote = "missing"
	}
}

// diffField compares one attribute. Equality is a direct value comparison on
// the normalized forms; occupancy tolerates exact match only.
func diffField(field Field, ref *facilities.Facility, src *facilities.SourceRecord) (FieldChange, bool) {
	switch field {
	case FieldSourceID:
		if ref.SourceFacilityID != src.SourceID {
			return FieldChange{Field: field, OldValue: ref.SourceFacilityID, NewValue: src.SourceID}, true
		}
	case FieldSourceName:
		if ref.SourceNameKey != src.NameKey {
			return FieldChange{Field: field, OldValue: ref.SourceName, NewValue: src.Name}, true
		}
	case FieldSourceType:
		if ref.UseType != src.UseType {
			return FieldChange{Field: field, OldValue: ref.UseType, NewValue: src.UseType}, true
		}
	case FieldOccupancy:
		if ref.EstimatedOccupancy != src.Occupancy {
			return FieldChange{
				Field:    field,
				OldValue: occupancyString(ref.EstimatedOccupancy),
				NewValue: occupancyString(src.Occupancy),
			}, true
		}
	}
	return FieldChange{}, false
}

func occupancyString(v int) string {
	if v == facilities.OccupancyUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%d", v)
}
