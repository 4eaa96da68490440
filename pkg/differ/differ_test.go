package differ_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/normalize"
)

func refFacility(t *testing.T) *facilities.Facility {
	t.Helper()
	f := &facilities.Facility{
		FacilityID:         1,
		SourceFacilityID:   "174",
		Name:               "Example School",
		SourceName:         "Example School",
		Use:                facilities.UseSchool,
		UseType:            "Secondary (Year 9-15)",
		EstimatedOccupancy: 850,
		Geom: orb.MultiPolygon{orb.Polygon{orb.Ring{
			{1748000, 5427000},
			{1748100, 5427000},
			{1748100, 5427100},
			{1748000, 5427100},
			{1748000, 5427000},
		}}},
	}
	require.NoError(t, normalize.Facility(f))
	return f
}

func srcRecord(t *testing.T, geom orb.Geometry) *facilities.SourceRecord {
	t.Helper()
	s := &facilities.SourceRecord{
		SourceID:  "174",
		Name:      "Example School",
		UseType:   "Secondary (Year 9-15)",
		Authority: facilities.AuthorityEducation,
		Occupancy: 850,
		Geom:      geom,
	}
	require.NoError(t, normalize.Source(s))
	return s
}

func newDiffer(t *testing.T, fields []differ.Field, opts ...differ.Option) *differ.Differ {
	t.Helper()
	d, err := differ.New(fields, opts...)
	require.NoError(t, err)
	return d
}

func TestNewValidation(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := differ.New([]differ.Field{"colour"})
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("non-positive epsilon", func(t *testing.T) {
		_, err := differ.New(nil, differ.WithGeometryEpsilon(0))
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("non-positive point tolerance", func(t *testing.T) {
		_, err := differ.New(nil, differ.WithPointTolerance(-1))
		require.Error(t, err)
	})

	t.Run("empty set selects defaults", func(t *testing.T) {
		d, err := differ.New(nil)
		require.NoError(t, err)
		require.NotNil(t, d)
	})
}

func TestDiffUnchanged(t *testing.T) {
	ref := refFacility(t)
	src := srcRecord(t, orb.Point{1748050, 5427050}) // inside the polygon

	res := newDiffer(t, nil).Diff(ref, src)
	assert.False(t, res.Changed())
	assert.Empty(t, res.Description())
}

func TestDiffPointGeometryBeyondTolerance(t *testing.T) {
	ref := refFacility(t)
	src := srcRecord(t, orb.Point{1748200, 5427050}) // 100 m east of the edge

	res := newDiffer(t, nil).Diff(ref, src)
	assert.True(t, res.GeometryChanged)
	assert.False(t, res.AttributesChanged)
	assert.Contains(t, res.Description(), "Geom: 100.0m")
}

func TestDiffPolygonGeometry(t *testing.T) {
	ref := refFacility(t)

	t.Run("identical polygon", func(t *testing.T) {
		src := srcRecord(t, orb.Polygon{orb.Ring{
			{1748000, 5427000},
			{1748100, 5427000},
			{1748100, 5427100},
			{1748000, 5427100},
			{1748000, 5427000},
		}})
		res := newDiffer(t, nil).Diff(ref, src)
		assert.False(t, res.GeometryChanged)
	})

	t.Run("shifted polygon", func(t *testing.T) {
		src := srcRecord(t, orb.Polygon{orb.Ring{
			{1748010, 5427000},
			{1748110, 5427000},
			{1748110, 5427100},
			{1748010, 5427100},
			{1748010, 5427000},
		}})
		res := newDiffer(t, nil).Diff(ref, src)
		assert.True(t, res.GeometryChanged)
		assert.Contains(t, res.GeometryNote, "difference")
	})
}

func TestDiffAttributes(t *testing.T) {
	d := newDiffer(t, nil)

	t.Run("renamed", func(t *testing.T) {
		ref := refFacility(t)
		src := srcRecord(t, orb.Point{1748050, 5427050})
		src.Name = "Renamed School"
		require.NoError(t, normalize.Source(src))

		res := d.Diff(ref, src)
		assert.True(t, res.AttributesChanged)
		assert.False(t, res.GeometryChanged)
		require.Len(t, res.Changes, 1)
		assert.Equal(t, differ.FieldSourceName, res.Changes[0].Field)
		assert.Equal(t, "Example School", res.Changes[0].OldValue)
		assert.Equal(t, "Renamed School", res.Changes[0].NewValue)
		assert.Contains(t, res.Description(), `source_name: "Example School" -> "Renamed School"`)
	})

	t.Run("case and whitespace insensitive name comparison", func(t *testing.T) {
		ref := refFacility(t)
		src := srcRecord(t, orb.Point{1748050, 5427050})
		src.Name = "  EXAMPLE   school "
		require.NoError(t, normalize.Source(src))

		res := d.Diff(ref, src)
		assert.False(t, res.AttributesChanged)
	})

	t.Run("use type changed", func(t *testing.T) {
		ref := refFacility(t)
		src := srcRecord(t, orb.Point{1748050, 5427050})
		src.UseType = "Composite"

		res := d.Diff(ref, src)
		assert.True(t, res.AttributesChanged)
		require.Len(t, res.Changes, 1)
		assert.Equal(t, differ.FieldSourceType, res.Changes[0].Field)
	})

	t.Run("occupancy ignored unless selected", func(t *testing.T) {
		ref := refFacility(t)
		src := srcRecord(t, orb.Point{1748050, 5427050})
		src.Occupancy = 900

		res := d.Diff(ref, src)
		assert.False(t, res.AttributesChanged)

		all := newDiffer(t, differ.Fields())
		res = all.Diff(ref, src)
		assert.True(t, res.AttributesChanged)
		require.Len(t, res.Changes, 1)
		assert.Equal(t, differ.FieldOccupancy, res.Changes[0].Field)
		assert.Equal(t, "850", res.Changes[0].OldValue)
		assert.Equal(t, "900", res.Changes[0].NewValue)
	})

	t.Run("unknown occupancy on both sides is equal", func(t *testing.T) {
		ref := refFacility(t)
		ref.EstimatedOccupancy = facilities.OccupancyUnknown
		src := srcRecord(t, orb.Point{1748050, 5427050})
		src.Occupancy = facilities.OccupancyUnknown

		all := newDiffer(t, differ.Fields())
		res := all.Diff(ref, src)
		assert.False(t, res.AttributesChanged)
	})
}

func TestDiffGeometryAndAttributes(t *testing.T) {
	ref := refFacility(t)
	src := srcRecord(t, orb.Point{1748200, 5427050})
	src.Name = "Renamed School"
	require.NoError(t, normalize.Source(src))

	res := newDiffer(t, nil).Diff(ref, src)
	assert.True(t, res.GeometryChanged)
	assert.True(t, res.AttributesChanged)
	desc := res.Description()
	assert.Contains(t, desc, "Geom:")
	assert.Contains(t, desc, "Attrs:")
}
