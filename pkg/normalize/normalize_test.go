package normalize_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/normalize"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Example School", "example school"},
		{"trims and collapses whitespace", "  Example   School \t", "example school"},
		{"strips diacritics", "Pāpāmoa Kāhui Ako", "papamoa kahui ako"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.Key(tt.in))
		})
	}
}

func TestKeyIdempotent(t *testing.T) {
	inputs := []string{"Example School", "  Te Kura o Ōtaki  ", "WEIRD   spacing"}
	for _, in := range inputs {
		once := normalize.Key(in)
		assert.Equal(t, once, normalize.Key(once))
	}
}

func TestOccupancy(t *testing.T) {
	assert.Equal(t, 120, normalize.Occupancy(120))
	assert.Equal(t, 0, normalize.Occupancy(0))
	assert.Equal(t, facilities.OccupancyUnknown, normalize.Occupancy(-3))
}

func nztmSquare() orb.MultiPolygon {
	return orb.MultiPolygon{orb.Polygon{orb.Ring{
		{1748000, 5427000},
		{1748100, 5427000},
		{1748100, 5427100},
		{1748000, 5427100},
		{1748000, 5427000},
	}}}
}

func TestFacility(t *testing.T) {
	t.Run("fills comparison keys", func(t *testing.T) {
		f := &facilities.Facility{
			FacilityID: 1,
			Name:       "  Example School ",
			SourceName: "Example  School",
			Geom:       nztmSquare(),
		}
		require.NoError(t, normalize.Facility(f))
		assert.Equal(t, "Example School", f.Name)
		assert.Equal(t, "example school", f.NameKey)
		assert.Equal(t, "example school", f.SourceNameKey)
	})

	t.Run("missing geometry is malformed", func(t *testing.T) {
		f := &facilities.Facility{FacilityID: 2, Name: "No Geom"}
		err := normalize.Facility(f)
		require.Error(t, err)
		assert.True(t, errors.IsMalformedGeometry(err))
	})
}

func TestSource(t *testing.T) {
	lat, lon := -41.2889, 174.7772

	t.Run("builds point from coordinates", func(t *testing.T) {
		s := &facilities.SourceRecord{
			SourceID:  "174",
			Name:      "Example School",
			Latitude:  &lat,
			Longitude: &lon,
		}
		require.NoError(t, normalize.Source(s))
		p, ok := s.Geom.(orb.Point)
		require.True(t, ok)
		assert.Greater(t, p[0], 1_000_000.0) // projected easting, not degrees
	})

	t.Run("reprojects geographic geometry", func(t *testing.T) {
		s := &facilities.SourceRecord{
			SourceID: "175",
			Name:     "Somewhere",
			Geom:     orb.Point{174.7772, -41.2889},
		}
		require.NoError(t, normalize.Source(s))
		p := s.Geom.(orb.Point)
		assert.Greater(t, p[0], 1_000_000.0)
	})

	t.Run("idempotent", func(t *testing.T) {
		s := &facilities.SourceRecord{
			SourceID:  "174",
			Name:      "  Pāpāmoa  School ",
			Latitude:  &lat,
			Longitude: &lon,
			Occupancy: 50,
		}
		require.NoError(t, normalize.Source(s))
		first := *s
		require.NoError(t, normalize.Source(s))
		assert.Equal(t, first, *s)
	})

	t.Run("no geometry and no coordinates is malformed", func(t *testing.T) {
		s := &facilities.SourceRecord{SourceID: "9", Name: "Lost"}
		err := normalize.Source(s)
		require.Error(t, err)
		assert.True(t, errors.IsMalformedGeometry(err))
	})

	t.Run("unsupported geometry type is malformed", func(t *testing.T) {
		s := &facilities.SourceRecord{
			SourceID: "10",
			Name:     "Line",
			Geom:     orb.LineString{{0, 0}, {1, 1}},
		}
		err := normalize.Source(s)
		require.Error(t, err)
		assert.True(t, errors.IsMalformedGeometry(err))
	})
}
