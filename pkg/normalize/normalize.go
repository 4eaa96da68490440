// Package normalize canonicalizes records before comparison: geometries into
// the canonical CRS and expected dimensionality, comparison strings into a
// folded key form, occupancy into a non-negative integer or the unknown
// sentinel.
//
// Normalization is idempotent: applying it twice yields the same record.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// stripDiacritics decomposes to NFD, drops combining marks, and recomposes.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key folds a display string into its comparison form: diacritics stripped,
// lowercased, leading/trailing whitespace trimmed and runs of inner
// whitespace collapsed to single spaces. Display fields keep their original
// casing; only the derived keys are folded.
func Key(s string) string {
	folded, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Occupancy coerces an occupancy estimate to a non-negative integer,
// returning the unknown sentinel for negative values.
func Occupancy(v int) int {
	if v < 0 {
		return facilities.OccupancyUnknown
	}
	return v
}

// Facility canonicalizes a reference record in place. The geometry must be
// a non-empty multipolygon; anything else is a MalformedGeometryError and
// the record is excluded from matching.
func Facility(f *facilities.Facility) error {
	if geometry.IsEmpty(f.Geom) {
		return errors.NewMalformedGeometryError(strconv.Itoa(f.FacilityID), "empty or missing multipolygon")
	}
	f.Name = strings.TrimSpace(f.Name)
	f.SourceName = strings.TrimSpace(f.SourceName)
	f.SourceFacilityID = strings.TrimSpace(f.SourceFacilityID)
	f.NameKey = Key(f.Name)
	f.SourceNameKey = Key(f.SourceName)
	f.EstimatedOccupancy = Occupancy(f.EstimatedOccupancy)
	return nil
}

// Source canonicalizes a source record in place.
//
// Geometry handling: a record fetched with geographic coordinates but no
// geometry gets an NZTM point built from them; a geometry whose coordinates
// still look geographic (within the lon/lat value range) is reprojected.
// Already-projected geometries pass through untouched, which is what makes
// a second Normalize a no-op. A record with neither usable geometry nor
// coordinates is malformed.
func Source(s *facilities.SourceRecord) error {
	s.SourceID = strings.TrimSpace(s.SourceID)
	s.Name = strings.TrimSpace(s.Name)
	s.UseType = strings.TrimSpace(s.UseType)
	s.NameKey = Key(s.Name)
	s.Occupancy = Occupancy(s.Occupancy)

	if geometry.IsEmpty(s.Geom) {
		if s.Latitude == nil || s.Longitude == nil {
			return errors.NewMalformedGeometryError(s.SourceID, "no geometry or coordinates")
		}
		s.Geom = geometry.PointToNZTM(*s.Longitude, *s.Latitude)
		return nil
	}

	switch s.Geom.(type) {
	case orb.Point, orb.Polygon, orb.MultiPolygon:
		// Expected dimensionalities.
	default:
		return errors.NewMalformedGeometryError(s.SourceID, "geometry is not a point or polygon")
	}

	if looksGeographic(s.Geom.Bound()) {
		s.Geom = geometry.ToNZTM(s.Geom)
	}
	return nil
}

// looksGeographic reports whether all coordinates fall within the lon/lat
// value range. NZTM coordinates are six to seven digit metre values, so the
// two ranges cannot overlap.
func looksGeographic(b orb.Bound) bool {
	return b.Min[0] >= -180 && b.Max[0] <= 180 && b.Min[1] >= -90 && b.Max[1] <= 90
}
