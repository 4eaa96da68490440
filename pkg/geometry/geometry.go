package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RepresentativePoint returns the point used for spatial matching: the point
// itself for point geometries, the area-weighted centroid for polygons.
// The second return is false when the geometry is nil or empty.
func RepresentativePoint(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return geom, true
	case orb.Polygon:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return orb.Point{}, false
		}
		c, _ := planar.CentroidArea(geom)
		return c, true
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return orb.Point{}, false
		}
		c, _ := planar.CentroidArea(geom)
		return c, true
	case nil:
		return orb.Point{}, false
	default:
		return orb.Point{}, false
	}
}

// Contains reports whether a point lies inside a multipolygon.
func Contains(mp orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(mp, p)
}

// DistanceToPolygon returns the planar distance in metres from a point to
// the nearest edge of a multipolygon, or 0 when the point is inside it.
// An empty multipolygon is infinitely far from everything; returning 0
// would make it contain every point.
func DistanceToPolygon(mp orb.MultiPolygon, p orb.Point) float64 {
	if IsEmpty(mp) {
		return math.Inf(1)
	}
	if planar.MultiPolygonContains(mp, p) {
		return 0
	}
	min := math.Inf(1)
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) == 0 {
				continue
			}
			d := planar.DistanceFrom(orb.LineString(ring), p)
			if d < min {
				min = d
			}
		}
	}
	return min
}

// Distance returns the planar distance between two points in metres.
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// MultiPolygonOf normalizes a polygonal geometry to a multipolygon.
// Returns false for non-polygonal or empty geometries.
func MultiPolygonOf(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return nil, false
		}
		return orb.MultiPolygon{geom}, true
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return nil, false
		}
		return geom, true
	default:
		return nil, false
	}
}

// IsEmpty reports whether a geometry is nil or carries no coordinates.
func IsEmpty(g orb.Geometry) bool {
	switch geom := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.Polygon:
		return len(geom) == 0 || len(geom[0]) == 0
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return true
		}
		for _, poly := range geom {
			if len(poly) > 0 && len(poly[0]) > 0 {
				return false
			}
		}
		return true
	default:
		return g.Bound().IsEmpty()
	}
}
