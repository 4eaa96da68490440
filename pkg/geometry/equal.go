package geometry

import (
	"math"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EqualWithin reports whether two polygonal geometries are equal within a
// tolerance: the area of their symmetric difference must be below epsilon
// square metres. This guards against floating-point noise introduced by
// reprojection.
//
// A bounding-box pre-check avoids the boolean operation for geometries that
// are obviously far apart.
func EqualWithin(a, b orb.MultiPolygon, epsilon float64) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	ba, bb := a.Bound(), b.Bound()
	if !ba.Intersects(bb) {
		// Disjoint: symmetric difference is the sum of both areas.
		return planar.Area(a)+planar.Area(b) < epsilon
	}

	area, err := SymmetricDifferenceArea(a, b)
	if err != nil {
		// Degenerate ring input; fall back to comparing total areas and
		// centroid displacement at the same tolerance.
		ca, areaA := planar.CentroidArea(a)
		cb, areaB := planar.CentroidArea(b)
		return math.Abs(areaA-areaB) < epsilon && planar.Distance(ca, cb) < math.Sqrt(epsilon)
	}
	return area < epsilon
}

// SymmetricDifferenceArea computes the area in square metres of the
// symmetric difference (XOR) of two multipolygons.
func SymmetricDifferenceArea(a, b orb.MultiPolygon) (float64, error) {
	xor, err := polygol.XOR(toGeom(a), toGeom(b))
	if err != nil {
		return 0, err
	}
	return planar.Area(fromGeom(xor)), nil
}

// toGeom converts an orb multipolygon into polygol's coordinate layout.
func toGeom(mp orb.MultiPolygon) polygol.Geom {
	g := make([][][][]float64, 0, len(mp))
	for _, poly := range mp {
		rings := make([][][]float64, 0, len(poly))
		for _, ring := range poly {
			pts := make([][]float64, 0, len(ring))
			for _, p := range ring {
				pts = append(pts, []float64{p[0], p[1]})
			}
			rings = append(rings, pts)
		}
		g = append(g, rings)
	}
	return g
}

// fromGeom converts polygol output back into an orb multipolygon.
func fromGeom(g polygol.Geom) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(g))
	for _, rings := range g {
		poly := make(orb.Polygon, 0, len(rings))
		for _, ring := range rings {
			r := make(orb.Ring, 0, len(ring))
			for _, p := range ring {
				if len(p) < 2 {
					continue
				}
				r = append(r, orb.Point{p[0], p[1]})
			}
			poly = append(poly, r)
		}
		mp = append(mp, poly)
	}
	return mp
}
