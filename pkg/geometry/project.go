// Package geometry provides the geometric primitives of change detection:
// reprojection into the canonical CRS, representative points, distances, and
// tolerant geometry equality.
//
// The canonical CRS is NZTM2000 (EPSG:2193), a transverse Mercator
// projection on GRS80 with units in metres, matching the reference dataset.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// NZTM2000 projection parameters (LINZ standard, GRS80 ellipsoid).
const (
	semiMajorAxis     = 6378137.0
	inverseFlattening = 298.257222101
	originLatitude    = 0.0
	originLongitude   = 173.0
	scaleFactor       = 0.9996
	falseEasting      = 1600000.0
	falseNorthing     = 10000000.0
)

// SRID of the canonical CRS.
const SRID = 2193

// WGS84ToNZTM is an orb projection converting geographic WGS84 coordinates
// (lon, lat in degrees) to NZTM2000 easting/northing in metres.
var WGS84ToNZTM orb.Projection = forward

// ToNZTM reprojects a WGS84 geometry into the canonical CRS.
func ToNZTM(g orb.Geometry) orb.Geometry {
	return project.Geometry(g, WGS84ToNZTM)
}

// PointToNZTM converts a WGS84 longitude/latitude pair to an NZTM point.
func PointToNZTM(lon, lat float64) orb.Point {
	return forward(orb.Point{lon, lat})
}

// forward is the standard transverse Mercator forward computation
// (Redfearn-style series, sub-millimetre over the NZTM extent).
func forward(p orb.Point) orb.Point {
	lon := p[0] * math.Pi / 180
	lat := p[1] * math.Pi / 180
	lon0 := originLongitude * math.Pi / 180

	f := 1 / inverseFlattening
	a := semiMajorAxis
	e2 := f * (2 - f)
	e4 := e2 * e2
	e6 := e4 * e2
	ep2 := e2 / (1 - e2)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	tanLat := math.Tan(lat)

	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	t := tanLat * tanLat
	c := ep2 * cosLat * cosLat
	A := (lon - lon0) * cosLat

	// Meridian arc length from the equator.
	m := a * ((1-e2/4-3*e4/64-5*e6/256)*lat -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
		(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
		(35*e6/3072)*math.Sin(6*lat))

	A2 := A * A
	A3 := A2 * A
	A4 := A3 * A
	A5 := A4 * A
	A6 := A5 * A

	easting := falseEasting + scaleFactor*n*(A+
		(1-t+c)*A3/6+
		(5-18*t+t*t+72*c-58*ep2)*A5/120)

	northing := falseNorthing + scaleFactor*(m+
		n*tanLat*(A2/2+
			(5-t+9*c+4*c*c)*A4/24+
			(61-58*t+t*t+600*c-330*ep2)*A6/720))

	return orb.Point{easting, northing}
}
