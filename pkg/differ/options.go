package differ

// Option is a functional option for configuring a Differ.
type Option func(*Differ)

// WithGeometryEpsilon sets the symmetric difference area, in square metres,
// below which two polygon geometries compare equal.
func WithGeometryEpsilon(epsilon float64) Option {
	return func(d *Differ) {
		d.geometryEpsilon = epsilon
	}
}

// WithPointTolerance sets how far, in metres, a point source may sit from
// the facility polygon before the geometry counts as changed.
func WithPointTolerance(metres float64) Option {
	return func(d *Differ) {
		d.pointTolerance = metres
	}
}
