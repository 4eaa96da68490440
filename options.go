package changedetect

import (
	"github.com/rs/zerolog"

	"github.com/facilitymap/changedetect/internal/store"
	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/matcher"
	"github.com/facilitymap/changedetect/pkg/sources"
)

// Option configures a Pipeline.
type Option func(*config) error

type config struct {
	reader store.FacilityReader
	source sources.Source
	audit  store.TaskLogger
	log    *zerolog.Logger

	fields          []differ.Field
	bufferDistance  float64
	fuzzyThreshold  float64
	decayDistance   float64
	geometryEpsilon float64
	pointTolerance  float64

	user      string
	outputDir string
	geoJSON   bool
	gpkg      bool
}

// WithReader sets the reference dataset reader. Required.
func WithReader(reader store.FacilityReader) Option {
	return func(c *config) error {
		if reader == nil {
			return errors.NewConfigError("pipeline", "reader must not be nil", nil)
		}
		c.reader = reader
		return nil
	}
}

// WithSource sets the authority source adapter. Required.
func WithSource(source sources.Source) Option {
	return func(c *config) error {
		if source == nil {
			return errors.NewConfigError("pipeline", "source must not be nil", nil)
		}
		c.source = source
		return nil
	}
}

// WithAudit sets the audit sink. Defaults to an in-memory sink.
func WithAudit(audit store.TaskLogger) Option {
	return func(c *config) error {
		if audit == nil {
			return errors.NewConfigError("pipeline", "audit sink must not be nil", nil)
		}
		c.audit = audit
		return nil
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zerolog.Logger) Option {
	return func(c *config) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// WithComparisonFields selects which attributes the differ compares.
// Defaults to differ.DefaultFields.
func WithComparisonFields(fields []differ.Field) Option {
	return func(c *config) error {
		c.fields = fields
		return nil
	}
}

// WithBufferDistance sets the spatial match buffer in metres.
func WithBufferDistance(metres float64) Option {
	return func(c *config) error {
		if metres <= 0 {
			return errors.NewConfigError("pipeline", "buffer distance must be positive", nil)
		}
		c.bufferDistance = metres
		return nil
	}
}

// WithFuzzyThreshold sets the minimum accepted name-match score.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *config) error {
		if threshold <= 0 || threshold > 1 {
			return errors.NewConfigError("pipeline", "fuzzy threshold must be in (0, 1]", nil)
		}
		c.fuzzyThreshold = threshold
		return nil
	}
}

// WithDecayDistance sets the distance in metres at which name-match
// proximity weighting falls to 1/e.
func WithDecayDistance(metres float64) Option {
	return func(c *config) error {
		if metres <= 0 {
			return errors.NewConfigError("pipeline", "decay distance must be positive", nil)
		}
		c.decayDistance = metres
		return nil
	}
}

// WithGeometryEpsilon sets the tolerated symmetric difference between
// polygon geometries, in square metres.
func WithGeometryEpsilon(epsilon float64) Option {
	return func(c *config) error {
		if epsilon <= 0 {
			return errors.NewConfigError("pipeline", "geometry epsilon must be positive", nil)
		}
		c.geometryEpsilon = epsilon
		return nil
	}
}

// WithPointTolerance sets how far a point source may sit from its facility
// polygon before the geometry counts as changed, in metres.
func WithPointTolerance(metres float64) Option {
	return func(c *config) error {
		if metres <= 0 {
			return errors.NewConfigError("pipeline", "point tolerance must be positive", nil)
		}
		c.pointTolerance = metres
		return nil
	}
}

// WithUser records the operator name on the run summary.
func WithUser(user string) Option {
	return func(c *config) error {
		c.user = user
		return nil
	}
}

// WithOutputDir sets where report files are written. Empty disables file
// output.
func WithOutputDir(dir string) Option {
	return func(c *config) error {
		c.outputDir = dir
		return nil
	}
}

// WithGeoJSONOutput toggles writing per-layer GeoJSON files.
func WithGeoJSONOutput(enabled bool) Option {
	return func(c *config) error {
		c.geoJSON = enabled
		return nil
	}
}

// WithGeoPackageOutput toggles writing the GeoPackage container.
func WithGeoPackageOutput(enabled bool) Option {
	return func(c *config) error {
		c.gpkg = enabled
		return nil
	}
}

func defaultConfig() *config {
	return &config{
		bufferDistance:  matcher.DefaultBufferDistance,
		fuzzyThreshold:  matcher.DefaultFuzzyThreshold,
		decayDistance:   matcher.DefaultDecayDistance,
		geometryEpsilon: differ.DefaultGeometryEpsilon,
		pointTolerance:  differ.DefaultPointTolerance,
		geoJSON:         true,
		gpkg:            true,
	}
}
