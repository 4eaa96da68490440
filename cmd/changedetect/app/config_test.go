package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/errors"
)

func validConfig() *Config {
	return &Config{
		ReferenceFile:   "facilities.geojson",
		OutputDir:       "output",
		BufferDistance:  30,
		FuzzyThreshold:  0.85,
		DecayDistance:   350,
		GeometryEpsilon: 1,
		PointTolerance:  30,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("no reference source", func(t *testing.T) {
		cfg := validConfig()
		cfg.ReferenceFile = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("both reference sources", func(t *testing.T) {
		cfg := validConfig()
		cfg.ReferenceDSN = "postgres://localhost/facilities"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown comparison field", func(t *testing.T) {
		cfg := validConfig()
		cfg.ComparisonFields = []string{"source_name", "colour"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("non-positive tolerance", func(t *testing.T) {
		cfg := validConfig()
		cfg.GeometryEpsilon = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("threshold above one", func(t *testing.T) {
		cfg := validConfig()
		cfg.FuzzyThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigFields(t *testing.T) {
	cfg := validConfig()
	assert.Nil(t, cfg.Fields(), "empty selection falls back to defaults")

	cfg.ComparisonFields = []string{"source_name", "occupancy"}
	assert.Equal(t, []differ.Field{differ.FieldSourceName, differ.FieldOccupancy}, cfg.Fields())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("USER", "tester")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.BufferDistance)
	assert.Equal(t, 0.85, cfg.FuzzyThreshold)
	assert.Equal(t, 350.0, cfg.DecayDistance)
	assert.Equal(t, 1.0, cfg.GeometryEpsilon)
	assert.True(t, cfg.GeoJSON)
	assert.True(t, cfg.GeoPackage)
	assert.Equal(t, "tester", cfg.User)
}
