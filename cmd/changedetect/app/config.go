package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/matcher"
)

// Config holds the CLI configuration, loaded from flags, environment
// variables, .env files and the config file, in that precedence order.
type Config struct {
	ConfigFile string

	// Reference dataset: exactly one of file path or database DSN.
	ReferenceFile string
	ReferenceDSN  string

	OutputDir string
	User      string

	// Engine tuning.
	ComparisonFields []string
	BufferDistance   float64
	FuzzyThreshold   float64
	DecayDistance    float64
	GeometryEpsilon  float64
	PointTolerance   float64

	// Output toggles.
	GeoJSON    bool
	GeoPackage bool

	// Logging.
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from all sources in order of precedence:
// command-line flags (bound by cobra), environment variables, .env files,
// the config file (~/.changedetect.yaml), then defaults.
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHANGEDETECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".changedetect")
	}
	// Missing config file is fine; every knob has a default.
	_ = viper.ReadInConfig()

	cfg := &Config{
		ConfigFile: viper.ConfigFileUsed(),

		ReferenceFile: viper.GetString("reference_file"),
		ReferenceDSN:  viper.GetString("reference_dsn"),
		OutputDir:     viper.GetString("output_dir"),
		User:          viper.GetString("user"),

		ComparisonFields: viper.GetStringSlice("comparison_fields"),
		BufferDistance:   viper.GetFloat64("buffer_distance"),
		FuzzyThreshold:   viper.GetFloat64("fuzzy_threshold"),
		DecayDistance:    viper.GetFloat64("decay_distance"),
		GeometryEpsilon:  viper.GetFloat64("geometry_epsilon"),
		PointTolerance:   viper.GetFloat64("point_tolerance"),

		GeoJSON:    viper.GetBool("geojson"),
		GeoPackage: viper.GetBool("geopackage"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
	}
	if cfg.User == "" {
		cfg.User = osUser()
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("output_dir", "output")
	viper.SetDefault("buffer_distance", matcher.DefaultBufferDistance)
	viper.SetDefault("fuzzy_threshold", matcher.DefaultFuzzyThreshold)
	viper.SetDefault("decay_distance", matcher.DefaultDecayDistance)
	viper.SetDefault("geometry_epsilon", differ.DefaultGeometryEpsilon)
	viper.SetDefault("point_tolerance", differ.DefaultPointTolerance)
	viper.SetDefault("geojson", true)
	viper.SetDefault("geopackage", true)
}

// Validate fails fast on configuration the pipeline would reject anyway,
// so the error surfaces before any network or database work.
func (c *Config) Validate() error {
	if c.ReferenceFile == "" && c.ReferenceDSN == "" {
		return errors.NewConfigError("config",
			"a reference source is required: set reference_file or reference_dsn", nil)
	}
	if c.ReferenceFile != "" && c.ReferenceDSN != "" {
		return errors.NewConfigError("config",
			"reference_file and reference_dsn are mutually exclusive", nil)
	}
	for _, field := range c.ComparisonFields {
		if !validField(field) {
			return errors.NewConfigError("config",
				"unknown comparison field "+field, nil)
		}
	}
	if c.BufferDistance <= 0 || c.DecayDistance <= 0 || c.GeometryEpsilon <= 0 || c.PointTolerance <= 0 {
		return errors.NewConfigError("config",
			"distances and tolerances must be positive", nil)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return errors.NewConfigError("config",
			"fuzzy_threshold must be in (0, 1]", nil)
	}
	return nil
}

// Fields returns the configured comparison fields, or nil for the default
// set.
func (c *Config) Fields() []differ.Field {
	if len(c.ComparisonFields) == 0 {
		return nil
	}
	fields := make([]differ.Field, len(c.ComparisonFields))
	for i, f := range c.ComparisonFields {
		fields[i] = differ.Field(f)
	}
	return fields
}

func validField(name string) bool {
	for _, f := range differ.Fields() {
		if string(f) == name {
			return true
		}
	}
	return false
}

func loadEnvFiles() {
	// .env.local overrides .env.
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func osUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "changedetect"
}
