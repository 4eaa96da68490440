// Package app wires the changedetect CLI: configuration loading, logger
// setup, and the cobra command tree.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	changedetect "github.com/facilitymap/changedetect"
	"github.com/facilitymap/changedetect/internal/store"
	"github.com/facilitymap/changedetect/pkg/logging"
	"github.com/facilitymap/changedetect/pkg/sources"
)

// App is the CLI application.
type App struct {
	version string
	config  *Config
	log     zerolog.Logger
	root    *cobra.Command
}

// New builds the application and its command tree.
func New(version string) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	a := &App{
		version: version,
		config:  cfg,
		log:     newLogger(cfg),
	}
	a.root = a.rootCommand()
	return a, nil
}

// Execute runs the CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// ExitOnError prints err and exits non-zero.
func ExitOnError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "changedetect",
		Short:   "Detect changes between the facilities dataset and authority data",
		Long: `changedetect compares the curated national facilities dataset against
freshly fetched authority data (MOE schools or MoH hospitals), matches
records between the two, and reports every facility as added, removed,
updated or unchanged. It writes GeoJSON and GeoPackage report layers and
an append-only audit trail; it never modifies the reference dataset.`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ~/.changedetect.yaml)")
	flags.String("reference-file", "", "reference dataset GeoJSON file")
	flags.String("reference-dsn", "", "reference dataset Postgres DSN")
	flags.String("output-dir", "output", "directory for report files")
	flags.StringSlice("comparison-fields", nil, "attribute fields to compare (default source_id,source_name,source_type)")
	flags.Float64("buffer-distance", 0, "spatial match buffer in metres")
	flags.Float64("fuzzy-threshold", 0, "minimum accepted name-match score")
	flags.Bool("geojson", true, "write GeoJSON report layers")
	flags.Bool("geopackage", true, "write GeoPackage report file")

	for _, name := range []string{
		"config", "reference-file", "reference-dsn", "output-dir",
		"comparison-fields", "buffer-distance", "fuzzy-threshold",
		"geojson", "geopackage",
	} {
		_ = viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	root.AddCommand(a.runCommand("schools", "Detect school changes against the MOE directory",
		func() sources.Source { return sources.NewEducation(&a.log) }))
	root.AddCommand(a.runCommand("hospitals", "Detect hospital changes against the MoH summary",
		func() sources.Source { return sources.NewHealth(&a.log) }))
	return root
}

func (a *App) runCommand(use, short string, newSource func() sources.Source) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Re-read config so bound flags take effect.
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			a.config = cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.run(cmd.Context(), newSource())
		},
	}
}

func (a *App) run(ctx context.Context, source sources.Source) error {
	reader, audit, err := a.backends()
	if err != nil {
		return err
	}

	pipeline, err := changedetect.New(
		changedetect.WithReader(reader),
		changedetect.WithSource(source),
		changedetect.WithAudit(audit),
		changedetect.WithLogger(&a.log),
		changedetect.WithUser(a.config.User),
		changedetect.WithOutputDir(a.config.OutputDir),
		changedetect.WithComparisonFields(a.config.Fields()),
		changedetect.WithBufferDistance(a.config.BufferDistance),
		changedetect.WithFuzzyThreshold(a.config.FuzzyThreshold),
		changedetect.WithDecayDistance(a.config.DecayDistance),
		changedetect.WithGeometryEpsilon(a.config.GeometryEpsilon),
		changedetect.WithPointTolerance(a.config.PointTolerance),
		changedetect.WithGeoJSONOutput(a.config.GeoJSON),
		changedetect.WithGeoPackageOutput(a.config.GeoPackage),
	)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println(result.Summary.String())
	return nil
}

// backends picks the reference reader and audit sink from the configured
// reference source. A database reference also receives the audit rows;
// file-based runs keep them in memory and report through the summary only.
func (a *App) backends() (store.FacilityReader, store.TaskLogger, error) {
	if a.config.ReferenceDSN != "" {
		reader, err := store.NewPostgresReader(a.config.ReferenceDSN)
		if err != nil {
			return nil, nil, err
		}
		return reader, store.NewGormAudit(reader.DB()), nil
	}
	return store.NewGeoJSONReader(a.config.ReferenceFile), store.NewMemoryAudit(), nil
}

func newLogger(cfg *Config) zerolog.Logger {
	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = logging.NewJSON(os.Stderr)
	} else {
		log = logging.NewConsole()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	return log
}
