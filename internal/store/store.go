// Package store provides the reference dataset readers and the append-only
// audit sink backing a detection run.
//
// The reference dataset can be read from a PostGIS facilities table or a
// GeoJSON export of it; both produce the same Facility shape. The audit
// sink records one row per pipeline phase and one result row per run.
package store

import (
	"context"

	"github.com/facilitymap/changedetect/pkg/facilities"
)

// FacilityReader loads the curated reference dataset. The engine never
// writes through this interface; the reference dataset is mutated only by
// humans after reviewing a report.
type FacilityReader interface {
	// TestConnection verifies the backing store is reachable before the
	// run does any work.
	TestConnection(ctx context.Context) error
	// Load returns the reference facilities with the given use.
	Load(ctx context.Context, use facilities.Use) ([]*facilities.Facility, error)
}

// Pipeline phase names recorded in the audit log. The set is fixed.
const (
	TaskTestConnection = "test connection"
	TaskLoadSourceData = "load source data"
	TaskMatch          = "match"
	TaskClassify       = "classify"
	TaskWriteOutput    = "write output"
)

// TaskLogger is the append-only audit sink. Rows are never updated or
// deleted.
type TaskLogger interface {
	// LogTask records one pipeline phase entry.
	LogTask(ctx context.Context, runID, task, level, comment string) error
	// LogResult records the run summary, once, when a run completes.
	LogResult(ctx context.Context, summary facilities.RunSummary) error
}
