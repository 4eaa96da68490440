// Package facilities defines the core domain types for facilities change
// detection: the curated reference dataset records, the transient records
// fetched from external authorities, and the classification results produced
// by a detection run.
package facilities

import (
	"time"

	"github.com/paulmach/orb"
)

// OccupancyUnknown is the sentinel for an estimated occupancy that the
// source did not report. Occupancy values are otherwise non-negative.
const OccupancyUnknown = -1

// Use classifies the broad activity of a facility.
type Use string

// Facility uses present in the reference dataset.
const (
	UseSchool   Use = "School"
	UseHospital Use = "Hospital"
)

// Facility is one record of the curated reference dataset. Geometries are
// multi-polygons in the canonical projected CRS (NZTM, EPSG:2193).
//
// FacilityID is the stable internal key: assigned once, never reused. The
// engine treats facilities as read-only input; updates happen only after a
// human reviews the emitted change report.
//
// Internal is modeled as a plain boolean defaulting to false. Inputs which
// omit the flag load as false; there is no null state inside the engine.
type Facility struct {
	FacilityID         int              `json:"facility_id" gorm:"column:facility_id;primaryKey"`
	SourceFacilityID   string           `json:"source_facility_id" gorm:"column:source_facility_id"`
	Name               string           `json:"name" gorm:"column:name"`
	SourceName         string           `json:"source_name" gorm:"column:source_name"`
	Use                Use              `json:"use" gorm:"column:use"`
	UseType            string           `json:"use_type" gorm:"column:use_type"`
	UseSubtype         string           `json:"use_subtype" gorm:"column:use_subtype"`
	EstimatedOccupancy int              `json:"estimated_occupancy" gorm:"column:estimated_occupancy"`
	LastModified       time.Time        `json:"last_modified" gorm:"column:last_modified"`
	Internal           bool             `json:"internal" gorm:"column:internal"`
	InternalComments   string           `json:"internal_comments" gorm:"column:internal_comments"`
	Geom               orb.MultiPolygon `json:"-" gorm:"-"`

	// Comparison keys filled in by normalization. Lowercased, whitespace
	// collapsed, diacritics stripped. Not persisted.
	NameKey       string `json:"-" gorm:"-"`
	SourceNameKey string `json:"-" gorm:"-"`
}

// HasSourceID reports whether the facility carries an external identifier
// from its authoritative source.
func (f *Facility) HasSourceID() bool {
	return f.SourceFacilityID != ""
}

// Authority identifies which external authority a source record came from.
type Authority string

// Supported authorities.
const (
	AuthorityEducation Authority = "education"
	AuthorityHealth    Authority = "health"
)

// Authority returns the authority responsible for facilities of this use.
func (u Use) Authority() Authority {
	if u == UseHospital {
		return AuthorityHealth
	}
	return AuthorityEducation
}

// SourceRecord is one record fetched from an external authority, normalized
// into a shared shape at the adapter boundary. Records are constructed fresh
// each run and discarded afterwards.
//
// Geom is a Point or Polygon in the canonical CRS after normalization, or
// nil when the authority reported no usable location.
type SourceRecord struct {
	SourceID  string       `json:"source_id"`
	Name      string       `json:"name"`
	UseType   string       `json:"use_type"`
	Authority Authority    `json:"authority"`
	Occupancy int          `json:"occupancy"`
	Geom      orb.Geometry `json:"-"`

	// Authority-specific extras, carried through to the output layers.
	Address  string `json:"address,omitempty"`
	Suburb   string `json:"suburb,omitempty"`
	City     string `json:"city,omitempty"`
	RollDate string `json:"roll_date,omitempty"`

	// Coordinates exactly as fetched, before reprojection.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Ignored marks records excluded from matching by an authority filter
	// (for example proposed schools). They are reported, not dropped.
	Ignored       bool   `json:"ignored,omitempty"`
	IgnoredReason string `json:"ignored_reason,omitempty"`

	// NameKey is the normalized comparison form of Name.
	NameKey string `json:"-"`
}

// HasSourceID reports whether the record carries an external identifier.
func (s *SourceRecord) HasSourceID() bool {
	return s.SourceID != ""
}
