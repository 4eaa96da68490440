package store

import (
	"context"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// facilitiesQuery mirrors the curated facilities table. The shape column is
// PostGIS geometry in EPSG:2193, fetched as GeoJSON so decoding stays on
// one code path with the file reader.
const facilitiesQuery = `
SELECT facility_id, source_facility_id, name, source_name, use, use_type,
       use_subtype, estimated_occupancy, last_modified, internal,
       internal_comments, ST_AsGeoJSON(shape) AS shape
FROM facilities
WHERE use = ?
ORDER BY facility_id`

// PostgresReader reads the reference dataset from the facilities database.
type PostgresReader struct {
	db *gorm.DB
}

// NewPostgresReader opens a connection to the facilities database.
func NewPostgresReader(dsn string) (*PostgresReader, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.NewConfigError("store", "open facilities database", err)
	}
	return &PostgresReader{db: db}, nil
}

// NewPostgresReaderFromDB wraps an existing connection, for tests.
func NewPostgresReaderFromDB(db *gorm.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

// DB exposes the underlying connection so the audit sink can share it.
func (r *PostgresReader) DB() *gorm.DB {
	return r.db
}

// TestConnection implements FacilityReader.
func (r *PostgresReader) TestConnection(ctx context.Context) error {
	sqlDB, err := r.db.WithContext(ctx).DB()
	if err != nil {
		return errors.WrapIO("facilities database", "connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.WrapIO("facilities database", "ping", err)
	}
	return nil
}

type facilityRow struct {
	FacilityID         int        `gorm:"column:facility_id"`
	SourceFacilityID   *string    `gorm:"column:source_facility_id"`
	Name               string     `gorm:"column:name"`
	SourceName         string     `gorm:"column:source_name"`
	Use                string     `gorm:"column:use"`
	UseType            string     `gorm:"column:use_type"`
	UseSubtype         string     `gorm:"column:use_subtype"`
	EstimatedOccupancy *int       `gorm:"column:estimated_occupancy"`
	LastModified       *time.Time `gorm:"column:last_modified"`
	Internal           *bool      `gorm:"column:internal"`
	InternalComments   string     `gorm:"column:internal_comments"`
	Shape              string     `gorm:"column:shape"`
}

// Load implements FacilityReader.
func (r *PostgresReader) Load(ctx context.Context, use facilities.Use) ([]*facilities.Facility, error) {
	var rows []facilityRow
	if err := r.db.WithContext(ctx).Raw(facilitiesQuery, string(use)).Scan(&rows).Error; err != nil {
		return nil, errors.WrapIO("facilities database", "load facilities", err)
	}

	facs := make([]*facilities.Facility, 0, len(rows))
	for _, row := range rows {
		fac, err := row.facility()
		if err != nil {
			return nil, err
		}
		facs = append(facs, fac)
	}
	return facs, nil
}

func (row facilityRow) facility() (*facilities.Facility, error) {
	fac := &facilities.Facility{
		FacilityID:         row.FacilityID,
		Name:               row.Name,
		SourceName:         row.SourceName,
		Use:                facilities.Use(row.Use),
		UseType:            row.UseType,
		UseSubtype:         row.UseSubtype,
		InternalComments:   row.InternalComments,
		EstimatedOccupancy: facilities.OccupancyUnknown,
	}
	if row.SourceFacilityID != nil {
		fac.SourceFacilityID = *row.SourceFacilityID
	}
	if row.EstimatedOccupancy != nil {
		fac.EstimatedOccupancy = *row.EstimatedOccupancy
	}
	if row.LastModified != nil {
		fac.LastModified = *row.LastModified
	}
	// A NULL internal flag reads as false: the column predates the
	// NOT NULL constraint and legacy rows left it unset.
	if row.Internal != nil {
		fac.Internal = *row.Internal
	}

	if row.Shape != "" {
		geom, err := geojson.UnmarshalGeometry([]byte(row.Shape))
		if err != nil {
			return nil, errors.NewMalformedGeometryError(strconv.Itoa(row.FacilityID), err.Error())
		}
		if mp, ok := geometry.MultiPolygonOf(geom.Geometry()); ok {
			fac.Geom = mp
		}
	}
	return fac, nil
}
