package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// GeoJSONReader reads the reference dataset from a GeoJSON feature
// collection exported from the facilities table.
type GeoJSONReader struct {
	path string
}

// NewGeoJSONReader returns a reader for the file at path.
func NewGeoJSONReader(path string) *GeoJSONReader {
	return &GeoJSONReader{path: path}
}

// TestConnection implements FacilityReader.
func (r *GeoJSONReader) TestConnection(ctx context.Context) error {
	info, err := os.Stat(r.path)
	if err != nil {
		return errors.WrapIO("stat reference file", r.path, err)
	}
	if info.IsDir() {
		return errors.WrapIO("stat reference file", r.path, fmt.Errorf("is a directory"))
	}
	return nil
}

// Load implements FacilityReader.
func (r *GeoJSONReader) Load(ctx context.Context, use facilities.Use) ([]*facilities.Facility, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.WrapIO("read reference file", r.path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.WrapIO("parse reference file", r.path, err)
	}

	facs := make([]*facilities.Facility, 0, len(fc.Features))
	for _, feature := range fc.Features {
		fac, err := facilityFromFeature(feature)
		if err != nil {
			return nil, errors.WrapIO("parse reference file", r.path, err)
		}
		if fac.Use != use {
			continue
		}
		facs = append(facs, fac)
	}
	return facs, nil
}

func facilityFromFeature(feature *geojson.Feature) (*facilities.Facility, error) {
	props := feature.Properties
	id, ok := intProperty(props, "facility_id")
	if !ok {
		return nil, fmt.Errorf("feature missing facility_id")
	}

	fac := &facilities.Facility{
		FacilityID:         id,
		SourceFacilityID:   stringProperty(props, "source_facility_id"),
		Name:               stringProperty(props, "name"),
		SourceName:         stringProperty(props, "source_name"),
		Use:                facilities.Use(stringProperty(props, "use")),
		UseType:            stringProperty(props, "use_type"),
		UseSubtype:         stringProperty(props, "use_subtype"),
		InternalComments:   stringProperty(props, "internal_comments"),
		EstimatedOccupancy: facilities.OccupancyUnknown,
	}
	if occ, ok := intProperty(props, "estimated_occupancy"); ok {
		fac.EstimatedOccupancy = occ
	}
	if internal, ok := props["internal"].(bool); ok {
		fac.Internal = internal
	}
	if raw := stringProperty(props, "last_modified"); raw != "" {
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
			fac.LastModified = ts
		}
	}
	if mp, ok := geometry.MultiPolygonOf(feature.Geometry); ok {
		fac.Geom = mp
	}
	return fac, nil
}

func stringProperty(props geojson.Properties, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProperty(props geojson.Properties, key string) (int, bool) {
	switch v := props[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
