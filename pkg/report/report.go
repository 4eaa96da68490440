// Package report turns classified change records into named output layers
// for packaging into GeoJSON files or a GeoPackage container.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// Layer names. The facilities layer carries the reference dataset annotated
// with change metadata; the source layers carry the fetched authority
// records split by outcome.
const (
	LayerFacilities     = "facilities_updates"
	LayerSourceAll      = "source_all"
	LayerSourceFiltered = "source_filtered"
	LayerSourceNew      = "source_new"
)

// Layer is one named feature collection of the report.
type Layer struct {
	Name       string
	Collection *geojson.FeatureCollection
	SRID       int
}

// Report is the full output of one detection run.
type Report struct {
	Authority string
	Layers    []Layer
	Summary   facilities.RunSummary
}

// Build assembles the output layers from a classified record stream.
// Internal facilities never appear in the published facilities layer; they
// are curation-only records.
func Build(records []facilities.ChangeRecord, summary facilities.RunSummary, authority string) *Report {
	pub := geojson.NewFeatureCollection()
	all := geojson.NewFeatureCollection()
	filtered := geojson.NewFeatureCollection()
	added := geojson.NewFeatureCollection()

	for i := range records {
		rec := &records[i]

		if rec.Facility != nil && !rec.Facility.Internal {
			pub.Append(facilityFeature(rec))
		}
		if rec.Source == nil {
			continue
		}
		f := sourceFeature(rec)
		all.Append(f)
		switch rec.Action {
		case facilities.ChangeSkipped:
			filtered.Append(f)
		case facilities.ChangeAdded:
			added.Append(f)
		}
	}

	return &Report{
		Authority: authority,
		Summary:   summary,
		Layers: []Layer{
			{Name: LayerFacilities, Collection: pub, SRID: geometry.SRID},
			{Name: authority + "_" + LayerSourceAll, Collection: all, SRID: geometry.SRID},
			{Name: authority + "_" + LayerSourceFiltered, Collection: filtered, SRID: geometry.SRID},
			{Name: authority + "_" + LayerSourceNew, Collection: added, SRID: geometry.SRID},
		},
	}
}

// WriteGeoJSON writes one <layer>.geojson file per layer into dir, plus a
// summary.json with the run counts. The directory is created if missing.
func (r *Report) WriteGeoJSON(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIO("create output directory", dir, err)
	}
	for _, layer := range r.Layers {
		data, err := json.MarshalIndent(layer.Collection, "", "  ")
		if err != nil {
			return errors.WrapIO("encode layer", layer.Name, err)
		}
		path := filepath.Join(dir, layer.Name+".geojson")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.WrapIO("write layer", path, err)
		}
	}
	data, err := json.MarshalIndent(r.Summary, "", "  ")
	if err != nil {
		return errors.WrapIO("encode summary", "summary.json", err)
	}
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO("write summary", path, err)
	}
	return nil
}

func facilityFeature(rec *facilities.ChangeRecord) *geojson.Feature {
	fac := rec.Facility
	f := geojson.NewFeature(orb.Geometry(fac.Geom))
	f.ID = fac.FacilityID
	f.Properties = geojson.Properties{
		"facility_id":        fac.FacilityID,
		"source_facility_id": fac.SourceFacilityID,
		"name":               fac.Name,
		"source_name":        fac.SourceName,
		"use":                string(fac.Use),
		"use_type":           fac.UseType,
		"use_subtype":        fac.UseSubtype,
		"last_modified":      fac.LastModified,
		"change_action":      string(rec.Action),
		"change_description": rec.Description,
		"in_published":       rec.InPublished,
	}
	if fac.EstimatedOccupancy != facilities.OccupancyUnknown {
		f.Properties["estimated_occupancy"] = fac.EstimatedOccupancy
	}
	if rec.SuggestedSQL != "" {
		f.Properties["sql"] = rec.SuggestedSQL
	}
	return f
}

func sourceFeature(rec *facilities.ChangeRecord) *geojson.Feature {
	src := rec.Source
	geom := src.Geom
	if geom == nil {
		// Skipped records may carry no geometry at all; emit a null
		// geometry feature so the record still appears in the layer.
		geom = orb.Point{}
	}
	f := geojson.NewFeature(geom)
	f.Properties = geojson.Properties{
		"source_id":          src.SourceID,
		"name":               src.Name,
		"use_type":           src.UseType,
		"authority":          string(src.Authority),
		"change_action":      string(rec.Action),
		"change_description": rec.Description,
		"in_published":       rec.InPublished,
	}
	if src.Occupancy != facilities.OccupancyUnknown {
		f.Properties["occupancy"] = src.Occupancy
	}
	if src.Ignored {
		f.Properties["ignored_reason"] = src.IgnoredReason
	}
	return f
}

// LayerFor returns the layer with the given name.
func (r *Report) LayerFor(name string) (*Layer, error) {
	for i := range r.Layers {
		if r.Layers[i].Name == name {
			return &r.Layers[i], nil
		}
	}
	return nil, fmt.Errorf("layer %q: %w", name, errors.ErrNotFound)
}
