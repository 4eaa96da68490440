package report_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/report"
)

func sampleRecords() []facilities.ChangeRecord {
	square := orb.MultiPolygon{orb.Polygon{orb.Ring{
		{1748000, 5427000},
		{1748100, 5427000},
		{1748100, 5427100},
		{1748000, 5427100},
		{1748000, 5427000},
	}}}
	public := &facilities.Facility{
		FacilityID: 1, SourceFacilityID: "174",
		Name: "Example School", SourceName: "Example School",
		Use: facilities.UseSchool, UseType: "Secondary (Year 9-15)",
		EstimatedOccupancy: 500, Geom: square,
	}
	internal := &facilities.Facility{
		FacilityID: 2, Name: "Defence Facility",
		Use: facilities.UseSchool, Internal: true, Geom: square,
		EstimatedOccupancy: facilities.OccupancyUnknown,
	}
	matched := &facilities.SourceRecord{
		SourceID: "174", Name: "Example School",
		Authority: facilities.AuthorityEducation,
		Occupancy: 500, Geom: orb.Point{1748050, 5427050},
	}
	added := &facilities.SourceRecord{
		SourceID: "999", Name: "Brand New School",
		Authority: facilities.AuthorityEducation,
		Occupancy: 120, Geom: orb.Point{1800000, 5600000},
	}
	skipped := &facilities.SourceRecord{
		SourceID: "300", Name: "Proposed School",
		Authority: facilities.AuthorityEducation,
		Occupancy: facilities.OccupancyUnknown,
		Ignored:   true, IgnoredReason: "proposed school",
	}

	return []facilities.ChangeRecord{
		{Facility: public, Source: matched, InPublished: true, Action: facilities.ChangeUnchanged},
		{Facility: internal, InPublished: true, Action: facilities.ChangeRemoved, Description: "not present in source data"},
		{Source: added, Action: facilities.ChangeAdded, Description: "not present in published dataset"},
		{Source: skipped, Action: facilities.ChangeSkipped, Description: "proposed school"},
	}
}

func TestBuildLayers(t *testing.T) {
	summary := facilities.RunSummary{RunID: "run-1", Added: 1, Removed: 1, Unchanged: 1, Skipped: 1}
	r := report.Build(sampleRecords(), summary, "education")

	require.Len(t, r.Layers, 4)

	pub, err := r.LayerFor(report.LayerFacilities)
	require.NoError(t, err)
	// The internal facility never reaches the published layer.
	require.Len(t, pub.Collection.Features, 1)
	props := pub.Collection.Features[0].Properties
	assert.Equal(t, "Example School", props["name"])
	assert.Equal(t, "unchanged", props["change_action"])
	assert.Equal(t, true, props["in_published"])
	assert.Equal(t, 2193, pub.SRID)

	all, err := r.LayerFor("education_" + report.LayerSourceAll)
	require.NoError(t, err)
	assert.Len(t, all.Collection.Features, 3)

	filtered, err := r.LayerFor("education_" + report.LayerSourceFiltered)
	require.NoError(t, err)
	require.Len(t, filtered.Collection.Features, 1)
	assert.Equal(t, "proposed school", filtered.Collection.Features[0].Properties["ignored_reason"])

	added, err := r.LayerFor("education_" + report.LayerSourceNew)
	require.NoError(t, err)
	require.Len(t, added.Collection.Features, 1)
	assert.Equal(t, "999", added.Collection.Features[0].Properties["source_id"])

	_, err = r.LayerFor("nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestWriteGeoJSON(t *testing.T) {
	dir := t.TempDir()
	summary := facilities.RunSummary{RunID: "run-1", Unchanged: 1}
	r := report.Build(sampleRecords(), summary, "education")

	require.NoError(t, r.WriteGeoJSON(dir))

	data, err := os.ReadFile(filepath.Join(dir, report.LayerFacilities+".geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)

	_, err = os.Stat(filepath.Join(dir, "summary.json"))
	assert.NoError(t, err)
}
