package classifier_test

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/changedetect/pkg/classifier"
	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/matcher"
	"github.com/facilitymap/changedetect/pkg/normalize"
)

func squareAt(x, y, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{orb.Polygon{orb.Ring{
		{x, y},
		{x + size, y},
		{x + size, y + size},
		{x, y + size},
		{x, y},
	}}}
}

func facility(t *testing.T, id int, sourceID, name string, geom orb.MultiPolygon) *facilities.Facility {
	t.Helper()
	f := &facilities.Facility{
		FacilityID:         id,
		SourceFacilityID:   sourceID,
		Name:               name,
		SourceName:         name,
		Use:                facilities.UseSchool,
		UseType:            "Secondary (Year 9-15)",
		EstimatedOccupancy: 500,
		Geom:               geom,
	}
	require.NoError(t, normalize.Facility(f))
	return f
}

func source(t *testing.T, sourceID, name string, geom orb.Geometry) *facilities.SourceRecord {
	t.Helper()
	s := &facilities.SourceRecord{
		SourceID:  sourceID,
		Name:      name,
		UseType:   "Secondary (Year 9-15)",
		Authority: facilities.AuthorityEducation,
		Occupancy: 500,
		Geom:      geom,
	}
	require.NoError(t, normalize.Source(s))
	return s
}

func classify(t *testing.T, sources []*facilities.SourceRecord, refs []*facilities.Facility) ([]facilities.ChangeRecord, facilities.RunSummary) {
	t.Helper()
	d, err := differ.New(nil)
	require.NoError(t, err)
	candidates := matcher.New().Match(sources, refs)
	c := classifier.New(d, classifier.WithUser("tester"))
	return c.Classify(candidates, refs, nil)
}

func actionFor(t *testing.T, records []facilities.ChangeRecord, facilityID int) facilities.ChangeAction {
	t.Helper()
	for _, rec := range records {
		if rec.Facility != nil && rec.Facility.FacilityID == facilityID {
			return rec.Action
		}
	}
	t.Fatalf("no change record for facility %d", facilityID)
	return ""
}

func TestClassifyScenarios(t *testing.T) {
	t.Run("identical pair is unchanged", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		}
		sources := []*facilities.SourceRecord{
			source(t, "174", "Example School", orb.Point{1748050, 5427050}),
		}

		records, summary := classify(t, sources, refs)
		require.Len(t, records, 1)
		assert.Equal(t, facilities.ChangeUnchanged, records[0].Action)
		assert.True(t, records[0].InPublished)
		assert.Equal(t, 1, summary.Unchanged)
		assert.Equal(t, 0, summary.TotalChanges())
	})

	t.Run("shifted geometry is geometry_updated", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		}
		sources := []*facilities.SourceRecord{
			source(t, "174", "Example School", orb.Point{1748300, 5427050}),
		}

		records, summary := classify(t, sources, refs)
		require.Len(t, records, 1)
		assert.Equal(t, facilities.ChangeGeometryUpdated, records[0].Action)
		assert.Contains(t, records[0].Description, "Geom:")
		assert.Empty(t, records[0].SuggestedSQL)
		assert.Equal(t, 1, summary.GeomUpdated)
	})

	t.Run("use type change is attribute_updated", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		}
		src := source(t, "174", "Example School", orb.Point{1748050, 5427050})
		src.UseType = "Composite"

		records, summary := classify(t, []*facilities.SourceRecord{src}, refs)
		require.Len(t, records, 1)
		assert.Equal(t, facilities.ChangeAttributeUpdated, records[0].Action)
		assert.Equal(t, 1, summary.AttrUpdated)
		assert.Equal(t,
			"UPDATE facilities SET use_type = 'Composite', last_modified = CURRENT_DATE WHERE facility_id = 1;",
			records[0].SuggestedSQL)
	})

	t.Run("unmatched source is added", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		}
		sources := []*facilities.SourceRecord{
			source(t, "174", "Example School", orb.Point{1748050, 5427050}),
			source(t, "999", "Brand New School", orb.Point{1790000, 5500000}),
		}

		records, summary := classify(t, sources, refs)
		require.Len(t, records, 2)
		added := records[1]
		assert.Equal(t, facilities.ChangeAdded, added.Action)
		assert.False(t, added.InPublished)
		assert.Nil(t, added.Facility)
		assert.Equal(t, "999", added.Source.SourceID)
		assert.Equal(t, 1, summary.Added)
		assert.Equal(t, 2, summary.RowCountAfter)
	})

	t.Run("unmatched facility is removed", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
			facility(t, 2, "200", "Closed College", squareAt(1790000, 5500000, 100)),
		}
		sources := []*facilities.SourceRecord{
			source(t, "174", "Example School", orb.Point{1748050, 5427050}),
		}

		records, summary := classify(t, sources, refs)
		require.Len(t, records, 2)
		assert.Equal(t, facilities.ChangeRemoved, actionFor(t, records, 2))
		assert.Equal(t, 1, summary.Removed)
		assert.Equal(t, 1, summary.RowCountAfter)
	})

	t.Run("exact id wins shared polygon, loser becomes added", func(t *testing.T) {
		refs := []*facilities.Facility{
			facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		}
		sources := []*facilities.SourceRecord{
			source(t, "555", "Example School Annex", orb.Point{1748020, 5427020}),
			source(t, "174", "Example School", orb.Point{1748080, 5427080}),
		}

		records, summary := classify(t, sources, refs)
		require.Len(t, records, 2)
		assert.Equal(t, facilities.ChangeUnchanged, actionFor(t, records, 1))
		require.NotNil(t, records[0].Source)
		assert.Equal(t, "174", records[0].Source.SourceID)
		assert.Equal(t, facilities.ChangeAdded, records[1].Action)
		assert.Equal(t, "555", records[1].Source.SourceID)
		assert.Equal(t, 1, summary.Added)
	})
}

func TestClassifySkippedRecords(t *testing.T) {
	refs := []*facilities.Facility{
		facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
	}
	sources := []*facilities.SourceRecord{
		source(t, "174", "Example School", orb.Point{1748050, 5427050}),
	}
	skipped := []*facilities.SourceRecord{
		{SourceID: "300", Name: "No Geometry School", IgnoredReason: "geometry absent"},
	}

	d, err := differ.New(nil)
	require.NoError(t, err)
	candidates := matcher.New().Match(sources, refs)
	records, summary := classifier.New(d).Classify(candidates, refs, skipped)

	require.Len(t, records, 2)
	assert.Equal(t, facilities.ChangeSkipped, records[1].Action)
	assert.Equal(t, "geometry absent", records[1].Description)
	assert.Equal(t, 1, summary.Skipped)
	// Skipped records never move the row counts.
	assert.Equal(t, 1, summary.RowCountBefore)
	assert.Equal(t, 1, summary.RowCountAfter)
}

func TestClassifyCompletenessAndCounts(t *testing.T) {
	refs := []*facilities.Facility{
		facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
		facility(t, 2, "200", "Closed College", squareAt(1790000, 5500000, 100)),
		facility(t, 3, "", "Harbour View School", squareAt(1760000, 5440000, 100)),
	}
	sources := []*facilities.SourceRecord{
		source(t, "174", "Example School", orb.Point{1748050, 5427050}),
		source(t, "310", "Harbour View School", orb.Point{1760050, 5440050}),
		source(t, "999", "Brand New School", orb.Point{1800000, 5600000}),
	}

	records, summary := classify(t, sources, refs)

	assert.Len(t, records, len(refs)+1)
	seen := map[int]int{}
	for _, rec := range records {
		if rec.Facility != nil {
			seen[rec.Facility.FacilityID]++
		}
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "facility %d classified %d times", id, n)
	}
	assert.Equal(t, summary.RowCountBefore-summary.Removed+summary.Added, summary.RowCountAfter)
	assert.Equal(t, len(records), summary.Added+summary.Removed+summary.GeomUpdated+
		summary.AttrUpdated+summary.GeomAttrUpdated+summary.Unchanged+summary.Skipped)
}

func TestClassifyDeterminism(t *testing.T) {
	refs := []*facilities.Facility{
		facility(t, 2, "200", "Closed College", squareAt(1790000, 5500000, 100)),
		facility(t, 1, "174", "Example School", squareAt(1748000, 5427000, 100)),
	}
	sources := []*facilities.SourceRecord{
		source(t, "999", "Brand New School", orb.Point{1800000, 5600000}),
		source(t, "174", "Example School", orb.Point{1748050, 5427050}),
	}

	fixed := func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	d, err := differ.New(nil)
	require.NoError(t, err)

	run := func() ([]facilities.ChangeRecord, facilities.RunSummary) {
		candidates := matcher.New().Match(sources, refs)
		return classifier.New(d, classifier.WithClock(fixed)).Classify(candidates, refs, nil)
	}

	first, firstSummary := run()
	second, secondSummary := run()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Action, second[i].Action)
		assert.Equal(t, first[i].Description, second[i].Description)
	}
	firstSummary.RunID, secondSummary.RunID = "", ""
	assert.Equal(t, firstSummary, secondSummary)

	// Facility records come first in id order, additions after.
	assert.Equal(t, 1, first[0].Facility.FacilityID)
	assert.Equal(t, 2, first[1].Facility.FacilityID)
	assert.Equal(t, facilities.ChangeAdded, first[2].Action)
}
