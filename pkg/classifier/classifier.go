// Package classifier folds match and diff results into final per-record
// change verdicts and an append-only run summary.
//
// Every reference facility produces exactly one ChangeRecord, every source
// record not claimed by a facility produces one more, and records excluded
// during normalization are reported as skipped rather than dropped. The
// output ordering is stable across runs regardless of input order.
package classifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facilitymap/changedetect/pkg/differ"
	"github.com/facilitymap/changedetect/pkg/facilities"
)

// DefaultUser is recorded on the RunSummary when no operator is configured.
const DefaultUser = "changedetect"

// Classifier assigns a ChangeAction to every facility and unmatched source
// record, diffing matched pairs with the configured Differ.
type Classifier struct {
	differ *differ.Differ
	user   string
	runID  string
	now    func() time.Time
}

// New returns a Classifier that diffs matched pairs with d.
func New(d *differ.Differ, opts ...Option) *Classifier {
	c := &Classifier{
		differ: d,
		user:   DefaultUser,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify consumes the matcher's full candidate set, the reference
// facilities, and any records excluded during normalization. It returns one
// ChangeRecord per facility, one per unmatched source record, and one per
// skipped record, plus the aggregated RunSummary.
func (c *Classifier) Classify(candidates []facilities.MatchCandidate, refs []*facilities.Facility, skipped []*facilities.SourceRecord) ([]facilities.ChangeRecord, facilities.RunSummary) {
	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := facilities.RunSummary{
		RunID:          runID,
		LogDate:        c.now().UTC(),
		User:           c.user,
		RowCountBefore: len(refs),
	}

	accepted := make(map[int]facilities.MatchCandidate, len(candidates))
	var unmatched []facilities.MatchCandidate
	for _, cand := range candidates {
		if cand.Matched() {
			accepted[cand.Facility.FacilityID] = cand
		} else {
			unmatched = append(unmatched, cand)
		}
	}

	records := make([]facilities.ChangeRecord, 0, len(refs)+len(unmatched)+len(skipped))
	for _, ref := range refs {
		records = append(records, c.classifyFacility(ref, accepted, &summary))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Facility.FacilityID < records[j].Facility.FacilityID
	})

	sort.Slice(unmatched, func(i, j int) bool {
		return lessSourceID(unmatched[i].Source.SourceID, unmatched[j].Source.SourceID)
	})
	for _, cand := range unmatched {
		summary.Added++
		records = append(records, facilities.ChangeRecord{
			Source:      cand.Source,
			InPublished: false,
			Action:      facilities.ChangeAdded,
			Description: "not present in published dataset",
		})
	}

	sort.Slice(skipped, func(i, j int) bool {
		return lessSourceID(skipped[i].SourceID, skipped[j].SourceID)
	})
	for _, src := range skipped {
		summary.Skipped++
		records = append(records, facilities.ChangeRecord{
			Source:      src,
			InPublished: false,
			Action:      facilities.ChangeSkipped,
			Description: src.IgnoredReason,
		})
	}

	summary.RowCountAfter = summary.RowCountBefore - summary.Removed + summary.Added
	return records, summary
}

func (c *Classifier) classifyFacility(ref *facilities.Facility, accepted map[int]facilities.MatchCandidate, summary *facilities.RunSummary) facilities.ChangeRecord {
	rec := facilities.ChangeRecord{
		Facility:    ref,
		InPublished: true,
	}

	cand, ok := accepted[ref.FacilityID]
	if !ok {
		summary.Removed++
		rec.Action = facilities.ChangeRemoved
		rec.Description = "not present in source data"
		return rec
	}

	rec.Source = cand.Source
	res := c.differ.Diff(ref, cand.Source)
	switch {
	case res.GeometryChanged && res.AttributesChanged:
		summary.GeomAttrUpdated++
		rec.Action = facilities.ChangeGeometryAttributeUpdated
	case res.GeometryChanged:
		summary.GeomUpdated++
		rec.Action = facilities.ChangeGeometryUpdated
	case res.AttributesChanged:
		summary.AttrUpdated++
		rec.Action = facilities.ChangeAttributeUpdated
	default:
		summary.Unchanged++
		rec.Action = facilities.ChangeUnchanged
		return rec
	}
	rec.Description = res.Description()
	rec.SuggestedSQL = suggestedSQL(ref, res)
	return rec
}

// columnFor maps a comparison field to its column in the facilities table.
func columnFor(f differ.Field) string {
	switch f {
	case differ.FieldSourceID:
		return "source_facility_id"
	case differ.FieldSourceName:
		return "source_name"
	case differ.FieldSourceType:
		return "use_type"
	case differ.FieldOccupancy:
		return "estimated_occupancy"
	}
	return string(f)
}

// suggestedSQL renders an advisory UPDATE statement for a reviewer to apply
// after verifying the attribute changes. Geometry-only changes carry no SQL;
// polygon edits go through the curation tooling, not a statement.
func suggestedSQL(ref *facilities.Facility, res differ.Result) string {
	if len(res.Changes) == 0 {
		return ""
	}
	sets := make([]string, 0, len(res.Changes)+1)
	for _, ch := range res.Changes {
		if ch.Field == differ.FieldOccupancy {
			value := ch.NewValue
			if value == "unknown" {
				value = "NULL"
			}
			sets = append(sets, fmt.Sprintf("%s = %s", columnFor(ch.Field), value))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = '%s'", columnFor(ch.Field), strings.ReplaceAll(ch.NewValue, "'", "''")))
	}
	sets = append(sets, "last_modified = CURRENT_DATE")
	return fmt.Sprintf("UPDATE facilities SET %s WHERE facility_id = %d;", strings.Join(sets, ", "), ref.FacilityID)
}

// lessSourceID orders external identifiers numerically when both parse as
// integers, falling back to lexicographic order.
func lessSourceID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
