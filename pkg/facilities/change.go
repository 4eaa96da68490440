package facilities

// ChangeAction is the classification outcome for one record of a detection
// run.
type ChangeAction string

const (
	// ChangeAdded indicates a source record with no corresponding facility.
	ChangeAdded ChangeAction = "added"
	// ChangeRemoved indicates a facility no longer present in the source.
	ChangeRemoved ChangeAction = "removed"
	// ChangeGeometryUpdated indicates only the geometry moved beyond tolerance.
	ChangeGeometryUpdated ChangeAction = "geometry_updated"
	// ChangeAttributeUpdated indicates only compared attributes differ.
	ChangeAttributeUpdated ChangeAction = "attribute_updated"
	// ChangeGeometryAttributeUpdated indicates both geometry and attributes changed.
	ChangeGeometryAttributeUpdated ChangeAction = "geometry_attribute_updated"
	// ChangeUnchanged indicates a matched pair with no detected change.
	ChangeUnchanged ChangeAction = "unchanged"
	// ChangeSkipped marks a record excluded by normalization (malformed
	// geometry) or by an authority filter. Skipped records appear in the
	// report so exclusions stay visible, but never in the main counts.
	ChangeSkipped ChangeAction = "skipped"
)

// MatchMethod tags how a source record was paired with a facility.
type MatchMethod string

const (
	// MatchExactID is an exact external-identifier match.
	MatchExactID MatchMethod = "exact_id"
	// MatchSpatial is a representative-point containment or buffer match.
	MatchSpatial MatchMethod = "spatial"
	// MatchFuzzyName is a name-similarity match weighted by proximity.
	MatchFuzzyName MatchMethod = "fuzzy_name"
	// MatchUnmatched means no facility was paired.
	MatchUnmatched MatchMethod = "unmatched"
)

// MatchCandidate relates one source record to zero or one facility.
//
// After global conflict resolution, at most one accepted candidate targets
// any given facility; competing claims are demoted to unmatched.
type MatchCandidate struct {
	Source     *SourceRecord
	Facility   *Facility // nil when unmatched
	Method     MatchMethod
	Confidence float64 // in [0, 1]
}

// Matched reports whether the candidate pairs its source with a facility.
func (c *MatchCandidate) Matched() bool {
	return c.Facility != nil && c.Method != MatchUnmatched
}

// ChangeRecord is the output unit of a run: one per facility, plus one per
// unmatched source record.
type ChangeRecord struct {
	// Exactly one of Facility and Source is set for added/removed records;
	// both are set for matched pairs.
	Facility *Facility
	Source   *SourceRecord

	// InPublished reports whether the record was present in the prior
	// reference dataset (true for every facility, false for additions).
	InPublished bool

	Action      ChangeAction
	Description string

	// SuggestedSQL is an advisory UPDATE statement for attribute changes,
	// for a human to review. The engine never executes it.
	SuggestedSQL string
}
