// Package matcher pairs source records against reference facilities when no
// stable join key can be relied on. Matching is layered: exact external
// identifier, then spatial containment within a buffer, then fuzzy name
// similarity weighted by proximity.
//
// The algorithm is two-phase. Phase one scores a candidate for every source
// record independently. Phase two resolves global conflicts so that no
// facility is claimed by more than one source record. Scoring never
// finalizes an acceptance: all candidates exist before the first conflict
// is resolved, which keeps the one-to-one invariant provable and the result
// independent of input ordering.
package matcher

import (
	"math"
	"sort"
	"strconv"

	"github.com/agnivade/levenshtein"
	"github.com/paulmach/orb"

	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// Matcher pairs source records with facilities. It is a pure function over
// its inputs; construct once and reuse across runs.
type Matcher struct {
	bufferDistance float64 // metres of tolerance around facility boundaries
	fuzzyThreshold float64 // minimum combined score for a fuzzy-name match
	decayDistance  float64 // e-folding distance of the proximity decay
}

// Default tunables. Buffer and decay distances follow the operational values
// used for the schools dataset; the fuzzy threshold is deliberately strict
// because a false match is worse than an unmatched record.
const (
	DefaultBufferDistance = 30.0
	DefaultFuzzyThreshold = 0.85
	DefaultDecayDistance  = 350.0

	// bufferFloor is the confidence assigned at the buffer limit; matches
	// at distance zero score 1.0 and scale linearly down to this floor.
	bufferFloor = 0.5
)

// New creates a Matcher with default settings.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		bufferDistance: DefaultBufferDistance,
		fuzzyThreshold: DefaultFuzzyThreshold,
		decayDistance:  DefaultDecayDistance,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match scores every source record against the reference facilities and
// resolves conflicts to a one-to-one assignment. The returned slice has one
// candidate per source record, in input order. Unmatched candidates carry a
// nil facility and confidence zero.
func (m *Matcher) Match(sources []*facilities.SourceRecord, refs []*facilities.Facility) []facilities.MatchCandidate {
	byExternalID := make(map[string][]*facilities.Facility)
	for _, ref := range refs {
		if ref.HasSourceID() {
			byExternalID[ref.SourceFacilityID] = append(byExternalID[ref.SourceFacilityID], ref)
		}
	}
	// Duplicate external ids resolve to the lowest facility id.
	for _, group := range byExternalID {
		sort.Slice(group, func(i, j int) bool { return group[i].FacilityID < group[j].FacilityID })
	}

	candidates := make([]facilities.MatchCandidate, len(sources))
	for i, src := range sources {
		candidates[i] = m.score(src, refs, byExternalID)
	}

	resolveConflicts(candidates)
	return candidates
}

// score produces the best local candidate for one source record.
func (m *Matcher) score(src *facilities.SourceRecord, refs []*facilities.Facility, byExternalID map[string][]*facilities.Facility) facilities.MatchCandidate {
	unmatched := facilities.MatchCandidate{Source: src, Method: facilities.MatchUnmatched}

	// Layer 1: exact external identifier.
	if src.HasSourceID() {
		if group, ok := byExternalID[src.SourceID]; ok && len(group) > 0 {
			return facilities.MatchCandidate{
				Source:     src,
				Facility:   group[0],
				Method:     facilities.MatchExactID,
				Confidence: 1.0,
			}
		}
	}

	point, ok := geometry.RepresentativePoint(src.Geom)
	if !ok {
		return unmatched
	}

	// Layer 2: spatial containment, widened by the buffer distance.
	var within []*facilities.Facility
	var buffered []spatialHit
	for _, ref := range refs {
		d := geometry.DistanceToPolygon(ref.Geom, point)
		if d == 0 {
			within = append(within, ref)
		} else if d <= m.bufferDistance {
			buffered = append(buffered, spatialHit{ref: ref, distance: d})
		}
	}

	if len(within) == 1 {
		return facilities.MatchCandidate{
			Source:     src,
			Facility:   within[0],
			Method:     facilities.MatchSpatial,
			Confidence: 1.0,
		}
	}
	if len(within) == 0 && len(buffered) == 1 {
		return facilities.MatchCandidate{
			Source:     src,
			Facility:   buffered[0].ref,
			Method:     facilities.MatchSpatial,
			Confidence: m.bufferConfidence(buffered[0].distance),
		}
	}

	// Layer 3: fuzzy name similarity over the remaining candidates. With
	// an ambiguous spatial result (point inside more than one polygon, or
	// several within the buffer) only those compete; with no spatial hits
	// at all every facility competes and the proximity decay does the
	// narrowing.
	pool := within
	for _, hit := range buffered {
		pool = append(pool, hit.ref)
	}
	if len(pool) == 0 {
		pool = refs
	}
	if best, score := m.fuzzyBest(src, point, pool); best != nil && score >= m.fuzzyThreshold {
		return facilities.MatchCandidate{
			Source:     src,
			Facility:   best,
			Method:     facilities.MatchFuzzyName,
			Confidence: score,
		}
	}

	return unmatched
}

type spatialHit struct {
	ref      *facilities.Facility
	distance float64
}

// bufferConfidence scales linearly from 1.0 at zero distance to the floor
// at the buffer limit.
func (m *Matcher) bufferConfidence(d float64) float64 {
	if m.bufferDistance <= 0 {
		return bufferFloor
	}
	return 1.0 - (d/m.bufferDistance)*(1.0-bufferFloor)
}

// fuzzyBest returns the highest-scoring facility by name similarity times
// proximity decay. Ties resolve to the lowest facility id.
func (m *Matcher) fuzzyBest(src *facilities.SourceRecord, point orb.Point, pool []*facilities.Facility) (*facilities.Facility, float64) {
	var best *facilities.Facility
	bestScore := 0.0
	for _, ref := range pool {
		sim := nameSimilarity(src, ref)
		if sim == 0 {
			continue
		}
		d := geometry.DistanceToPolygon(ref.Geom, point)
		score := sim * math.Exp(-d/m.decayDistance)
		if score > bestScore || (score == bestScore && best != nil && ref.FacilityID < best.FacilityID) {
			best = ref
			bestScore = score
		}
	}
	return best, bestScore
}

// nameSimilarity is a normalized Levenshtein similarity in [0,1] between the
// source name and the better of the facility's two name keys. Keys are
// case- and diacritic-insensitive courtesy of normalization.
func nameSimilarity(src *facilities.SourceRecord, ref *facilities.Facility) float64 {
	best := similarity(src.NameKey, ref.SourceNameKey)
	if s := similarity(src.NameKey, ref.NameKey); s > best {
		best = s
	}
	return best
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	d := levenshtein.ComputeDistance(a, b)
	if d >= longest {
		return 0
	}
	return 1.0 - float64(d)/float64(longest)
}

// resolveConflicts enforces the one-to-one invariant: for each facility
// claimed by more than one candidate, the highest confidence wins; ties
// break on the lowest source record id for determinism. Losers demote to
// unmatched.
func resolveConflicts(candidates []facilities.MatchCandidate) {
	claims := make(map[int][]int) // facility id -> candidate indexes
	for i := range candidates {
		if candidates[i].Matched() {
			id := candidates[i].Facility.FacilityID
			claims[id] = append(claims[id], i)
		}
	}

	for _, idxs := range claims {
		if len(idxs) < 2 {
			continue
		}
		winner := idxs[0]
		for _, i := range idxs[1:] {
			if better(&candidates[i], &candidates[winner]) {
				winner = i
			}
		}
		for _, i := range idxs {
			if i == winner {
				continue
			}
			candidates[i].Facility = nil
			candidates[i].Method = facilities.MatchUnmatched
			candidates[i].Confidence = 0
		}
	}
}

// better reports whether candidate a beats candidate b for the same
// facility: higher confidence first, then the stronger match method (an
// exact identifier outranks containment at equal confidence), then the
// lower source record id. Duplicate external ids fall through to the name
// key and finally the record coordinates so the winner never depends on
// input order.
func better(a, b *facilities.MatchCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if ra, rb := methodRank(a.Method), methodRank(b.Method); ra != rb {
		return ra > rb
	}
	if a.Source.SourceID != b.Source.SourceID {
		return lessSourceID(a.Source.SourceID, b.Source.SourceID)
	}
	if a.Source.NameKey != b.Source.NameKey {
		return a.Source.NameKey < b.Source.NameKey
	}
	pa, _ := geometry.RepresentativePoint(a.Source.Geom)
	pb, _ := geometry.RepresentativePoint(b.Source.Geom)
	if pa[0] != pb[0] {
		return pa[0] < pb[0]
	}
	return pa[1] < pb[1]
}

func methodRank(m facilities.MatchMethod) int {
	switch m {
	case facilities.MatchExactID:
		return 3
	case facilities.MatchSpatial:
		return 2
	case facilities.MatchFuzzyName:
		return 1
	default:
		return 0
	}
}

// lessSourceID orders external identifiers numerically when both parse as
// integers, lexicographically otherwise.
func lessSourceID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
