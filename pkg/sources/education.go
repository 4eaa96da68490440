package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
	"github.com/facilitymap/changedetect/pkg/geometry"
)

// DefaultEducationEndpoint is the Ministry of Education school directory,
// exposed through the data.govt.nz CKAN datastore API.
const DefaultEducationEndpoint = "https://catalogue.data.govt.nz/api/3/action/datastore_search_sql"

// educationSQL selects the directory columns the engine consumes, ordered
// by school id so fetches are reproducible.
const educationSQL = `SELECT "School_Id", "Org_Name", "Add1_Line1", "Add1_Suburb", "Add1_City", "Org_Type", "Latitude", "Longitude", "Roll_Date", "Total" FROM "20b7c271-fd5a-4c9e-869b-481a0e2453cd" ORDER BY "School_Id"`

// TeenParentUnitDistance is the separation below which a Teen Parent Unit
// is treated as contained within its host school and excluded from
// matching. Standalone units further away are kept.
const TeenParentUnitDistance = 100.0

const teenParentUnitType = "Teen Parent Unit"

// Education fetches school records from the MOE school directory API.
type Education struct {
	endpoint string
	client   httpClient
	log      *zerolog.Logger
}

// EducationOption configures an Education source.
type EducationOption func(*Education)

// WithEducationEndpoint overrides the API endpoint.
func WithEducationEndpoint(endpoint string) EducationOption {
	return func(e *Education) { e.endpoint = endpoint }
}

// WithEducationClient overrides the HTTP client.
func WithEducationClient(client httpClient) EducationOption {
	return func(e *Education) { e.client = client }
}

// NewEducation returns the education authority adapter.
func NewEducation(log *zerolog.Logger, opts ...EducationOption) *Education {
	e := &Education{
		endpoint: DefaultEducationEndpoint,
		client:   defaultClient(),
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID implements Source.
func (e *Education) ID() string { return "moe-schools" }

// Use implements Source.
func (e *Education) Use() facilities.Use { return facilities.UseSchool }

type moeResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []moeRecord `json:"records"`
	} `json:"result"`
}

type moeRecord struct {
	SchoolID  json.Number `json:"School_Id"`
	OrgName   string      `json:"Org_Name"`
	OrgType   string      `json:"Org_Type"`
	Address   string      `json:"Add1_Line1"`
	Suburb    string      `json:"Add1_Suburb"`
	City      string      `json:"Add1_City"`
	RollDate  string      `json:"Roll_Date"`
	Total     *int        `json:"Total"`
	Latitude  *float64    `json:"Latitude"`
	Longitude *float64    `json:"Longitude"`
}

// Fetch implements Source. Proposed schools and Teen Parent Units sitting
// within TeenParentUnitDistance of another school are marked Ignored.
func (e *Education) Fetch(ctx context.Context) ([]*facilities.SourceRecord, error) {
	fetchURL := e.endpoint + "?" + url.Values{"sql": {educationSQL}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityEducation), e.endpoint, 0, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityEducation), e.endpoint, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityEducation), e.endpoint, resp.StatusCode, nil)
	}

	var payload moeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityEducation), e.endpoint, resp.StatusCode, err)
	}
	if !payload.Success {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityEducation), e.endpoint, resp.StatusCode,
			fmt.Errorf("datastore query unsuccessful"))
	}

	records := make([]*facilities.SourceRecord, 0, len(payload.Result.Records))
	for _, rec := range payload.Result.Records {
		src := &facilities.SourceRecord{
			SourceID:  rec.SchoolID.String(),
			Name:      rec.OrgName,
			UseType:   rec.OrgType,
			Authority: facilities.AuthorityEducation,
			Occupancy: facilities.OccupancyUnknown,
			Address:   rec.Address,
			Suburb:    rec.Suburb,
			City:      rec.City,
			RollDate:  rec.RollDate,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
		}
		if rec.Total != nil {
			src.Occupancy = *rec.Total
		}
		records = append(records, src)
	}

	e.filter(records)
	e.log.Info().Int("records", len(records)).Msg("fetched school directory")
	return records, nil
}

// filter applies the authority exclusions in place.
func (e *Education) filter(records []*facilities.SourceRecord) {
	points := make([]orb.Point, len(records))
	located := make([]bool, len(records))
	for i, src := range records {
		if src.Latitude != nil && src.Longitude != nil {
			points[i] = geometry.PointToNZTM(*src.Longitude, *src.Latitude)
			located[i] = true
		}
	}

	for i, src := range records {
		if strings.Contains(strings.ToLower(src.Name), "proposed") {
			src.Ignored = true
			src.IgnoredReason = "proposed school"
			continue
		}
		if src.UseType != teenParentUnitType || !located[i] {
			continue
		}
		if d, ok := nearestOther(points, located, i); ok && d < TeenParentUnitDistance {
			src.Ignored = true
			src.IgnoredReason = fmt.Sprintf("teen parent unit within %.0fm of another school", TeenParentUnitDistance)
		}
	}
}

func nearestOther(points []orb.Point, located []bool, i int) (float64, bool) {
	best, found := 0.0, false
	for j := range points {
		if j == i || !located[j] {
			continue
		}
		d := geometry.Distance(points[i], points[j])
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}
