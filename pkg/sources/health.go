package sources

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/facilitymap/changedetect/pkg/errors"
	"github.com/facilitymap/changedetect/pkg/facilities"
)

// DefaultHealthEndpoint is the Ministry of Health public hospitals summary
// CSV.
const DefaultHealthEndpoint = "https://www.health.govt.nz/sites/default/files/prms/pst_csvs/LegalEntitySummaryPublicHospital.csv"

// Health fetches public hospital records from the MoH certification
// summary CSV.
type Health struct {
	endpoint string
	client   httpClient
	log      *zerolog.Logger
}

// HealthOption configures a Health source.
type HealthOption func(*Health)

// WithHealthEndpoint overrides the CSV URL.
func WithHealthEndpoint(endpoint string) HealthOption {
	return func(h *Health) { h.endpoint = endpoint }
}

// WithHealthClient overrides the HTTP client.
func WithHealthClient(client httpClient) HealthOption {
	return func(h *Health) { h.client = client }
}

// NewHealth returns the health authority adapter.
func NewHealth(log *zerolog.Logger, opts ...HealthOption) *Health {
	h := &Health{
		endpoint: DefaultHealthEndpoint,
		client:   defaultClient(),
		log:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID implements Source.
func (h *Health) ID() string { return "moh-hospitals" }

// Use implements Source.
func (h *Health) Use() facilities.Use { return facilities.UseHospital }

// Fetch implements Source.
func (h *Health) Fetch(ctx context.Context) ([]*facilities.SourceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityHealth), h.endpoint, 0, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityHealth), h.endpoint, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityHealth), h.endpoint, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityHealth), h.endpoint, resp.StatusCode, err)
	}

	rows, err := parseHospitalsCSV(string(body))
	if err != nil {
		return nil, errors.NewSourceUnavailableError(string(facilities.AuthorityHealth), h.endpoint, resp.StatusCode, err)
	}

	records := make([]*facilities.SourceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, hospitalRecord(row))
	}
	h.log.Info().Int("records", len(records)).Msg("fetched public hospitals summary")
	return records, nil
}

// parseHospitalsCSV parses the MoH summary CSV. The published file pads
// rows with trailing commas and its header cells carry stray whitespace,
// so both are stripped before decoding.
func parseHospitalsCSV(text string) ([]map[string]string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, ",")
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, key := range header {
		header[i] = strings.TrimSpace(key)
	}

	var rows []map[string]string
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(fields) {
				row[key] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func hospitalRecord(row map[string]string) *facilities.SourceRecord {
	src := &facilities.SourceRecord{
		SourceID:  row["Hpi_Facility_Id"],
		Name:      row["Premises_Name"],
		UseType:   row["Service_Types"],
		Authority: facilities.AuthorityHealth,
		Occupancy: facilities.OccupancyUnknown,
		Address:   row["Address"],
		Suburb:    row["Suburb"],
		City:      row["City"],
	}
	if beds, err := strconv.Atoi(row["Total_Beds"]); err == nil {
		src.Occupancy = beds
	}
	if lat, err := strconv.ParseFloat(row["Latitude"], 64); err == nil {
		if lon, err := strconv.ParseFloat(row["Longitude"], 64); err == nil {
			src.Latitude = &lat
			src.Longitude = &lon
		}
	}
	return src
}
