// Package sources provides the authority adapters that fetch external
// facility records and normalize them into the engine's SourceRecord shape.
//
// Each adapter owns its fetch mechanism (HTTP API, CSV download) and its
// authority-specific filtering. Filtered records are marked Ignored with a
// reason rather than dropped, so exclusions stay visible in the report.
package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/facilitymap/changedetect/pkg/facilities"
)

// DefaultTimeout bounds a single fetch request.
const DefaultTimeout = 30 * time.Second

// Source is an authority-specific provider of facility records.
type Source interface {
	// ID names the adapter, for task logs.
	ID() string
	// Use is the facility use this source describes.
	Use() facilities.Use
	// Fetch retrieves and normalizes the authority's current records.
	// Failure returns a *errors.SourceUnavailableError; a partial record
	// set is never returned.
	Fetch(ctx context.Context) ([]*facilities.SourceRecord, error)
}

// httpClient is the subset of http.Client the adapters need, so tests can
// substitute a transport.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
