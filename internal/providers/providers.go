// Package providers holds the live-data capability contracts the pipeline
// enriches from, and their HTTP implementations. The pipeline only sees the
// interfaces; transport details stay here.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftlab/driftboard/internal/model"
)

// Timeouts per call class: enrichment lookups are short, LLM calls elsewhere
// run much longer.
const LookupTimeout = 10 * time.Second

// ErrNoResult means the provider answered but has nothing usable for the
// query (e.g. a 4xx other than 429). Not retryable; callers degrade to an
// empty result.
var ErrNoResult = errors.New("no result")

// SearchProvider answers a free-text query with one result.
type SearchProvider interface {
	Search(ctx context.Context, query string) (*model.SearchResult, error)
}

// WeatherProvider looks up current conditions for a location.
type WeatherProvider interface {
	Current(ctx context.Context, location string) (*model.WeatherData, error)
}

// VideoProvider finds one video matching a query.
type VideoProvider interface {
	Find(ctx context.Context, query string) (*model.VideoData, error)
}

// EventsProvider lists upcoming events near a location.
type EventsProvider interface {
	Upcoming(ctx context.Context, location string) (*model.EventsData, error)
}

// GeocodeProvider resolves a location name to coordinates.
type GeocodeProvider interface {
	Locate(ctx context.Context, location string) (*model.MapData, error)
}

// StatusError is an HTTP error response from a provider.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.Code)
}

// Retryable reports whether err is worth retrying: rate limits (429),
// server errors (5xx), and transport failures are; other client errors are
// not — re-sending the same bad request cannot help.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoResult) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	return true
}
