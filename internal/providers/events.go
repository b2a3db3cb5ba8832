package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"

	"github.com/driftlab/driftboard/internal/model"
)

const ticketmasterEventsURL = "https://app.ticketmaster.com/discovery/v2/events.json"

// TicketmasterClient lists events via the Ticketmaster Discovery API.
type TicketmasterClient struct {
	apiKey string
	client *http.Client
}

// NewTicketmasterClient creates an events client reading its key from env.
func NewTicketmasterClient(apiKeyEnv string) *TicketmasterClient {
	return &TicketmasterClient{
		apiKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: LookupTimeout},
	}
}

// IsConfigured checks if the API key is set.
func (t *TicketmasterClient) IsConfigured() bool {
	return t.apiKey != ""
}

// Upcoming returns up to five upcoming events near a location.
func (t *TicketmasterClient) Upcoming(ctx context.Context, location string) (*model.EventsData, error) {
	u := ticketmasterEventsURL + "?size=5&sort=date,asc&city=" +
		url.QueryEscape(location) + "&apikey=" + url.QueryEscape(t.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Provider: "ticketmaster", Code: resp.StatusCode}
		if !Retryable(se) {
			return nil, ErrNoResult
		}
		return nil, se
	}

	var body struct {
		Embedded struct {
			Events []struct {
				Name string `json:"name"`
				URL  string `json:"url"`
				Dates struct {
					Start struct {
						LocalDate string `json:"localDate"`
					} `json:"start"`
				} `json:"dates"`
				Embedded struct {
					Venues []struct {
						Name string `json:"name"`
					} `json:"venues"`
				} `json:"_embedded"`
			} `json:"events"`
		} `json:"_embedded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Embedded.Events) == 0 {
		return nil, ErrNoResult
	}

	data := &model.EventsData{Location: location}
	for _, e := range body.Embedded.Events {
		venue := ""
		if len(e.Embedded.Venues) > 0 {
			venue = e.Embedded.Venues[0].Name
		}
		data.Events = append(data.Events, model.Event{
			Name:  e.Name,
			Venue: venue,
			Date:  e.Dates.Start.LocalDate,
			URL:   e.URL,
		})
	}
	return data, nil
}
