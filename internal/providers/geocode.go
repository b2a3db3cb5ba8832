package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/driftlab/driftboard/internal/model"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// NominatimClient resolves location names via OpenStreetMap Nominatim.
type NominatimClient struct {
	client *http.Client
}

// NewNominatimClient creates a geocoding client.
func NewNominatimClient() *NominatimClient {
	return &NominatimClient{client: &http.Client{Timeout: LookupTimeout}}
}

// Locate resolves a location name to coordinates for a map widget.
func (n *NominatimClient) Locate(ctx context.Context, location string) (*model.MapData, error) {
	u := nominatimSearchURL + "?format=json&limit=1&q=" + url.QueryEscape(location)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	// Nominatim usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "driftboard/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Provider: "nominatim", Code: resp.StatusCode}
		if !Retryable(se) {
			return nil, ErrNoResult
		}
		return nil, se
	}

	var body []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNoResult
	}

	lat, err := strconv.ParseFloat(body[0].Lat, 64)
	if err != nil {
		return nil, ErrNoResult
	}
	lon, err := strconv.ParseFloat(body[0].Lon, 64)
	if err != nil {
		return nil, ErrNoResult
	}

	return &model.MapData{
		Location: location,
		Lat:      lat,
		Lon:      lon,
		Label:    body[0].DisplayName,
	}, nil
}
