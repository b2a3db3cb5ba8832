package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/driftlab/driftboard/internal/model"
)

const (
	openMeteoGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"
)

// OpenMeteoClient looks up current weather via the keyless Open-Meteo API.
type OpenMeteoClient struct {
	client *http.Client
}

// NewOpenMeteoClient creates a weather client.
func NewOpenMeteoClient() *OpenMeteoClient {
	return &OpenMeteoClient{client: &http.Client{Timeout: LookupTimeout}}
}

// Current geocodes the location then fetches current conditions.
func (o *OpenMeteoClient) Current(ctx context.Context, location string) (*model.WeatherData, error) {
	lat, lon, name, err := o.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current=temperature_2m,weather_code",
		openMeteoForecastURL, lat, lon)
	var body struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := o.getJSON(ctx, u, "open-meteo", &body); err != nil {
		return nil, err
	}

	return &model.WeatherData{
		Location:  name,
		TempC:     body.Current.Temperature,
		Condition: weatherCondition(body.Current.WeatherCode),
	}, nil
}

func (o *OpenMeteoClient) geocode(ctx context.Context, location string) (lat, lon float64, name string, err error) {
	u := openMeteoGeocodeURL + "?count=1&name=" + url.QueryEscape(location)
	var body struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := o.getJSON(ctx, u, "open-meteo-geocode", &body); err != nil {
		return 0, 0, "", err
	}
	if len(body.Results) == 0 {
		return 0, 0, "", ErrNoResult
	}
	r := body.Results[0]
	return r.Latitude, r.Longitude, r.Name, nil
}

func (o *OpenMeteoClient) getJSON(ctx context.Context, u, provider string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Provider: provider, Code: resp.StatusCode}
		if !Retryable(se) {
			return ErrNoResult
		}
		return se
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// weatherCondition maps WMO weather codes to short labels.
func weatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
