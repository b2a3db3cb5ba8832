package widgets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/providers"
	"github.com/driftlab/driftboard/internal/retry"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }

type fakeWeather struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWeather) Current(_ context.Context, location string) (*model.WeatherData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.WeatherData{Location: location, TempC: 19.5, Condition: "Partly cloudy"}, nil
}

type fakeVideo struct{}

func (fakeVideo) Find(_ context.Context, query string) (*model.VideoData, error) {
	return &model.VideoData{Query: query, Title: "A video", URL: "https://example.com/v", ChannelTitle: "Chan"}, nil
}

type fakeEvents struct{}

func (fakeEvents) Upcoming(_ context.Context, location string) (*model.EventsData, error) {
	return &model.EventsData{Location: location, Events: []model.Event{{Name: "Concert", Venue: "Hall", Date: "2026-09-01"}}}, nil
}

type fakeGeocode struct{}

func (fakeGeocode) Locate(_ context.Context, location string) (*model.MapData, error) {
	return &model.MapData{Location: location, Lat: 52.52, Lon: 13.405, Label: location}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func allProviders(weather providers.WeatherProvider) Providers {
	return Providers{Weather: weather, Video: fakeVideo{}, Events: fakeEvents{}, Geocode: fakeGeocode{}}
}

func enrichedPatterns(n int) []model.EnrichedPattern {
	var out []model.EnrichedPattern
	for i := 0; i < n; i++ {
		out = append(out, model.EnrichedPattern{
			Pattern: model.Pattern{
				Title:            fmt.Sprintf("Pattern %d", i),
				Description:      "A behavior",
				Confidence:       0.8,
				Keywords:         []string{"kw"},
				InteractionCount: 3,
			},
		})
	}
	return out
}

func widgetsJSON(widgets []model.Widget) string {
	data, _ := json.Marshal(map[string]any{"widgets": widgets})
	return string(data)
}

func selection(n int) []model.Widget {
	types := []model.WidgetType{model.WidgetWeather, model.WidgetVideo, model.WidgetEvents, model.WidgetMap}
	var out []model.Widget
	for i := 0; i < n; i++ {
		w := model.Widget{
			Type:         types[i%len(types)],
			Title:        fmt.Sprintf("Widget %d", i),
			PatternTitle: "Pattern 0",
			Confidence:   0.7,
			Location:     "Berlin",
		}
		if w.Type == model.WidgetVideo {
			w.Query = "some query"
		}
		out = append(out, w)
	}
	return out
}

func newSelector(provider *mockProvider, p Providers) *Selector {
	return NewSelector(testLogger(), provider, retry.NoDelay(3), p, "Berlin")
}

func TestSelectValidMix(t *testing.T) {
	provider := &mockProvider{response: widgetsJSON(selection(4))}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	widgets, err := s.Select(context.Background(), enrichedPatterns(4))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(widgets) != 4 {
		t.Fatalf("expected 4 widgets, got %d", len(widgets))
	}
	for _, w := range widgets {
		if err := w.Validate(); err != nil {
			t.Errorf("widget %q invalid: %v", w.Title, err)
		}
	}
}

func TestSelectDropsDuplicatesBeforeEnrichment(t *testing.T) {
	sel := selection(5)
	// Same type, titles that normalize to the same key.
	sel = append(sel, model.Widget{
		Type: model.WidgetWeather, Title: "  WIDGET 0! ", PatternTitle: "Pattern 0",
		Confidence: 0.7, Location: "Berlin",
	})
	sel = append(sel, model.Widget{
		Type: model.WidgetVideo, Title: "widget   1", PatternTitle: "Pattern 0",
		Confidence: 0.7, Query: "q",
	})
	provider := &mockProvider{response: widgetsJSON(sel)}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	widgets, err := s.Select(context.Background(), enrichedPatterns(4))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(widgets) != 5 {
		t.Fatalf("expected 5 widgets after dedupe, got %d", len(widgets))
	}
	for i, w := range widgets {
		if w.Title != fmt.Sprintf("Widget %d", i) {
			t.Errorf("widget %d: first occurrence not kept in order, got %q", i, w.Title)
		}
	}
}

func TestSelectTooFewAfterDedupe(t *testing.T) {
	sel := []model.Widget{
		{Type: model.WidgetWeather, Title: "Weather", PatternTitle: "Pattern 0", Confidence: 0.7, Location: "Berlin"},
		{Type: model.WidgetWeather, Title: "weather", PatternTitle: "Pattern 0", Confidence: 0.7, Location: "Berlin"},
		{Type: model.WidgetMap, Title: "Map", PatternTitle: "Pattern 0", Confidence: 0.7, Location: "Berlin"},
	}
	provider := &mockProvider{response: widgetsJSON(sel)}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	if _, err := s.Select(context.Background(), enrichedPatterns(4)); err == nil {
		t.Fatal("expected error when fewer than 3 widgets survive dedupe")
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestSelectUnknownTypeRejected(t *testing.T) {
	provider := &mockProvider{response: `{"widgets": [
		{"type": "stocks", "title": "Ticker", "pattern_title": "Pattern 0", "confidence": 0.7},
		{"type": "weather", "title": "W", "pattern_title": "Pattern 0", "confidence": 0.7},
		{"type": "map", "title": "M", "pattern_title": "Pattern 0", "confidence": 0.7}
	]}`}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	if _, err := s.Select(context.Background(), enrichedPatterns(4)); err == nil {
		t.Fatal("expected error for unknown widget type")
	}
}

func TestSelectTruncatesExcess(t *testing.T) {
	provider := &mockProvider{response: widgetsJSON(selection(9))}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	widgets, err := s.Select(context.Background(), enrichedPatterns(4))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(widgets) != model.MaxWidgets {
		t.Fatalf("expected %d widgets, got %d", model.MaxWidgets, len(widgets))
	}
}

func TestSelectFillsDefaultLocation(t *testing.T) {
	sel := selection(4)
	sel[0].Location = ""
	provider := &mockProvider{response: widgetsJSON(sel)}
	s := newSelector(provider, allProviders(&fakeWeather{}))

	widgets, err := s.Select(context.Background(), enrichedPatterns(4))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if widgets[0].Location != "Berlin" {
		t.Errorf("expected user location filled in, got %q", widgets[0].Location)
	}
}

func TestFallbackMixWithVideo(t *testing.T) {
	s := newSelector(&mockProvider{}, allProviders(&fakeWeather{}))

	widgets := s.Fallback(enrichedPatterns(4))
	if len(widgets) != 4 {
		t.Fatalf("expected 4 fallback widgets for 4 patterns, got %d", len(widgets))
	}
	wantTypes := []model.WidgetType{model.WidgetWeather, model.WidgetMap, model.WidgetEvents, model.WidgetVideo}
	for i, w := range widgets {
		if w.Type != wantTypes[i] {
			t.Errorf("widget %d: expected type %s, got %s", i, wantTypes[i], w.Type)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("fallback widget %d invalid: %v", i, err)
		}
	}
	if widgets[3].Query == "" {
		t.Error("fallback video widget has no query")
	}
}

func TestFallbackMixWithoutVideo(t *testing.T) {
	s := newSelector(&mockProvider{}, allProviders(&fakeWeather{}))

	widgets := s.Fallback(enrichedPatterns(3))
	if len(widgets) != 3 {
		t.Fatalf("expected 3 fallback widgets for 3 patterns, got %d", len(widgets))
	}
}

func TestEnrichFillsPayloads(t *testing.T) {
	s := newSelector(&mockProvider{}, allProviders(&fakeWeather{}))

	widgets := s.Enrich(context.Background(), selection(4))
	for i, w := range widgets {
		if !w.Enriched() {
			t.Errorf("widget %d (%s) not enriched", i, w.Type)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("widget %d invalid after enrichment: %v", i, err)
		}
	}
	if widgets[0].Weather == nil || widgets[0].Weather.Location != "Berlin" {
		t.Errorf("weather payload wrong: %+v", widgets[0].Weather)
	}
}

func TestEnrichKeepsPlaceholderOnFailure(t *testing.T) {
	weather := &fakeWeather{err: &providers.StatusError{Provider: "weather", Code: 503}}
	s := newSelector(&mockProvider{}, allProviders(weather))

	widgets := s.Enrich(context.Background(), selection(4))
	if len(widgets) != 4 {
		t.Fatalf("expected all 4 widgets back, got %d", len(widgets))
	}
	if widgets[0].Enriched() {
		t.Error("weather widget should be unenriched after provider failure")
	}
	if weather.calls != 3 {
		t.Errorf("expected 3 weather attempts for 503, got %d", weather.calls)
	}
	for _, w := range widgets[1:] {
		if !w.Enriched() {
			t.Errorf("%s widget should still be enriched", w.Type)
		}
	}
}

func TestEnrichNoRetryOnClientError(t *testing.T) {
	weather := &fakeWeather{err: providers.ErrNoResult}
	s := newSelector(&mockProvider{}, allProviders(weather))

	widgets := s.Enrich(context.Background(), selection(1))
	if weather.calls != 1 {
		t.Errorf("expected 1 weather attempt for a no-result answer, got %d", weather.calls)
	}
	if widgets[0].Enriched() {
		t.Error("widget should stay unenriched")
	}
}

func TestEnrichMissingProvider(t *testing.T) {
	s := newSelector(&mockProvider{}, Providers{})

	widgets := s.Enrich(context.Background(), selection(4))
	for i, w := range widgets {
		if w.Enriched() {
			t.Errorf("widget %d enriched with no providers configured", i)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("widget %d invalid: %v", i, err)
		}
	}
}
