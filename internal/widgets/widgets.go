// Package widgets covers the last two generative stages: selecting which
// typed widgets belong on the dashboard, then enriching each one with live
// data from its provider. Selection falls back to a deterministic mix;
// enrichment failures leave the widget unenriched rather than dropping it.
package widgets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftlab/driftboard/internal/dedupe"
	"github.com/driftlab/driftboard/internal/fanout"
	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/providers"
	"github.com/driftlab/driftboard/internal/retry"
)

const selectPrompt = `You are choosing live widgets for a personalized dashboard.

The user is in: %s

Their detected behavioral patterns:
%s

Available widget types (use ONLY these): "weather", "video", "events", "map".

Pick %d-%d widgets that fit the patterns. For "video" widgets give a concrete search query; for "weather", "events" and "map" widgets give the location (default to the user's). Tie each widget to the pattern it serves.

Respond with ONLY this JSON:
{"widgets": [{"type": "weather", "title": "Widget title", "pattern_title": "Pattern it serves", "confidence": 0.8, "query": "", "location": "Berlin"}]}`

// Selector picks and enriches the dashboard's widgets.
type Selector struct {
	log      *slog.Logger
	provider llm.Provider
	policy   retry.Policy

	weather providers.WeatherProvider
	video   providers.VideoProvider
	events  providers.EventsProvider
	geocode providers.GeocodeProvider

	location string
}

// Providers bundles the live-data sources enrichment dispatches to. Any
// field may be nil; widgets of that type then stay unenriched.
type Providers struct {
	Weather providers.WeatherProvider
	Video   providers.VideoProvider
	Events  providers.EventsProvider
	Geocode providers.GeocodeProvider
}

// NewSelector creates a widget selector for a user located at location.
func NewSelector(log *slog.Logger, provider llm.Provider, policy retry.Policy, p Providers, location string) *Selector {
	return &Selector{
		log:      log,
		provider: provider,
		policy:   policy,
		weather:  p.Weather,
		video:    p.Video,
		events:   p.Events,
		geocode:  p.Geocode,
		location: location,
	}
}

// Select asks the model for a widget mix, validates it, and dedupes by
// (type, normalized title) before anything is enriched. Fewer than the
// minimum after deduplication is an error; callers fall back.
func (s *Selector) Select(ctx context.Context, patterns []model.EnrichedPattern) ([]model.Widget, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	prompt := fmt.Sprintf(selectPrompt,
		s.location, summarizePatterns(patterns), model.MinWidgets, model.MaxWidgets)

	return retry.Do(ctx, s.log, s.policy, "select-widgets", func() ([]model.Widget, error) {
		var parsed struct {
			Widgets []model.Widget `json:"widgets"`
		}
		if err := llm.GenerateObject(ctx, s.provider, prompt, 2048, &parsed); err != nil {
			return nil, err
		}
		return s.validateSelection(parsed.Widgets)
	})
}

func (s *Selector) validateSelection(widgets []model.Widget) ([]model.Widget, error) {
	for i := range widgets {
		w := &widgets[i]
		w.Confidence = model.ClampConfidence(w.Confidence)
		if w.Location == "" && w.Type != model.WidgetVideo {
			w.Location = s.location
		}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if w.Type == model.WidgetVideo && strings.TrimSpace(w.Query) == "" {
			return nil, fmt.Errorf("video widget %q has no search query", w.Title)
		}
	}

	widgets = dedupe.ByKey(s.log, widgets, func(w model.Widget) dedupe.Key {
		return dedupe.Key{Kind: string(w.Type), Title: dedupe.Normalize(w.Title)}
	})

	if len(widgets) > model.MaxWidgets {
		s.log.Warn("model returned too many widgets, truncating",
			"got", len(widgets), "max", model.MaxWidgets)
		widgets = widgets[:model.MaxWidgets]
	}
	if len(widgets) < model.MinWidgets {
		return nil, fmt.Errorf("only %d widgets after validation, need at least %d",
			len(widgets), model.MinWidgets)
	}
	return widgets, nil
}

// Fallback returns a deterministic widget mix when selection fails:
// weather and map for the user's location, events nearby, plus a video
// widget for the strongest pattern when there are enough patterns to
// justify it.
func (s *Selector) Fallback(patterns []model.EnrichedPattern) []model.Widget {
	first := "your activity"
	conf := 0.5
	if len(patterns) > 0 {
		first = patterns[0].Title
		conf = patterns[0].Confidence
	}

	widgets := []model.Widget{
		{Type: model.WidgetWeather, Title: "Local weather", PatternTitle: first, Confidence: conf, Location: s.location},
		{Type: model.WidgetMap, Title: "Around you", PatternTitle: first, Confidence: conf, Location: s.location},
		{Type: model.WidgetEvents, Title: "Upcoming nearby", PatternTitle: first, Confidence: conf, Location: s.location},
	}
	if len(patterns) >= 4 {
		widgets = append(widgets, model.Widget{
			Type:         model.WidgetVideo,
			Title:        "Watch: " + patterns[0].Title,
			PatternTitle: patterns[0].Title,
			Confidence:   patterns[0].Confidence,
			Query:        patterns[0].Title,
		})
	}
	return widgets
}

// Enrich fills each widget's live payload concurrently. A widget whose
// provider is missing or whose lookup fails after retries is returned
// unchanged; every input widget appears in the output, in order.
func (s *Selector) Enrich(ctx context.Context, widgets []model.Widget) []model.Widget {
	tasks := make([]func(context.Context) (model.Widget, error), len(widgets))
	for i, w := range widgets {
		w := w
		tasks[i] = func(ctx context.Context) (model.Widget, error) {
			return s.enrichOne(ctx, w)
		}
	}

	out := make([]model.Widget, len(widgets))
	for _, r := range fanout.All(ctx, tasks) {
		if r.Err != nil {
			s.log.Warn("widget enrichment failed, keeping placeholder",
				"type", widgets[r.Index].Type, "title", widgets[r.Index].Title, "error", r.Err)
			out[r.Index] = widgets[r.Index]
			continue
		}
		out[r.Index] = r.Value
	}
	return out
}

func (s *Selector) enrichOne(ctx context.Context, w model.Widget) (model.Widget, error) {
	switch w.Type {
	case model.WidgetWeather:
		if s.weather == nil {
			return w, nil
		}
		data, err := lookup(ctx, s.log, s.policy, "weather", func(ctx context.Context) (*model.WeatherData, error) {
			return s.weather.Current(ctx, w.Location)
		})
		if err != nil {
			return w, err
		}
		w.Weather = data

	case model.WidgetVideo:
		if s.video == nil {
			return w, nil
		}
		data, err := lookup(ctx, s.log, s.policy, "video", func(ctx context.Context) (*model.VideoData, error) {
			return s.video.Find(ctx, w.Query)
		})
		if err != nil {
			return w, err
		}
		w.Video = data

	case model.WidgetEvents:
		if s.events == nil {
			return w, nil
		}
		data, err := lookup(ctx, s.log, s.policy, "events", func(ctx context.Context) (*model.EventsData, error) {
			return s.events.Upcoming(ctx, w.Location)
		})
		if err != nil {
			return w, err
		}
		w.Events = data

	case model.WidgetMap:
		if s.geocode == nil {
			return w, nil
		}
		data, err := lookup(ctx, s.log, s.policy, "map", func(ctx context.Context) (*model.MapData, error) {
			return s.geocode.Locate(ctx, w.Location)
		})
		if err != nil {
			return w, err
		}
		w.Map = data
	}
	return w, nil
}

// lookup wraps one provider call in the retry policy, skipping retries for
// errors that cannot improve (4xx, no result). A non-retryable miss comes
// back as (nil, nil) and leaves the widget unenriched without an error.
func lookup[T any](ctx context.Context, log *slog.Logger, policy retry.Policy, name string, fn func(context.Context) (*T, error)) (*T, error) {
	return retry.Do(ctx, log, policy, name, func() (*T, error) {
		callCtx, cancel := context.WithTimeout(ctx, providers.LookupTimeout)
		defer cancel()

		data, err := fn(callCtx)
		if err != nil {
			if !providers.Retryable(err) {
				log.Warn("lookup has no usable result", "provider", name, "error", err)
				return nil, nil
			}
			return nil, err
		}
		return data, nil
	})
}

func summarizePatterns(patterns []model.EnrichedPattern) string {
	var b strings.Builder
	for _, p := range patterns {
		fmt.Fprintf(&b, "- %s: %s (keywords: %s)\n",
			p.Title, p.Description, strings.Join(p.Keywords, ", "))
	}
	return b.String()
}
