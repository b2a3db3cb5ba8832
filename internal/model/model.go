package model

import (
	"fmt"
	"regexp"
	"time"
)

// Cardinality bounds for a completed dashboard. Fallback producers must
// satisfy these independently, so a run never finishes out of range.
const (
	MinPatterns = 4
	MaxPatterns = 5

	MinCards = 4
	MaxCards = 10

	MinWidgets = 3
	MaxWidgets = 6

	MaxSearchResultsPerPattern = 5
)

// Pattern is a detected behavioral theme driving downstream generation.
type Pattern struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Confidence       float64  `json:"confidence"`
	Keywords         []string `json:"keywords"`
	InteractionCount int      `json:"interaction_count"`
}

// Validate checks the invariants a pattern must satisfy before it is
// committed to a run.
func (p *Pattern) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("pattern has empty title")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %q: confidence %.2f out of [0,1]", p.Title, p.Confidence)
	}
	if p.InteractionCount < 0 {
		return fmt.Errorf("pattern %q: negative interaction count", p.Title)
	}
	return nil
}

// SearchResult is one external search outcome attached to a pattern.
type SearchResult struct {
	Query     string   `json:"query"`
	Content   string   `json:"content"`
	Sources   []string `json:"sources"`
	Relevance float64  `json:"relevance"`
}

// EnrichedPattern is a pattern plus the search results gathered for it.
// Immutable once the search-enrichment stage commits it.
type EnrichedPattern struct {
	Pattern
	Results []SearchResult `json:"results"`
}

// CardSize selects the word-count band a content card must hit.
type CardSize string

const (
	CardSmall  CardSize = "small"
	CardMedium CardSize = "medium"
	CardLarge  CardSize = "large"
)

// WordBand returns the inclusive word-count band for a card size.
func (s CardSize) WordBand() (min, max int) {
	switch s {
	case CardSmall:
		return 40, 80
	case CardLarge:
		return 160, 300
	default:
		return 80, 160
	}
}

// ContentCard is a written piece of dashboard content tied to a pattern.
type ContentCard struct {
	Title        string   `json:"title"`
	PatternTitle string   `json:"pattern_title"`
	Size         CardSize `json:"size"`
	Body         string   `json:"body"` // markdown
	Confidence   float64  `json:"confidence"`
}

func (c *ContentCard) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("card has empty title")
	}
	if c.PatternTitle == "" {
		return fmt.Errorf("card %q: missing pattern reference", c.Title)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("card %q: confidence %.2f out of [0,1]", c.Title, c.Confidence)
	}
	switch c.Size {
	case CardSmall, CardMedium, CardLarge:
	default:
		return fmt.Errorf("card %q: unknown size %q", c.Title, c.Size)
	}
	return nil
}

// WidgetType enumerates the closed set of widget variants.
type WidgetType string

const (
	WidgetWeather WidgetType = "weather"
	WidgetVideo   WidgetType = "video"
	WidgetEvents  WidgetType = "events"
	WidgetMap     WidgetType = "map"
)

// WidgetTypes lists all valid widget types.
var WidgetTypes = []WidgetType{WidgetWeather, WidgetVideo, WidgetEvents, WidgetMap}

// ValidWidgetType reports whether t names a known variant.
func ValidWidgetType(t WidgetType) bool {
	for _, w := range WidgetTypes {
		if t == w {
			return true
		}
	}
	return false
}

// WeatherData is the live payload for a weather widget.
type WeatherData struct {
	Location  string  `json:"location"`
	TempC     float64 `json:"temp_c"`
	Condition string  `json:"condition"`
}

// VideoData is the live payload for a video widget.
type VideoData struct {
	Query        string `json:"query"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ChannelTitle string `json:"channel_title"`
}

// Event is a single upcoming event inside an events widget.
type Event struct {
	Name  string `json:"name"`
	Venue string `json:"venue"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

// EventsData is the live payload for an events widget.
type EventsData struct {
	Location string  `json:"location"`
	Events   []Event `json:"events"`
}

// MapData is the live payload for a map widget.
type MapData struct {
	Location string  `json:"location"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Label    string  `json:"label"`
}

// Widget is a tagged union over the widget variants. Exactly the payload
// matching Type may be set; all payloads nil means the widget is selected
// but not yet enriched (or enrichment failed and it renders a placeholder).
type Widget struct {
	Type         WidgetType `json:"type"`
	Title        string     `json:"title"`
	PatternTitle string     `json:"pattern_title"`
	Confidence   float64    `json:"confidence"`

	// Selection hints used by enrichment.
	Query    string `json:"query,omitempty"`
	Location string `json:"location,omitempty"`

	Weather *WeatherData `json:"weather,omitempty"`
	Video   *VideoData   `json:"video,omitempty"`
	Events  *EventsData  `json:"events,omitempty"`
	Map     *MapData     `json:"map,omitempty"`
}

func (w *Widget) Validate() error {
	if !ValidWidgetType(w.Type) {
		return fmt.Errorf("widget %q: unknown type %q", w.Title, w.Type)
	}
	if w.Title == "" {
		return fmt.Errorf("widget has empty title")
	}
	if w.PatternTitle == "" {
		return fmt.Errorf("widget %q: missing pattern reference", w.Title)
	}
	if w.Confidence < 0 || w.Confidence > 1 {
		return fmt.Errorf("widget %q: confidence %.2f out of [0,1]", w.Title, w.Confidence)
	}
	if err := w.validatePayload(); err != nil {
		return err
	}
	return nil
}

func (w *Widget) validatePayload() error {
	set := 0
	if w.Weather != nil {
		set++
		if w.Type != WidgetWeather {
			return fmt.Errorf("widget %q: weather payload on %s widget", w.Title, w.Type)
		}
	}
	if w.Video != nil {
		set++
		if w.Type != WidgetVideo {
			return fmt.Errorf("widget %q: video payload on %s widget", w.Title, w.Type)
		}
	}
	if w.Events != nil {
		set++
		if w.Type != WidgetEvents {
			return fmt.Errorf("widget %q: events payload on %s widget", w.Title, w.Type)
		}
	}
	if w.Map != nil {
		set++
		if w.Type != WidgetMap {
			return fmt.Errorf("widget %q: map payload on %s widget", w.Title, w.Type)
		}
	}
	if set > 1 {
		return fmt.Errorf("widget %q: multiple payloads set", w.Title)
	}
	return nil
}

// Enriched reports whether the widget carries its live payload.
func (w *Widget) Enriched() bool {
	return w.Weather != nil || w.Video != nil || w.Events != nil || w.Map != nil
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Palette is the color set a generated theme resolves to.
type Palette struct {
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
	Muted      string `json:"muted"`
	Accent     string `json:"accent"`
	AccentText string `json:"accent_text"`
}

func (p *Palette) Validate() error {
	for name, c := range map[string]string{
		"background":  p.Background,
		"surface":     p.Surface,
		"text":        p.Text,
		"muted":       p.Muted,
		"accent":      p.Accent,
		"accent_text": p.AccentText,
	} {
		if !hexColorRe.MatchString(c) {
			return fmt.Errorf("palette %s: %q is not a #RRGGBB color", name, c)
		}
	}
	return nil
}

// Theme names a palette and the mood the LLM chose it for.
type Theme struct {
	Name    string  `json:"name"`
	Mood    string  `json:"mood"`
	Palette Palette `json:"palette"`
}

func (t *Theme) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("theme has empty name")
	}
	return t.Palette.Validate()
}

// Dashboard is the final assembled artifact of a pipeline run.
type Dashboard struct {
	RunID       string            `json:"run_id"`
	UserID      string            `json:"user_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Theme       Theme             `json:"theme"`
	Patterns    []EnrichedPattern `json:"patterns"`
	Cards       []ContentCard     `json:"cards"`
	Widgets     []Widget          `json:"widgets"`
}

// Validate enforces the full artifact invariants: cardinality bounds and
// confidence ranges, regardless of how many stages degraded.
func (d *Dashboard) Validate() error {
	if n := len(d.Patterns); n < MinPatterns || n > MaxPatterns {
		return fmt.Errorf("dashboard has %d patterns, want %d-%d", n, MinPatterns, MaxPatterns)
	}
	if n := len(d.Cards); n < MinCards || n > MaxCards {
		return fmt.Errorf("dashboard has %d cards, want %d-%d", n, MinCards, MaxCards)
	}
	if n := len(d.Widgets); n < MinWidgets || n > MaxWidgets {
		return fmt.Errorf("dashboard has %d widgets, want %d-%d", n, MinWidgets, MaxWidgets)
	}
	if err := d.Theme.Validate(); err != nil {
		return err
	}
	for i := range d.Patterns {
		if err := d.Patterns[i].Validate(); err != nil {
			return err
		}
		if n := len(d.Patterns[i].Results); n > MaxSearchResultsPerPattern {
			return fmt.Errorf("pattern %q has %d search results, max %d",
				d.Patterns[i].Title, n, MaxSearchResultsPerPattern)
		}
	}
	for i := range d.Cards {
		if err := d.Cards[i].Validate(); err != nil {
			return err
		}
	}
	for i := range d.Widgets {
		if err := d.Widgets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ClampConfidence forces v into [0,1]. LLM output occasionally drifts just
// outside the range; clamping beats rejecting a whole stage for it.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
