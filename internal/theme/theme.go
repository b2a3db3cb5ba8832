// Package theme is the theme-generation stage: it asks the LLM for a
// palette matching the user's patterns and falls back to a fixed neutral
// palette. Every palette, generated or fallback, must pass a WCAG AA
// contrast check before it is committed.
package theme

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/retry"
)

const themePrompt = `You are choosing a visual theme for a personalized dashboard.

The user's detected behavioral patterns:
%s

Pick a palette that suits these interests. Text must be readable: body text on background and surface needs strong contrast, accent text on accent likewise.

Respond with ONLY this JSON:
{
    "name": "Short theme name",
    "mood": "one or two words",
    "palette": {
        "background": "#RRGGBB",
        "surface": "#RRGGBB",
        "text": "#RRGGBB",
        "muted": "#RRGGBB",
        "accent": "#RRGGBB",
        "accent_text": "#RRGGBB"
    }
}`

// aaContrast is the WCAG AA minimum contrast ratio for normal text.
const aaContrast = 4.5

// NeutralPalette is the deterministic fallback palette. The pairs
// text/background, text/surface, and accent_text/accent all meet WCAG AA.
var NeutralPalette = model.Palette{
	Background: "#F5F5F4",
	Surface:    "#FFFFFF",
	Text:       "#1C1917",
	Muted:      "#57534E",
	Accent:     "#2563EB",
	AccentText: "#FFFFFF",
}

// Themer generates dashboard themes.
type Themer struct {
	log      *slog.Logger
	provider llm.Provider
	policy   retry.Policy
}

// NewThemer creates a new theme generator.
func NewThemer(log *slog.Logger, provider llm.Provider, policy retry.Policy) *Themer {
	return &Themer{log: log, provider: provider, policy: policy}
}

// Generate asks the LLM for a theme. Palettes that fail validation or the
// contrast check are rejected and retried; after exhaustion the caller
// substitutes Fallback.
func (t *Themer) Generate(ctx context.Context, patterns []model.Pattern) (*model.Theme, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	var titles []string
	for _, p := range patterns {
		titles = append(titles, "- "+p.Title+": "+p.Description)
	}
	prompt := fmt.Sprintf(themePrompt, strings.Join(titles, "\n"))

	return retry.Do(ctx, t.log, t.policy, "generate-theme", func() (*model.Theme, error) {
		var theme model.Theme
		if err := llm.GenerateObject(ctx, t.provider, prompt, 512, &theme); err != nil {
			return nil, err
		}
		if err := theme.Validate(); err != nil {
			return nil, err
		}
		if err := CheckContrast(theme.Palette); err != nil {
			return nil, err
		}
		return &theme, nil
	})
}

// Fallback returns the fixed neutral theme.
func Fallback() *model.Theme {
	return &model.Theme{
		Name:    "Neutral",
		Mood:    "calm",
		Palette: NeutralPalette,
	}
}

// CheckContrast verifies the palette's readable pairs meet WCAG AA.
func CheckContrast(p model.Palette) error {
	pairs := []struct {
		name   string
		fg, bg string
	}{
		{"text on background", p.Text, p.Background},
		{"text on surface", p.Text, p.Surface},
		{"accent text on accent", p.AccentText, p.Accent},
	}
	for _, pair := range pairs {
		ratio, err := ContrastRatio(pair.fg, pair.bg)
		if err != nil {
			return err
		}
		if ratio < aaContrast {
			return fmt.Errorf("%s contrast %.2f below AA minimum %.1f", pair.name, ratio, aaContrast)
		}
	}
	return nil
}

// ContrastRatio computes the WCAG contrast ratio between two #RRGGBB colors.
func ContrastRatio(fg, bg string) (float64, error) {
	lf, err := relativeLuminance(fg)
	if err != nil {
		return 0, err
	}
	lb, err := relativeLuminance(bg)
	if err != nil {
		return 0, err
	}
	lighter, darker := math.Max(lf, lb), math.Min(lf, lb)
	return (lighter + 0.05) / (darker + 0.05), nil
}

func relativeLuminance(hex string) (float64, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("invalid color %q", hex)
	}
	var channels [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid color %q: %w", hex, err)
		}
		c := float64(v) / 255.0
		if c <= 0.04045 {
			c = c / 12.92
		} else {
			c = math.Pow((c+0.055)/1.055, 2.4)
		}
		channels[i] = c
	}
	return 0.2126*channels[0] + 0.7152*channels[1] + 0.0722*channels[2], nil
}
