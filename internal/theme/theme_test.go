package theme

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/retry"
)

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

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func somePatterns() []model.Pattern {
	return []model.Pattern{
		{Title: "Jazz listening", Description: "Listens to jazz", Confidence: 0.9},
		{Title: "Trail running", Description: "Runs trails", Confidence: 0.7},
	}
}

func themeJSON(palette model.Palette) string {
	data, _ := json.Marshal(model.Theme{Name: "Test", Mood: "warm", Palette: palette})
	return string(data)
}

func TestGenerateAcceptsReadablePalette(t *testing.T) {
	mock := &mockProvider{response: themeJSON(NeutralPalette)}
	th := NewThemer(testLogger(), mock, retry.NoDelay(3))

	theme, err := th.Generate(context.Background(), somePatterns())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if theme.Name != "Test" {
		t.Errorf("expected theme name Test, got %q", theme.Name)
	}
}

func TestGenerateRejectsLowContrast(t *testing.T) {
	// Light gray text on white fails AA badly.
	bad := model.Palette{
		Background: "#FFFFFF",
		Surface:    "#FFFFFF",
		Text:       "#DDDDDD",
		Muted:      "#EEEEEE",
		Accent:     "#FFFFFF",
		AccentText: "#FEFEFE",
	}
	mock := &mockProvider{response: themeJSON(bad)}
	th := NewThemer(testLogger(), mock, retry.NoDelay(2))

	if _, err := th.Generate(context.Background(), somePatterns()); err == nil {
		t.Fatal("expected low-contrast palette to be rejected")
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", mock.calls)
	}
}

func TestGenerateRejectsMalformedColors(t *testing.T) {
	bad := model.Palette{
		Background: "cornflower blue",
		Surface:    "#FFFFFF",
		Text:       "#1C1917",
		Muted:      "#57534E",
		Accent:     "#2563EB",
		AccentText: "#FFFFFF",
	}
	mock := &mockProvider{response: themeJSON(bad)}
	th := NewThemer(testLogger(), mock, retry.NoDelay(1))

	if _, err := th.Generate(context.Background(), somePatterns()); err == nil {
		t.Fatal("expected malformed color to be rejected")
	}
}

func TestFallbackExactPalette(t *testing.T) {
	theme := Fallback()

	if theme.Palette.Background != "#F5F5F4" {
		t.Errorf("background: got %q", theme.Palette.Background)
	}
	if theme.Palette.Surface != "#FFFFFF" {
		t.Errorf("surface: got %q", theme.Palette.Surface)
	}
	if theme.Palette.Text != "#1C1917" {
		t.Errorf("text: got %q", theme.Palette.Text)
	}
	if theme.Palette.Muted != "#57534E" {
		t.Errorf("muted: got %q", theme.Palette.Muted)
	}
	if theme.Palette.Accent != "#2563EB" {
		t.Errorf("accent: got %q", theme.Palette.Accent)
	}
	if theme.Palette.AccentText != "#FFFFFF" {
		t.Errorf("accent_text: got %q", theme.Palette.AccentText)
	}
}

func TestFallbackMeetsAA(t *testing.T) {
	if err := CheckContrast(NeutralPalette); err != nil {
		t.Errorf("fallback palette fails contrast check: %v", err)
	}
	if err := Fallback().Validate(); err != nil {
		t.Errorf("fallback theme invalid: %v", err)
	}
}

func TestContrastRatioKnownValues(t *testing.T) {
	// Black on white is the maximum, 21:1.
	ratio, err := ContrastRatio("#000000", "#FFFFFF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio < 20.9 || ratio > 21.1 {
		t.Errorf("black on white: expected ~21, got %.2f", ratio)
	}

	// Same color is 1:1.
	ratio, _ = ContrastRatio("#808080", "#808080")
	if ratio < 0.99 || ratio > 1.01 {
		t.Errorf("same color: expected 1, got %.2f", ratio)
	}
}
