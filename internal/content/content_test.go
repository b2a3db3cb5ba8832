package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/retry"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func enrichedPatterns(n int) []model.EnrichedPattern {
	var out []model.EnrichedPattern
	for i := 0; i < n; i++ {
		out = append(out, model.EnrichedPattern{
			Pattern: model.Pattern{
				Title:            fmt.Sprintf("Pattern %d", i),
				Description:      "A recurring interest the user keeps coming back to across sessions.",
				Confidence:       0.8,
				Keywords:         []string{"kw"},
				InteractionCount: 3,
			},
		})
	}
	return out
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func TestWriteCardsFromModel(t *testing.T) {
	provider := &mockProvider{response: `{"title": "Generated title", "body": "Generated body text."}`}
	w := NewWriter(testLogger(), provider, retry.NoDelay(3))

	cards := w.WriteCards(context.Background(), enrichedPatterns(4))

	if len(cards) != 8 {
		t.Fatalf("expected 8 cards for 4 patterns, got %d", len(cards))
	}
	for i, c := range cards {
		if c.Title != "Generated title" {
			t.Errorf("card %d: expected generated title, got %q", i, c.Title)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("card %d invalid: %v", i, err)
		}
	}
}

func TestWriteCardsCapsAtMax(t *testing.T) {
	provider := &mockProvider{response: `{"title": "T", "body": "B"}`}
	w := NewWriter(testLogger(), provider, retry.NoDelay(1))

	cards := w.WriteCards(context.Background(), enrichedPatterns(7))

	if len(cards) != model.MaxCards {
		t.Fatalf("expected %d cards, got %d", model.MaxCards, len(cards))
	}
}

func TestWriteCardsFillerOnFailure(t *testing.T) {
	provider := &mockProvider{err: errors.New("model offline")}
	w := NewWriter(testLogger(), provider, retry.NoDelay(3))

	cards := w.WriteCards(context.Background(), enrichedPatterns(4))

	if len(cards) != 8 {
		t.Fatalf("expected 8 filler cards, got %d", len(cards))
	}
	for i, c := range cards {
		if err := c.Validate(); err != nil {
			t.Errorf("filler card %d invalid: %v", i, err)
		}
		min, max := c.Size.WordBand()
		if n := wordCount(c.Body); n < min || n > max {
			t.Errorf("filler card %d (%s): %d words outside band [%d, %d]", i, c.Size, n, min, max)
		}
	}
}

func TestWriteCardRetriesThenFills(t *testing.T) {
	provider := &mockProvider{err: errors.New("model offline")}
	w := NewWriter(testLogger(), provider, retry.NoDelay(3))

	w.WriteCards(context.Background(), enrichedPatterns(1))

	// 1 pattern -> 2 cards, each retried 3 times.
	if provider.calls != 6 {
		t.Errorf("expected 6 generate calls, got %d", provider.calls)
	}
}

func TestWriteCardsNilProvider(t *testing.T) {
	w := NewWriter(testLogger(), nil, retry.NoDelay(1))

	cards := w.WriteCards(context.Background(), enrichedPatterns(4))

	if len(cards) != 8 {
		t.Fatalf("expected 8 cards from nil provider, got %d", len(cards))
	}
	for i, c := range cards {
		if err := c.Validate(); err != nil {
			t.Errorf("card %d invalid: %v", i, err)
		}
	}
}

func TestFallbackMeetsWordBands(t *testing.T) {
	for _, size := range []model.CardSize{model.CardSmall, model.CardMedium, model.CardLarge} {
		card := FallbackCard(model.Pattern{
			Title:       "Reading about space",
			Description: "Frequent visits to astronomy articles.",
			Confidence:  0.5,
		}, size)

		min, max := size.WordBand()
		if n := wordCount(card.Body); n < min || n > max {
			t.Errorf("%s filler: %d words outside band [%d, %d]", size, n, min, max)
		}
		if err := card.Validate(); err != nil {
			t.Errorf("%s filler invalid: %v", size, err)
		}
	}
}

func TestFallbackSetMatchesPlan(t *testing.T) {
	cards := Fallback(enrichedPatterns(5))
	if len(cards) != 10 {
		t.Fatalf("expected 10 fallback cards for 5 patterns, got %d", len(cards))
	}
	if cards[0].PatternTitle != "Pattern 0" {
		t.Errorf("fallback cards lost pattern order: first is %q", cards[0].PatternTitle)
	}
}
