// Package content is the content-writing stage: one concurrent LLM call
// per card, with a per-card filler fallback that still hits the size's
// word-count band. A run always ends with 4-10 cards no matter how many
// individual writes fail.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driftlab/driftboard/internal/fanout"
	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/retry"
)

const cardPrompt = `You are writing one card for a personalized dashboard.

The card covers this behavioral pattern:
Title: %s
Description: %s

Fresh context gathered from the web (may be empty):
%s

Write a %s card: %d-%d words of engaging, specific markdown prose the user would actually want to read. No headings, no bullet lists, no preamble about being an AI.

Respond with ONLY this JSON:
{"title": "Card title", "body": "The markdown body"}`

// Writer runs the content-writing stage.
type Writer struct {
	log      *slog.Logger
	provider llm.Provider
	policy   retry.Policy
}

// NewWriter creates a new content writer.
func NewWriter(log *slog.Logger, provider llm.Provider, policy retry.Policy) *Writer {
	return &Writer{log: log, provider: provider, policy: policy}
}

// cardPlan is one card to be written: which pattern, which size.
type cardPlan struct {
	pattern model.EnrichedPattern
	size    model.CardSize
}

// planCards decides how many cards to write and at which sizes: two per
// pattern alternating large/medium, capped at the dashboard maximum.
func planCards(patterns []model.EnrichedPattern) []cardPlan {
	sizes := []model.CardSize{model.CardLarge, model.CardMedium, model.CardSmall}
	var plans []cardPlan
	for i, p := range patterns {
		for j := 0; j < 2; j++ {
			if len(plans) == model.MaxCards {
				return plans
			}
			plans = append(plans, cardPlan{pattern: p, size: sizes[(i+j)%len(sizes)]})
		}
	}
	return plans
}

// WriteCards writes every planned card concurrently. A card whose write
// fails after retries is replaced by its filler fallback, so the output
// count always equals the plan count.
func (w *Writer) WriteCards(ctx context.Context, patterns []model.EnrichedPattern) []model.ContentCard {
	plans := planCards(patterns)

	tasks := make([]func(context.Context) (model.ContentCard, error), len(plans))
	for i, plan := range plans {
		plan := plan
		tasks[i] = func(ctx context.Context) (model.ContentCard, error) {
			return w.writeCard(ctx, plan)
		}
	}

	cards := make([]model.ContentCard, len(plans))
	for _, r := range fanout.All(ctx, tasks) {
		if r.Err != nil {
			w.log.Warn("card write failed, using filler",
				"pattern", plans[r.Index].pattern.Title, "error", r.Err)
			cards[r.Index] = FallbackCard(plans[r.Index].pattern.Pattern, plans[r.Index].size)
			continue
		}
		cards[r.Index] = r.Value
	}
	return cards
}

// Fallback synthesizes a full set of filler cards, used when the whole
// stage cannot run (e.g. no provider at all).
func Fallback(patterns []model.EnrichedPattern) []model.ContentCard {
	plans := planCards(patterns)
	cards := make([]model.ContentCard, len(plans))
	for i, plan := range plans {
		cards[i] = FallbackCard(plan.pattern.Pattern, plan.size)
	}
	return cards
}

func (w *Writer) writeCard(ctx context.Context, plan cardPlan) (model.ContentCard, error) {
	if w.provider == nil {
		return model.ContentCard{}, fmt.Errorf("no LLM provider available")
	}

	minWords, maxWords := plan.size.WordBand()
	prompt := fmt.Sprintf(cardPrompt,
		plan.pattern.Title, plan.pattern.Description,
		contextFromResults(plan.pattern.Results),
		plan.size, minWords, maxWords,
	)

	return retry.Do(ctx, w.log, w.policy, "write-card", func() (model.ContentCard, error) {
		var parsed struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if err := llm.GenerateObject(ctx, w.provider, prompt, 1024, &parsed); err != nil {
			return model.ContentCard{}, err
		}
		if strings.TrimSpace(parsed.Title) == "" || strings.TrimSpace(parsed.Body) == "" {
			return model.ContentCard{}, fmt.Errorf("model returned an empty card")
		}
		card := model.ContentCard{
			Title:        strings.TrimSpace(parsed.Title),
			PatternTitle: plan.pattern.Title,
			Size:         plan.size,
			Body:         strings.TrimSpace(parsed.Body),
			Confidence:   plan.pattern.Confidence,
		}
		if err := card.Validate(); err != nil {
			return model.ContentCard{}, err
		}
		return card, nil
	})
}

func contextFromResults(results []model.SearchResult) string {
	var parts []string
	for _, r := range results {
		if r.Content != "" {
			parts = append(parts, r.Content)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "\n---\n")
}

// fillerSentences cycle to pad fallback cards up to their word band.
var fillerSentences = []string{
	"This area of your activity has been steady lately, and it keeps showing up across your recent sessions.",
	"We could not reach the usual sources for fresh detail this time, so this card sticks to what your own history shows.",
	"Based on the interactions we have on record, this remains one of the themes you return to most often.",
	"Check back after the next refresh for a fuller picture with up-to-date context from the web.",
}

// FallbackCard synthesizes a filler card that meets the size's word band
// and carries all required fields.
func FallbackCard(pattern model.Pattern, size model.CardSize) model.ContentCard {
	minWords, _ := size.WordBand()

	intro := fmt.Sprintf("**%s** — %s", pattern.Title, pattern.Description)
	words := len(strings.Fields(intro))

	var b strings.Builder
	b.WriteString(intro)
	for i := 0; words < minWords; i++ {
		sentence := fillerSentences[i%len(fillerSentences)]
		b.WriteString(" ")
		b.WriteString(sentence)
		words += len(strings.Fields(sentence))
	}

	return model.ContentCard{
		Title:        pattern.Title,
		PatternTitle: pattern.Title,
		Size:         size,
		Body:         b.String(),
		Confidence:   pattern.Confidence,
	}
}
