// Package detect is the pattern-detection stage: it turns raw interactions
// into 4-5 behavioral patterns, via the LLM when possible and a
// deterministic count-based fallback otherwise.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/retry"
	"github.com/driftlab/driftboard/internal/store"
)

const detectPrompt = `You are analyzing a user's recent activity to find behavioral patterns for a personalized dashboard.

Activity summary by category:
%s

Recent items (newest first):
%s

Identify exactly %d distinct behavioral patterns. A pattern is a recurring theme in what the user does, reads, or listens to — specific enough to search the web for, broad enough to cover several interactions.

Respond with ONLY this JSON:
{
    "patterns": [
        {
            "title": "Short pattern name",
            "description": "One or two sentences describing the behavior",
            "confidence": 0.0-1.0,
            "keywords": ["keyword1", "keyword2"],
            "interaction_count": <number of interactions supporting this pattern>
        }
    ]
}`

// Detector detects behavioral patterns from interactions.
type Detector struct {
	log      *slog.Logger
	provider llm.Provider
	policy   retry.Policy
}

// NewDetector creates a new pattern detector.
func NewDetector(log *slog.Logger, provider llm.Provider, policy retry.Policy) *Detector {
	return &Detector{log: log, provider: provider, policy: policy}
}

// Detect asks the LLM for patterns, retrying on any failure including
// malformed output. Returns an error once retries are exhausted; the caller
// substitutes Fallback.
func (d *Detector) Detect(ctx context.Context, interactions []store.Interaction) ([]model.Pattern, error) {
	if d.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	prompt := fmt.Sprintf(detectPrompt,
		summarizeCategories(interactions),
		summarizeRecent(interactions, 25),
		model.MaxPatterns,
	)

	return retry.Do(ctx, d.log, d.policy, "detect-patterns", func() ([]model.Pattern, error) {
		var parsed struct {
			Patterns []model.Pattern `json:"patterns"`
		}
		if err := llm.GenerateObject(ctx, d.provider, prompt, 1024, &parsed); err != nil {
			return nil, err
		}
		return validatePatterns(parsed.Patterns)
	})
}

// validatePatterns enforces the stage's output contract: 4-5 patterns with
// in-range fields. Confidence drift is clamped; too few patterns is a hard
// reject so a re-sample (or the fallback) can do better.
func validatePatterns(patterns []model.Pattern) ([]model.Pattern, error) {
	if len(patterns) > model.MaxPatterns {
		patterns = patterns[:model.MaxPatterns]
	}
	if len(patterns) < model.MinPatterns {
		return nil, fmt.Errorf("model returned %d patterns, need at least %d", len(patterns), model.MinPatterns)
	}
	for i := range patterns {
		patterns[i].Confidence = model.ClampConfidence(patterns[i].Confidence)
		if patterns[i].InteractionCount < 0 {
			patterns[i].InteractionCount = 0
		}
		if err := patterns[i].Validate(); err != nil {
			return nil, err
		}
	}
	return patterns, nil
}

// fallbackThemes pads the fallback when a user has fewer than four active
// categories.
var fallbackThemes = []string{"browsing", "reading", "listening", "watching"}

// Fallback synthesizes exactly four patterns from interaction category
// counts. Deterministic and offline; always satisfies the pattern bounds.
func Fallback(interactions []store.Interaction) []model.Pattern {
	counts := make(map[string]int)
	for _, in := range interactions {
		counts[in.Category]++
	}

	categories := make([]string, 0, len(counts))
	for cat := range counts {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(a, b int) bool {
		if counts[categories[a]] != counts[categories[b]] {
			return counts[categories[a]] > counts[categories[b]]
		}
		return categories[a] < categories[b]
	})

	for _, theme := range fallbackThemes {
		if len(categories) >= model.MinPatterns {
			break
		}
		if _, exists := counts[theme]; !exists {
			categories = append(categories, theme)
		}
	}
	categories = categories[:model.MinPatterns]

	patterns := make([]model.Pattern, 0, model.MinPatterns)
	for _, cat := range categories {
		patterns = append(patterns, model.Pattern{
			Title:            "Frequent " + cat + " activity",
			Description:      fmt.Sprintf("The user regularly engages with %s content.", cat),
			Confidence:       0.5,
			Keywords:         []string{cat},
			InteractionCount: counts[cat],
		})
	}
	return patterns
}

func summarizeCategories(interactions []store.Interaction) string {
	counts := make(map[string]int)
	for _, in := range interactions {
		counts[in.Category]++
	}
	cats := make([]string, 0, len(counts))
	for cat := range counts {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(a, b int) bool { return counts[cats[a]] > counts[cats[b]] })

	var lines []string
	for _, cat := range cats {
		lines = append(lines, fmt.Sprintf("- %s: %d interactions", cat, counts[cat]))
	}
	if len(lines) == 0 {
		return "No activity recorded"
	}
	return strings.Join(lines, "\n")
}

func summarizeRecent(interactions []store.Interaction, limit int) string {
	var lines []string
	for i, in := range interactions {
		if i >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s (%s)", in.Category, in.Action, in.Subject, in.OccurredAt))
	}
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}
