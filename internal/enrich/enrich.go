// Package enrich is the search-enrichment stage: it generates search
// queries per pattern, issues them through the result cache and retry
// policy in small rate-limited batches, and attaches what comes back.
// Failures only ever degrade content quality — a pattern with zero results
// is still a valid pattern.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driftlab/driftboard/internal/fanout"
	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/model"
	"github.com/driftlab/driftboard/internal/providers"
	"github.com/driftlab/driftboard/internal/rescache"
	"github.com/driftlab/driftboard/internal/retry"
)

const queryPrompt = `You are generating web search queries to gather fresh context for a dashboard section.

The section covers this behavioral pattern:
Title: %s
Description: %s
Keywords: %s

Write up to %d short, specific web search queries that would surface current, useful information about this interest.

Respond with ONLY this JSON:
{"queries": ["query one", "query two"]}`

const (
	// cacheScope keys search results in the shared result cache.
	cacheScope = "search"

	maxQueriesPerPattern = 3
)

// Enricher runs the search-enrichment stage.
type Enricher struct {
	log      *slog.Logger
	provider llm.Provider
	search   providers.SearchProvider
	cache    *rescache.Cache
	policy   retry.Policy

	batchSize int
	pause     time.Duration

	extractor *providers.PageExtractor
}

// thinContentChars is the snippet length below which a result is worth a
// full page extraction.
const thinContentChars = 200

// NewEnricher creates a new search enricher. search may be nil when the
// provider is unconfigured; patterns then pass through unenriched.
func NewEnricher(log *slog.Logger, provider llm.Provider, search providers.SearchProvider,
	cache *rescache.Cache, policy retry.Policy, batchSize int, pause time.Duration) *Enricher {
	if batchSize < 1 {
		batchSize = 2
	}
	return &Enricher{
		log:       log,
		provider:  provider,
		search:    search,
		cache:     cache,
		policy:    policy,
		batchSize: batchSize,
		pause:     pause,
	}
}

// WithExtractor adds a page extractor used to flesh out thin search
// snippets with readable page text.
func (e *Enricher) WithExtractor(x *providers.PageExtractor) *Enricher {
	e.extractor = x
	return e
}

// Enrich attaches search results to each pattern. Per-item failures are
// absorbed; the returned slice always has one entry per input pattern, in
// input order.
func (e *Enricher) Enrich(ctx context.Context, patterns []model.Pattern) []model.EnrichedPattern {
	enriched := Fallback(patterns)
	if e.search == nil {
		e.log.Warn("search provider not configured, patterns stay unenriched")
		return enriched
	}

	queries := e.generateQueries(ctx, patterns)

	// Flatten so the batch throttle applies across the whole stage, then
	// re-associate by pattern index.
	type job struct {
		patternIdx int
		query      string
	}
	var jobs []job
	for i, qs := range queries {
		for _, q := range qs {
			jobs = append(jobs, job{patternIdx: i, query: q})
		}
	}

	tasks := make([]func(context.Context) (*model.SearchResult, error), len(jobs))
	for i, j := range jobs {
		query := j.query
		tasks[i] = func(ctx context.Context) (*model.SearchResult, error) {
			return e.searchOne(ctx, query)
		}
	}

	results := fanout.AllBatched(ctx, tasks, e.batchSize, e.pause)
	for _, r := range results {
		j := jobs[r.Index]
		if r.Err != nil {
			e.log.Warn("search failed, pattern degrades", "query", j.query, "error", r.Err)
			continue
		}
		if r.Value == nil {
			continue
		}
		ep := &enriched[j.patternIdx]
		if len(ep.Results) < model.MaxSearchResultsPerPattern {
			ep.Results = append(ep.Results, *r.Value)
		}
	}
	return enriched
}

// Fallback returns the patterns with zero search results attached.
func Fallback(patterns []model.Pattern) []model.EnrichedPattern {
	enriched := make([]model.EnrichedPattern, len(patterns))
	for i, p := range patterns {
		enriched[i] = model.EnrichedPattern{Pattern: p}
	}
	return enriched
}

// searchOne resolves a single query: cache first, then the provider under
// the retry policy. A cache hit never touches the network. Non-retryable
// provider answers resolve to nil without error.
func (e *Enricher) searchOne(ctx context.Context, query string) (*model.SearchResult, error) {
	if e.cache != nil {
		if data, ok := e.cache.Get(cacheScope, query); ok {
			var cached model.SearchResult
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
			// Corrupt entry: drop it and fall through to a live lookup.
			e.cache.Delete(cacheScope, query)
		}
	}

	result, err := retry.Do(ctx, e.log, e.policy, "search:"+query, func() (*model.SearchResult, error) {
		r, err := e.search.Search(ctx, query)
		if err != nil && !providers.Retryable(err) {
			e.log.Info("search has no usable answer", "query", query, "reason", err)
			return nil, nil
		}
		return r, err
	})
	if err != nil || result == nil {
		return nil, err
	}

	// Snippet-only answers read poorly on cards; pull the page text when a
	// source URL is available. Extraction failures keep the snippet.
	if e.extractor != nil && len(result.Content) < thinContentChars && len(result.Sources) > 0 {
		if text := e.extractor.Extract(ctx, result.Sources[0]); text != "" {
			result.Content = text
		}
	}

	if e.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			e.cache.Set(cacheScope, query, data, 0)
		}
	}
	return result, nil
}

// generateQueries asks the LLM for queries per pattern concurrently. A
// pattern whose generation fails gets deterministic fallback queries built
// from its title and keywords.
func (e *Enricher) generateQueries(ctx context.Context, patterns []model.Pattern) [][]string {
	tasks := make([]func(context.Context) ([]string, error), len(patterns))
	for i, p := range patterns {
		p := p
		tasks[i] = func(ctx context.Context) ([]string, error) {
			return e.queriesForPattern(ctx, p)
		}
	}

	queries := make([][]string, len(patterns))
	for _, r := range fanout.All(ctx, tasks) {
		if r.Err != nil || len(r.Value) == 0 {
			queries[r.Index] = FallbackQueries(patterns[r.Index])
			if r.Err != nil {
				e.log.Warn("query generation failed, using fallback queries",
					"pattern", patterns[r.Index].Title, "error", r.Err)
			}
			continue
		}
		queries[r.Index] = r.Value
	}
	return queries
}

func (e *Enricher) queriesForPattern(ctx context.Context, p model.Pattern) ([]string, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}
	prompt := fmt.Sprintf(queryPrompt, p.Title, p.Description,
		strings.Join(p.Keywords, ", "), maxQueriesPerPattern)

	return retry.Do(ctx, e.log, e.policy, "generate-queries", func() ([]string, error) {
		var parsed struct {
			Queries []string `json:"queries"`
		}
		if err := llm.GenerateObject(ctx, e.provider, prompt, 256, &parsed); err != nil {
			return nil, err
		}
		var out []string
		for _, q := range parsed.Queries {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			out = append(out, q)
			if len(out) == maxQueriesPerPattern {
				break
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("model returned no queries")
		}
		return out, nil
	})
}

// FallbackQueries derives deterministic queries from the pattern itself.
func FallbackQueries(p model.Pattern) []string {
	queries := []string{p.Title}
	if len(p.Keywords) > 0 {
		queries = append(queries, p.Keywords[0]+" latest")
	}
	return queries
}
