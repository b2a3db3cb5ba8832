package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/driftlab/driftboard/internal/model"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// BraveSearchClient queries the Brave web search API.
type BraveSearchClient struct {
	apiKey string
	client *http.Client
}

// NewBraveSearchClient creates a search client reading its key from env.
func NewBraveSearchClient(apiKeyEnv string) *BraveSearchClient {
	return &BraveSearchClient{
		apiKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: LookupTimeout},
	}
}

// IsConfigured checks if the API key is set.
func (b *BraveSearchClient) IsConfigured() bool {
	return b.apiKey != ""
}

// Search runs a web search and condenses the top hits into one result.
// Client errors other than 429 resolve to ErrNoResult; rate limits and
// server errors surface as retryable StatusErrors.
func (b *BraveSearchClient) Search(ctx context.Context, query string) (*model.SearchResult, error) {
	u := braveSearchURL + "?q=" + url.QueryEscape(query) + "&count=5"
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Provider: "brave-search", Code: resp.StatusCode}
		if !Retryable(se) {
			return nil, ErrNoResult
		}
		return nil, se
	}

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Web.Results) == 0 {
		return nil, ErrNoResult
	}

	var snippets []string
	var sources []string
	for _, r := range body.Web.Results {
		if r.Description != "" {
			snippets = append(snippets, r.Title+": "+r.Description)
		}
		sources = append(sources, r.URL)
	}

	return &model.SearchResult{
		Query:     query,
		Content:   strings.Join(snippets, "\n"),
		Sources:   sources,
		Relevance: relevanceForRank(len(body.Web.Results)),
	}, nil
}

// relevanceForRank maps hit count to a coarse relevance score in [0,1].
func relevanceForRank(hits int) float64 {
	switch {
	case hits >= 5:
		return 0.9
	case hits >= 3:
		return 0.7
	case hits >= 1:
		return 0.5
	default:
		return 0
	}
}
