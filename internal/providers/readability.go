package providers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

const maxExtractedChars = 4000

// PageExtractor pulls readable text out of a web page, used to flesh out
// thin search snippets before content writing.
type PageExtractor struct {
	client *http.Client
}

// NewPageExtractor creates a page extractor.
func NewPageExtractor() *PageExtractor {
	return &PageExtractor{
		client: &http.Client{
			Timeout: LookupTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Extract fetches pageURL and returns its readable text, or "" when the
// page yields nothing usable. Errors are absorbed: a missing page body only
// degrades content quality.
func (p *PageExtractor) Extract(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "driftboard/1.0 (dashboard generator)")

	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return ""
	}
	if len(text) > maxExtractedChars {
		text = text[:maxExtractedChars]
	}
	return text
}
