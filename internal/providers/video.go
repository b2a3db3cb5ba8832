package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"

	"github.com/driftlab/driftboard/internal/model"
)

const youtubeSearchURL = "https://www.googleapis.com/youtube/v3/search"

// YouTubeClient finds videos via the YouTube Data API.
type YouTubeClient struct {
	apiKey string
	client *http.Client
}

// NewYouTubeClient creates a video client reading its key from env.
func NewYouTubeClient(apiKeyEnv string) *YouTubeClient {
	return &YouTubeClient{
		apiKey: os.Getenv(apiKeyEnv),
		client: &http.Client{Timeout: LookupTimeout},
	}
}

// IsConfigured checks if the API key is set.
func (y *YouTubeClient) IsConfigured() bool {
	return y.apiKey != ""
}

// Find returns the top video for a query.
func (y *YouTubeClient) Find(ctx context.Context, query string) (*model.VideoData, error) {
	u := youtubeSearchURL + "?part=snippet&type=video&maxResults=1&q=" +
		url.QueryEscape(query) + "&key=" + url.QueryEscape(y.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Provider: "youtube", Code: resp.StatusCode}
		if !Retryable(se) {
			return nil, ErrNoResult
		}
		return nil, se
	}

	var body struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title        string `json:"title"`
				ChannelTitle string `json:"channelTitle"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Items) == 0 {
		return nil, ErrNoResult
	}

	item := body.Items[0]
	return &model.VideoData{
		Query:        query,
		Title:        item.Snippet.Title,
		URL:          "https://www.youtube.com/watch?v=" + item.ID.VideoID,
		ChannelTitle: item.Snippet.ChannelTitle,
	}, nil
}
