package ingest

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// FeedEntry is one parsed activity item.
type FeedEntry struct {
	URL           string
	Title         string
	PublishedDate string // YYYY-MM-DD or empty
	Source        string
	Category      string
}

// FeedConfig is a single activity feed to pull.
type FeedConfig struct {
	URL      string
	Name     string
	Category string
}

// FeedParser pulls RSS/Atom activity feeds (starred items, listening
// history, watch-later exports) and flattens them into entries.
type FeedParser struct {
	log   *slog.Logger
	feeds []FeedConfig
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(log *slog.Logger, feeds []FeedConfig) *FeedParser {
	return &FeedParser{log: log, feeds: feeds}
}

// ParseAll parses all configured feeds and returns entries within daysBack.
// A feed that fails to parse is skipped, not fatal.
func (fp *FeedParser) ParseAll(daysBack int) []FeedEntry {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []FeedEntry

	parser := gofeed.NewParser()
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = sourceNameFromURL(fc.URL)
		}

		entries, err := parseFeed(parser, fc, name, cutoff)
		if err != nil {
			fp.log.Warn("skipping unreadable feed", "url", fc.URL, "error", err)
			continue
		}
		all = append(all, entries...)
		fp.log.Info("parsed feed", "source", name, "entries", len(entries), "days_back", daysBack)
	}

	return all
}

func parseFeed(parser *gofeed.Parser, fc FeedConfig, sourceName string, cutoff time.Time) ([]FeedEntry, error) {
	feed, err := parser.ParseURL(fc.URL)
	if err != nil {
		return nil, err
	}

	var entries []FeedEntry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}

		entry := parseItem(item, sourceName, fc.Category)
		if entry == nil {
			continue
		}
		if withinWindow(entry.PublishedDate, cutoff) {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func parseItem(item *gofeed.Item, source, category string) *FeedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var publishedDate string
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format("2006-01-02")
	} else if item.UpdatedParsed != nil {
		publishedDate = item.UpdatedParsed.Format("2006-01-02")
	}

	if category == "" && len(item.Categories) > 0 {
		category = strings.ToLower(strings.TrimSpace(item.Categories[0]))
	}

	return &FeedEntry{
		URL:           itemURL,
		Title:         title,
		PublishedDate: publishedDate,
		Source:        source,
		Category:      category,
	}
}

func withinWindow(publishedDate string, cutoff time.Time) bool {
	if publishedDate == "" {
		return true // benefit of the doubt
	}
	pub, err := time.Parse("2006-01-02", publishedDate)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff)
}

func sourceNameFromURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return feedURL
	}

	for _, prefix := range []string{"www.", "blog.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
