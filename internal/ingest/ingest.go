// Package ingest pulls a user's activity feeds into the interactions table,
// the behavioral history the generation pipeline reads. One feed entry
// becomes one interaction; re-ingesting the same entry is a no-op.
package ingest

import (
	"log/slog"
	"strings"
	"time"

	"github.com/driftlab/driftboard/internal/config"
	"github.com/driftlab/driftboard/internal/store"
)

// Result summarizes one ingestion run.
type Result struct {
	TotalFound      int
	NewInteractions int
	Duplicates      int
	Sources         map[string]int
}

// Ingester maps feed entries to interactions for one user.
type Ingester struct {
	log      *slog.Logger
	db       *store.DB
	parser   *FeedParser
	userID   string
	daysBack int
}

// New creates an ingester from the configured activity feeds.
func New(log *slog.Logger, cfg *config.Config, db *store.DB, daysBack int) *Ingester {
	feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
	for i, f := range cfg.Sources.Feeds {
		feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Category: f.Category}
	}
	return &Ingester{
		log:      log,
		db:       db,
		parser:   NewFeedParser(log, feeds),
		userID:   cfg.User.ID,
		daysBack: daysBack,
	}
}

// Run parses every configured feed and records the entries as interactions.
func (in *Ingester) Run() *Result {
	r := &Result{Sources: make(map[string]int)}

	entries := in.parser.ParseAll(in.daysBack)
	r.TotalFound = len(entries)

	for _, entry := range entries {
		category := entry.Category
		if category == "" {
			category = "browsing"
		}
		occurredAt := entry.PublishedDate
		if occurredAt == "" {
			occurredAt = time.Now().Format("2006-01-02")
		}
		var source *string
		if entry.Source != "" {
			source = &entry.Source
		}

		id, err := in.db.InsertInteraction(in.userID, category, actionFor(category), entry.Title, source, occurredAt)
		if err != nil {
			in.log.Warn("recording interaction", "subject", entry.Title, "error", err)
			continue
		}
		if id > 0 {
			r.NewInteractions++
			r.Sources[entry.Source]++
		} else {
			r.Duplicates++
		}
	}

	in.log.Info("ingestion finished", "found", r.TotalFound,
		"new", r.NewInteractions, "duplicates", r.Duplicates)
	return r
}

// actionFor picks the verb recorded with an interaction based on its
// activity category.
func actionFor(category string) string {
	switch strings.ToLower(category) {
	case "music", "listening", "podcasts":
		return "listened"
	case "video", "watching", "movies":
		return "watched"
	default:
		return "read"
	}
}
