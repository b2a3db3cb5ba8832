// Package dedupe removes semantically-duplicate generated items before they
// reach enrichment, so near-duplicate widgets the model emits don't waste
// provider calls or cache slots.
package dedupe

import (
	"log/slog"
	"strings"
	"unicode"
)

// Key identifies an item for duplicate detection: its variant kind plus a
// normalized title.
type Key struct {
	Kind  string
	Title string
}

// Normalize lowercases a title, strips punctuation, and collapses runs of
// whitespace, so "Local Weather!" and "local   weather" collide.
func Normalize(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ByKey keeps the first occurrence of each key in original order and drops
// the rest, logging what was discarded.
func ByKey[T any](log *slog.Logger, items []T, keyFn func(T) Key) []T {
	seen := make(map[Key]struct{}, len(items))
	unique := make([]T, 0, len(items))
	for _, item := range items {
		key := keyFn(item)
		key.Title = Normalize(key.Title)
		if _, dup := seen[key]; dup {
			if log != nil {
				log.Info("dropping duplicate", "kind", key.Kind, "title", key.Title)
			}
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}
