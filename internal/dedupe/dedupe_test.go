package dedupe

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	kind  string
	title string
}

func keyFn(it item) Key {
	return Key{Kind: it.kind, Title: it.title}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestByKeyKeepsFirstInOrder(t *testing.T) {
	items := []item{
		{"widget", "A"},
		{"widget", "B"},
		{"widget", "A"},
		{"widget", "C"},
		{"widget", "B"},
	}

	got := ByKey(testLogger(), items, keyFn)
	assert.Equal(t, []item{{"widget", "A"}, {"widget", "B"}, {"widget", "C"}}, got)
}

func TestByKeyKindsAreDistinct(t *testing.T) {
	items := []item{
		{"weather", "Local"},
		{"events", "Local"},
	}
	got := ByKey(testLogger(), items, keyFn)
	assert.Len(t, got, 2, "same title under different kinds is not a duplicate")
}

func TestByKeyNormalizesTitles(t *testing.T) {
	items := []item{
		{"widget", "Local Weather!"},
		{"widget", "  local   weather "},
		{"widget", "LOCAL, WEATHER"},
	}
	got := ByKey(testLogger(), items, keyFn)
	assert.Len(t, got, 1)
	assert.Equal(t, "Local Weather!", got[0].title, "first occurrence survives verbatim")
}

func TestByKeyEmpty(t *testing.T) {
	assert.Empty(t, ByKey(testLogger(), nil, keyFn))
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Local Weather!":   "local weather",
		"  spaced   out  ": "spaced out",
		"Übung: Straße 5":  "übung straße 5",
		"---":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}
