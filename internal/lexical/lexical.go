// Package lexical provides keyword relevance over stored passages. Three
// providers share one interface: SQLite FTS5, an in-memory bleve index and
// a plain substring scan used when neither is available.
package lexical

import (
	"context"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/dgallion1/versegest/internal/store"
)

// Hit is one lexical match. Score is in [0, 1]; higher is better.
type Hit struct {
	PassageID string
	Score     float64
}

// Provider ranks passages matching f against a free-text query.
type Provider interface {
	Search(ctx context.Context, query string, f store.Filter, limit int) ([]Hit, error)
	Name() string
}

// PassageSource lists stored passages.
type PassageSource interface {
	Passages(ctx context.Context, f store.Filter, limit int) ([]store.Passage, error)
}

// Tokens returns the distinct lowercased words of s in first-seen order.
func Tokens(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Lexeme is the stored token bag: sorted distinct words joined by spaces.
func Lexeme(s string) string {
	toks := Tokens(s)
	slices.Sort(toks)
	return strings.Join(toks, " ")
}

// Overlap counts the distinct query tokens present in text.
func Overlap(queryTokens []string, text string) int {
	have := Tokens(text)
	n := 0
	for _, q := range queryTokens {
		if slices.Contains(have, q) {
			n++
		}
	}
	return n
}

// normalizeRank maps an unbounded relevance value onto [0, 1).
// Scale 10 gives: 1 → 0.10, 5 → 0.46, 10 → 0.76, 25 → 0.99.
func normalizeRank(rank float64) float64 {
	return math.Tanh(math.Abs(rank) / 10.0)
}
