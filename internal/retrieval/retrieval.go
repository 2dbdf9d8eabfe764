// Package retrieval answers free-text queries over stored passages by
// fusing vector similarity with lexical relevance. Reference-scoped queries
// use the stored verse ranges as a pre-filter and the exact verse sets to
// confirm.
package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/versegest/internal/annotations"
	"github.com/dgallion1/versegest/internal/lexical"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/verserange"
)

// Filters narrow the searched passages. Zero fields do not filter.
type Filters struct {
	Collection string
	Author     string
	SourceType string
	DocumentID string
	Reference  string // OSIS token or human citation, e.g. "Rom 8:28-30"
}

// Query is one search request.
type Query struct {
	Text      string
	Filters   Filters
	K         int      // result count; Options.DefaultK when <= 0
	Highlight []string // terms to mark; the query tokens when empty
}

// Candidate is a passage found by at least one source. A nil score means
// that source did not return it.
type Candidate struct {
	UnitID       string
	DocumentID   string
	VectorScore  *float64
	LexicalScore *float64
}

// Result is one ranked passage.
type Result struct {
	UnitID       string                   `json:"unit_id" yaml:"unit_id"`
	DocumentID   string                   `json:"document_id" yaml:"document_id"`
	Index        int                      `json:"index" yaml:"index"`
	Snippet      string                   `json:"snippet" yaml:"snippet"`
	Highlighted  string                   `json:"highlighted" yaml:"highlighted"`
	Score        float64                  `json:"score" yaml:"score"`
	VectorScore  *float64                 `json:"vector_score" yaml:"vector_score"`
	LexicalScore *float64                 `json:"lexical_score" yaml:"lexical_score"`
	Primary      string                   `json:"primary,omitempty" yaml:"primary,omitempty"`
	Range        *verserange.Range        `json:"range,omitempty" yaml:"range,omitempty"`
	Annotations  []annotations.Annotation `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// PassageStore is the read side of the passage table. *store.Store
// implements it.
type PassageStore interface {
	Passages(ctx context.Context, f store.Filter, limit int) ([]store.Passage, error)
	PassagesByID(ctx context.Context, ids []string) (map[string]store.Passage, error)
}

// SeedStore reads seed relationships. *store.Store implements it.
type SeedStore interface {
	PairSeedsOverlapping(ctx context.Context, kind store.SeedKind, r verserange.Range) ([]store.PairSeed, error)
	CommentariesOverlapping(ctx context.Context, r verserange.Range) ([]store.CommentarySeed, error)
}

// Deps wire an Engine. Passages and Resolver are required. Without both
// Embedder and Lexical the engine scans passages linearly.
type Deps struct {
	Passages    PassageStore
	Seeds       SeedStore
	Resolver    *scripture.Resolver
	Embedder    Embedder
	Lexical     lexical.Provider
	Annotations annotations.Source
}

// Options tune ranking and rendering.
type Options struct {
	Alpha          float64 // lexical weight in [0, 1]; vector weight is 1-Alpha
	CandidateSlack int     // extra candidates per source beyond k
	DefaultK       int
	SnippetChars   int
	MinSimilarity  float64 // vector candidates at or below this cosine are dropped
}

func (o Options) withDefaults() Options {
	if o.Alpha < 0 || o.Alpha > 1 {
		o.Alpha = 0.5
	}
	if o.CandidateSlack <= 0 {
		o.CandidateSlack = 10
	}
	if o.DefaultK <= 0 {
		o.DefaultK = 10
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = 280
	}
	return o
}

// Engine is safe for concurrent use.
type Engine struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func New(deps Deps, opts Options, log *slog.Logger) *Engine {
	return &Engine{deps: deps, opts: opts.withDefaults(), log: log}
}

// Fallback reports whether the engine has neither a vector nor a lexical
// source and will scan passages linearly.
func (e *Engine) Fallback() bool {
	return e.deps.Embedder == nil && e.deps.Lexical == nil
}

// storeFilter translates f. ok is false when a reference was given but
// names no verses, which matches nothing.
func (e *Engine) storeFilter(f Filters) (store.Filter, bool) {
	sf := store.Filter{
		Collection: f.Collection,
		Author:     f.Author,
		SourceType: f.SourceType,
		DocumentID: f.DocumentID,
		Policy:     verserange.VerifyExact,
	}
	if ref := strings.TrimSpace(f.Reference); ref != "" {
		sf.Scope = e.deps.Resolver.ExpandLoose(ref)
		if sf.Scope.Empty() {
			return sf, false
		}
	}
	return sf, true
}
