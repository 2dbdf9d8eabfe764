package lexical

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/versegest/internal/store"
)

// FTSSource runs MATCH expressions. *store.Store implements it.
type FTSSource interface {
	SearchFTS(ctx context.Context, match string, f store.Filter, limit int) ([]store.LexicalHit, error)
}

// FTS ranks with SQLite FTS5 bm25. All query terms are required first; when
// that finds nothing and there are several terms, any term may match.
type FTS struct {
	src FTSSource
}

func NewFTS(src FTSSource) *FTS { return &FTS{src: src} }

func (p *FTS) Name() string { return "fts5" }

func (p *FTS) Search(ctx context.Context, query string, f store.Filter, limit int) ([]Hit, error) {
	toks := Tokens(query)
	if len(toks) == 0 {
		return nil, nil
	}
	hits, err := p.src.SearchFTS(ctx, matchAll(toks), f, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	if len(hits) == 0 && len(toks) > 1 {
		hits, err = p.src.SearchFTS(ctx, matchAny(toks), f, limit)
		if err != nil {
			return nil, fmt.Errorf("fts search: %w", err)
		}
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{PassageID: h.PassageID, Score: normalizeRank(h.BM25)}
	}
	return out, nil
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func matchAll(toks []string) string {
	q := make([]string, len(toks))
	for i, t := range toks {
		q[i] = quoteTerm(t)
	}
	return strings.Join(q, " ")
}

func matchAny(toks []string) string {
	q := make([]string, len(toks))
	for i, t := range toks {
		q[i] = quoteTerm(t)
	}
	return strings.Join(q, " OR ")
}
