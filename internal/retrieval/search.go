package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/versegest/internal/embed"
	"github.com/dgallion1/versegest/internal/lexical"
	"github.com/dgallion1/versegest/internal/store"
)

// Search returns up to K passages ranked by fused score. No match is an
// empty result, not an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	k := q.K
	if k <= 0 {
		k = e.opts.DefaultK
	}
	filter, ok := e.storeFilter(q.Filters)
	if !ok {
		return nil, nil
	}
	tokens := lexical.Tokens(q.Text)
	if len(tokens) == 0 {
		if filter.Scope.Empty() {
			return nil, nil
		}
		return e.browse(ctx, filter, k, q)
	}

	var (
		candidates []Candidate
		passages   map[string]store.Passage
		err        error
	)
	if e.Fallback() {
		candidates, passages, err = e.scan(ctx, tokens, filter)
	} else {
		candidates, passages, err = e.collect(ctx, q.Text, filter, e.limit(k))
	}
	if err != nil {
		return nil, err
	}

	ranked := e.rank(candidates, passages, tokens)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return e.render(ctx, ranked, passages, highlightTerms(q, tokens)), nil
}

// limit is k' = max(3k, k+slack).
func (e *Engine) limit(k int) int {
	return max(3*k, k+e.opts.CandidateSlack)
}

// collect gathers vector and lexical candidates concurrently and merges
// them by passage id. One failing source degrades to the other; both
// failing is an error.
func (e *Engine) collect(ctx context.Context, text string, f store.Filter, limit int) ([]Candidate, map[string]store.Passage, error) {
	var (
		vecHits []scored
		vecPool []store.Passage
		lexHits []lexical.Hit
		vecErr  error
		lexErr  error
		haveVec = e.deps.Embedder != nil
		haveLex = e.deps.Lexical != nil
		g, gctx = errgroup.WithContext(ctx)
	)
	if haveVec {
		g.Go(func() error {
			vecHits, vecPool, vecErr = e.vectorCandidates(gctx, text, f, limit)
			return nil
		})
	}
	if haveLex {
		g.Go(func() error {
			lexHits, lexErr = e.deps.Lexical.Search(gctx, text, f, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	switch {
	case (!haveVec || vecErr != nil) && (!haveLex || lexErr != nil):
		return nil, nil, fmt.Errorf("retrieval: no candidate source succeeded: %w", errors.Join(vecErr, lexErr))
	case vecErr != nil:
		e.log.Warn("vector candidates unavailable, using lexical only", "error", vecErr)
	case lexErr != nil:
		e.log.Warn("lexical candidates unavailable, using vectors only", "provider", e.deps.Lexical.Name(), "error", lexErr)
	}

	passages := make(map[string]store.Passage, len(vecPool))
	for _, p := range vecPool {
		passages[p.ID] = p
	}
	byID := make(map[string]*Candidate)
	var order []string
	get := func(id string) *Candidate {
		c, ok := byID[id]
		if !ok {
			c = &Candidate{UnitID: id}
			byID[id] = c
			order = append(order, id)
		}
		return c
	}
	for _, h := range vecHits {
		s := h.score
		get(h.id).VectorScore = &s
	}
	for _, h := range lexHits {
		s := h.Score
		get(h.PassageID).LexicalScore = &s
	}

	var missing []string
	for _, id := range order {
		if _, ok := passages[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := e.deps.Passages.PassagesByID(ctx, missing)
		if err != nil {
			return nil, nil, fmt.Errorf("retrieval: load passages: %w", err)
		}
		for id, p := range loaded {
			passages[id] = p
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		p, ok := passages[id]
		if !ok {
			continue // deleted between candidate and load
		}
		c := byID[id]
		c.DocumentID = p.DocumentID
		out = append(out, *c)
	}
	return out, passages, nil
}

type scored struct {
	id    string
	score float64
}

// vectorCandidates embeds the query and ranks filtered passages by cosine
// similarity. Structural and reference filters apply before scoring.
func (e *Engine) vectorCandidates(ctx context.Context, text string, f store.Filter, limit int) ([]scored, []store.Passage, error) {
	vecs, err := e.deps.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	pool, err := e.deps.Passages.Passages(ctx, f, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("load passages: %w", err)
	}
	var hits []scored
	var kept []store.Passage
	for _, p := range pool {
		if len(p.Embedding) == 0 {
			continue
		}
		sim := embed.Cosine(vecs[0], p.Embedding)
		if sim <= e.opts.MinSimilarity {
			continue
		}
		hits = append(hits, scored{id: p.ID, score: sim})
		kept = append(kept, p)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, kept, nil
}

// scan is the index-free path: every filtered passage scored by the
// fraction of distinct query tokens it contains.
func (e *Engine) scan(ctx context.Context, tokens []string, f store.Filter) ([]Candidate, map[string]store.Passage, error) {
	pool, err := e.deps.Passages.Passages(ctx, f, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: scan passages: %w", err)
	}
	passages := make(map[string]store.Passage)
	var out []Candidate
	for _, p := range pool {
		n := lexical.Overlap(tokens, p.Text)
		if n == 0 {
			continue
		}
		s := float64(n) / float64(len(tokens))
		passages[p.ID] = p
		out = append(out, Candidate{UnitID: p.ID, DocumentID: p.DocumentID, LexicalScore: &s})
	}
	return out, passages, nil
}

// browse lists passages in a reference scope when the query has no words.
func (e *Engine) browse(ctx context.Context, f store.Filter, k int, q Query) ([]Result, error) {
	pool, err := e.deps.Passages.Passages(ctx, f, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: browse passages: %w", err)
	}
	passages := make(map[string]store.Passage, len(pool))
	out := make([]ranked, len(pool))
	for i, p := range pool {
		passages[p.ID] = p
		out[i] = ranked{Candidate: Candidate{UnitID: p.ID, DocumentID: p.DocumentID}}
	}
	return e.render(ctx, out, passages, q.Highlight), nil
}
