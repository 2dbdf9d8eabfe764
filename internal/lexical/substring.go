package lexical

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/versegest/internal/store"
)

// Substring is the no-index fallback: a case-insensitive substring test of
// each query token against raw passage text. The score is the fraction of
// query tokens found.
type Substring struct {
	src PassageSource
}

func NewSubstring(src PassageSource) *Substring { return &Substring{src: src} }

func (p *Substring) Name() string { return "substring" }

func (p *Substring) Search(ctx context.Context, query string, f store.Filter, limit int) ([]Hit, error) {
	toks := Tokens(query)
	if len(toks) == 0 {
		return nil, nil
	}
	passages, err := p.src.Passages(ctx, f, 0)
	if err != nil {
		return nil, fmt.Errorf("substring: load passages: %w", err)
	}
	var out []Hit
	for _, ps := range passages {
		text := strings.ToLower(ps.Text)
		found := 0
		for _, t := range toks {
			if strings.Contains(text, t) {
				found++
			}
		}
		if found > 0 {
			out = append(out, Hit{PassageID: ps.ID, Score: float64(found) / float64(len(toks))})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PassageID < out[j].PassageID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
