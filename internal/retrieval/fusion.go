package retrieval

import (
	"sort"

	"github.com/dgallion1/versegest/internal/lexical"
	"github.com/dgallion1/versegest/internal/store"
)

// ranked is a candidate with its fused score and tie-break key.
type ranked struct {
	Candidate
	score   float64
	overlap int
}

// Fuse combines component scores. With both present the result is
// alpha*lexical + (1-alpha)*vector; with one present it is that score, so a
// missing source never zeroes a candidate.
func Fuse(c Candidate, alpha float64) float64 {
	switch {
	case c.VectorScore != nil && c.LexicalScore != nil:
		return alpha*(*c.LexicalScore) + (1-alpha)*(*c.VectorScore)
	case c.LexicalScore != nil:
		return *c.LexicalScore
	case c.VectorScore != nil:
		return *c.VectorScore
	}
	return 0
}

// rank orders candidates by fused score, then by how many distinct query
// tokens the passage contains, then by document id and passage id.
func (e *Engine) rank(candidates []Candidate, passages map[string]store.Passage, tokens []string) []ranked {
	out := make([]ranked, len(candidates))
	for i, c := range candidates {
		out[i] = ranked{
			Candidate: c,
			score:     Fuse(c, e.opts.Alpha),
			overlap:   lexical.Overlap(tokens, passages[c.UnitID].Text),
		}
	}
	sortRanked(out)
	return out
}

func sortRanked(rs []ranked) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.UnitID < b.UnitID
	})
}
