package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/verserange"
)

var errNoSeedStore = errors.New("retrieval: no seed store configured")

// PairSeedsFor returns seed relationships of kind (all kinds when empty)
// touching ref. Under TrustRange either side's range overlap is final;
// under VerifyExact that side's reference must also share a verse with ref.
func (e *Engine) PairSeedsFor(ctx context.Context, ref string, kind store.SeedKind, policy verserange.OverlapPolicy) ([]store.PairSeed, error) {
	if e.deps.Seeds == nil {
		return nil, errNoSeedStore
	}
	set := e.deps.Resolver.ExpandLoose(ref)
	r := verserange.FromSet(set)
	if r == nil {
		return nil, nil
	}
	seeds, err := e.deps.Seeds.PairSeedsOverlapping(ctx, kind, *r)
	if err != nil {
		return nil, fmt.Errorf("pair seeds for %s: %w", ref, err)
	}
	var out []store.PairSeed
	for _, s := range seeds {
		if e.sideMatches(s.RangeA, s.A, set, policy) || e.sideMatches(s.RangeB, s.B, set, policy) {
			out = append(out, s)
		}
	}
	return out, nil
}

// CommentariesFor returns commentary excerpts anchored on verses in ref.
func (e *Engine) CommentariesFor(ctx context.Context, ref string, policy verserange.OverlapPolicy) ([]store.CommentarySeed, error) {
	if e.deps.Seeds == nil {
		return nil, errNoSeedStore
	}
	set := e.deps.Resolver.ExpandLoose(ref)
	r := verserange.FromSet(set)
	if r == nil {
		return nil, nil
	}
	seeds, err := e.deps.Seeds.CommentariesOverlapping(ctx, *r)
	if err != nil {
		return nil, fmt.Errorf("commentaries for %s: %w", ref, err)
	}
	var out []store.CommentarySeed
	for _, c := range seeds {
		if e.sideMatches(c.Range, c.Ref, set, policy) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) sideMatches(r *verserange.Range, tok scripture.Token, query scripture.VerseSet, policy verserange.OverlapPolicy) bool {
	var exact scripture.VerseSet
	if policy == verserange.VerifyExact {
		exact = e.deps.Resolver.Expand(tok)
	}
	return policy.Match(r, exact, query)
}
