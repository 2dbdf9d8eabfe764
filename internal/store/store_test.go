package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/verserange"
)

var resolver = scripture.NewResolver(0)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func passage(id, docID string, idx int, text string, set scripture.VerseSet) Passage {
	return Passage{
		ID:         id,
		DocumentID: docID,
		Index:      idx,
		Text:       text,
		Sanitized:  text,
		EndChar:    len(text),
		VerseIDs:   set,
		Range:      verserange.FromSet(set),
		Embedding:  []float32{1, 0},
	}
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	gapped := scripture.NewVerseSet(43003001, 43003020)
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertDocument(context.Background(), Document{
			ID: "doc-1", Title: "Sermon", SourceType: "file", Collection: "sermons", Author: "Wesley", ContentHash: "h1",
		}); err != nil {
			return err
		}
		for _, p := range []Passage{
			passage("p-1", "doc-1", 0, "For God so loved the world, John 3:16.", resolver.Expand("John.3.16")),
			passage("p-2", "doc-1", 1, "Nicodemus came by night and later the light.", gapped),
			passage("p-3", "doc-1", 2, "Grace upon grace without any citation.", nil),
		} {
			if err := tx.InsertPassage(context.Background(), p); err != nil {
				return err
			}
		}
		return tx.InsertQuote(context.Background(), Quote{
			PassageID: "p-1", Text: "For God so loved the world", Ref: "John.3.16",
			Range: verserange.FromSet(resolver.Expand("John.3.16")),
		})
	})
	require.NoError(t, err)
}

func TestPassagesRoundTrip(t *testing.T) {
	s := openTest(t)
	seed(t, s)

	all, err := s.Passages(context.Background(), Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p-1", all[0].ID)
	assert.Equal(t, []float32{1, 0}, all[0].Embedding)
	assert.Equal(t, "sermons", all[0].Collection)
	assert.Equal(t, &verserange.Range{Start: 43003016, End: 43003016}, all[0].Range)
	assert.Nil(t, all[2].Range)
	assert.Empty(t, all[2].VerseIDs)

	byID, err := s.PassagesByID(context.Background(), []string{"p-3", "missing"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
	assert.Equal(t, 2, byID["p-3"].Index)

	docs, passages, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 3, passages)
}

func TestStoredRangeFollowsVerseSet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	set := resolver.Expand("John.3.16")
	// The caller's range disagrees with its verse ids.
	p := passage("p-x", "doc-x", 0, "For God so loved the world.", set)
	p.Range = &verserange.Range{Start: 1001001, End: 66022021}
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertDocument(ctx, Document{ID: "doc-x", SourceType: "file", ContentHash: "hx"}); err != nil {
			return err
		}
		return tx.InsertPassage(ctx, p)
	})
	require.NoError(t, err)

	got, err := s.PassagesByID(ctx, []string{"p-x"})
	require.NoError(t, err)
	assert.Equal(t, &verserange.Range{Start: 43003016, End: 43003016}, got["p-x"].Range)

	loose, err := s.Passages(ctx, Filter{Scope: resolver.Expand("Gen.1.1"), Policy: verserange.TrustRange}, 0)
	require.NoError(t, err)
	assert.Empty(t, loose, "a stale range must not widen the passage")

	require.NoError(t, s.SetVerseIndex(ctx, "p-x", resolver.Expand("Rom.8.28"), &verserange.Range{Start: 1, End: 2}))
	got, err = s.PassagesByID(ctx, []string{"p-x"})
	require.NoError(t, err)
	assert.Equal(t, &verserange.Range{Start: 45008028, End: 45008028}, got["p-x"].Range)

	err = s.SetVerseIndex(ctx, "p-x", nil, &verserange.Range{Start: 1, End: 2})
	assert.Error(t, err)
}

func TestScopeFilterPolicies(t *testing.T) {
	s := openTest(t)
	seed(t, s)
	scope := resolver.Expand("John.3.16")

	exact, err := s.Passages(context.Background(), Filter{Scope: scope, Policy: verserange.VerifyExact}, 0)
	require.NoError(t, err)
	require.Len(t, exact, 1, "range overlap alone must not admit p-2")
	assert.Equal(t, "p-1", exact[0].ID)

	loose, err := s.Passages(context.Background(), Filter{Scope: scope, Policy: verserange.TrustRange}, 0)
	require.NoError(t, err)
	assert.Len(t, loose, 2)

	none, err := s.Passages(context.Background(), Filter{Scope: resolver.Expand("Luke.1.1")}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	wrong, err := s.Passages(context.Background(), Filter{Collection: "lectures"}, 0)
	require.NoError(t, err)
	assert.Empty(t, wrong)
}

func TestDuplicateHashRollsBack(t *testing.T) {
	s := openTest(t)
	seed(t, s)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertDocument(context.Background(), Document{ID: "doc-2", SourceType: "file", ContentHash: "h1"})
	})
	var dup *faults.DuplicateSourceError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "doc-1", dup.ExistingID)

	doc, ok, err := s.DocumentByHash(context.Background(), "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Sermon", doc.Title)

	// A failure after writes leaves nothing behind.
	boom := errors.New("artifact write failed")
	err = s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertDocument(context.Background(), Document{ID: "doc-3", SourceType: "file", ContentHash: "h3"}); err != nil {
			return err
		}
		if err := tx.InsertPassage(context.Background(), passage("p-9", "doc-3", 0, "x", nil)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	docs, passages, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 3, passages)
}

func TestSearchFTS(t *testing.T) {
	s := openTest(t)
	seed(t, s)

	hits, err := s.SearchFTS(context.Background(), `"grace"`, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p-3", hits[0].PassageID)
	assert.Less(t, hits[0].BM25, 0.0)

	hits, err = s.SearchFTS(context.Background(), `"loved" OR "night"`, Filter{Scope: resolver.Expand("John.3.16")}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p-1", hits[0].PassageID)
}

func TestBackfillThroughStore(t *testing.T) {
	s := openTest(t)
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertDocument(context.Background(), Document{ID: "d", SourceType: "file", ContentHash: "h"}); err != nil {
			return err
		}
		p := passage("p-a", "d", 0, "a sermon on Romans", nil)
		p.Meta = PassageMeta{Hinted: []string{"Rom 8:28"}}
		if err := tx.InsertPassage(context.Background(), p); err != nil {
			return err
		}
		return tx.InsertPassage(context.Background(), passage("p-b", "d", 1, "nothing", nil))
	})
	require.NoError(t, err)

	ix := verserange.New(resolver)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n, err := ix.BackfillMissing(context.Background(), s, 1, log)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ix.BackfillMissing(context.Background(), s, 1, log)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.Passages(context.Background(), Filter{Scope: resolver.Expand("Rom.8")}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-a", got[0].ID)
	assert.Equal(t, scripture.VerseSet{45008028}, got[0].VerseIDs)
}

func TestSeedsOverlap(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	w := 0.8
	require.NoError(t, s.UpsertPairSeed(ctx, PairSeed{
		Kind: Contradiction, A: "John.3.16", B: "Matt.5.44", Perspective: "skeptic", Summary: "love vs. judgement", Weight: &w,
		RangeA: verserange.FromSet(resolver.Expand("John.3.16")),
		RangeB: verserange.FromSet(resolver.Expand("Matt.5.44")),
	}))
	// Same key updates in place.
	require.NoError(t, s.UpsertPairSeed(ctx, PairSeed{
		Kind: Contradiction, A: "John.3.16", B: "Matt.5.44", Perspective: "skeptic", Summary: "updated",
		RangeA: verserange.FromSet(resolver.Expand("John.3.16")),
		RangeB: verserange.FromSet(resolver.Expand("Matt.5.44")),
	}))

	got, err := s.PairSeedsOverlapping(ctx, Contradiction, verserange.Range{Start: 40005044, End: 40005044})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "updated", got[0].Summary)
	assert.Nil(t, got[0].Weight)

	got, err = s.PairSeedsOverlapping(ctx, "", verserange.Range{Start: 42001001, End: 42001001})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.InsertCommentary(ctx, CommentarySeed{
		Ref: "Rom.8.28", Excerpt: "All things work together.", Perspective: "reformed",
		Range: verserange.FromSet(resolver.Expand("Rom.8.28")),
	})
	require.NoError(t, err)
	cs, err := s.CommentariesOverlapping(ctx, *verserange.FromSet(resolver.Expand("Rom.8")))
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, scripture.Token("Rom.8.28"), cs[0].Ref)
}
