package lexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/store"
)

type staticPassages []store.Passage

func (s staticPassages) Passages(_ context.Context, f store.Filter, _ int) ([]store.Passage, error) {
	var out []store.Passage
	for _, p := range s {
		if f.DocumentID == "" || p.DocumentID == f.DocumentID {
			out = append(out, p)
		}
	}
	return out, nil
}

var corpus = staticPassages{
	{ID: "u1", DocumentID: "d1", Text: "Amazing grace, how sweet the sound.", Sanitized: "Amazing grace, how sweet the sound."},
	{ID: "u2", DocumentID: "d1", Text: "By GRACE are ye saved through faith.", Sanitized: "By GRACE are ye saved through faith."},
	{ID: "u3", DocumentID: "d2", Text: "Love your enemies and pray for them.", Sanitized: "Love your enemies and pray for them."},
}

func TestTokensAndLexeme(t *testing.T) {
	assert.Equal(t, []string{"grace", "and", "peace"}, Tokens("Grace and peace, grace!"))
	assert.Equal(t, "and grace peace", Lexeme("Grace and peace, grace!"))
	assert.Empty(t, Tokens("  ... "))
	assert.Equal(t, 2, Overlap([]string{"grace", "faith", "hope"}, "By grace through faith"))
}

func TestSubstring(t *testing.T) {
	p := NewSubstring(corpus)
	hits, err := p.Search(context.Background(), "grace", store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "u1", hits[0].PassageID)
	assert.Equal(t, "u2", hits[1].PassageID)
	assert.Equal(t, 1.0, hits[0].Score)

	hits, err = p.Search(context.Background(), "grace faith", store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "u2", hits[0].PassageID, "matching both tokens ranks first")
	assert.Equal(t, 0.5, hits[1].Score)

	hits, err = p.Search(context.Background(), "grace", store.Filter{DocumentID: "d2"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleve(t *testing.T) {
	p := NewBleve(corpus)
	defer p.Close()

	hits, err := p.Search(context.Background(), "grace", store.Filter{}, 10)
	require.NoError(t, err)
	ids := []string{}
	for _, h := range hits {
		ids = append(ids, h.PassageID)
		assert.Greater(t, h.Score, 0.0)
		assert.Less(t, h.Score, 1.0)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

	first := p.fingerprint
	_, err = p.Search(context.Background(), "enemies", store.Filter{}, 10)
	require.NoError(t, err)
	assert.Equal(t, first, p.fingerprint, "same passage set reuses the index")

	hits, err = p.Search(context.Background(), "enemies", store.Filter{DocumentID: "d2"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "u3", hits[0].PassageID)
	assert.NotEqual(t, first, p.fingerprint)
}

func TestFTSFallsBackToAnyTerm(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	defer s.Close()

	err = s.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.InsertDocument(context.Background(), store.Document{ID: "d1", SourceType: "file", ContentHash: "h"}); err != nil {
			return err
		}
		for i, p := range corpus {
			p.Index = i
			p.DocumentID = "d1"
			if err := tx.InsertPassage(context.Background(), p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	p := NewFTS(s)
	hits, err := p.Search(context.Background(), "grace sound", store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "all terms required first")
	assert.Equal(t, "u1", hits[0].PassageID)

	hits, err = p.Search(context.Background(), "grace enemies", store.Filter{}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3, "no passage has both terms, so any term matches")

	hits, err = p.Search(context.Background(), `"; DROP TABLE passages; --`, store.Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
