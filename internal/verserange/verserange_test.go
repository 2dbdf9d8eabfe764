package verserange

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/scripture"
)

func newIndexer() *Indexer {
	return New(scripture.NewResolver(0))
}

func TestIndexReferences(t *testing.T) {
	ix := newIndexer()

	set, rng := ix.IndexReferences([]scripture.Token{"John.3.16-17", "garbage", "John.3.17-18"})
	require.NotNil(t, rng)
	assert.Equal(t, scripture.VerseSet{43003016, 43003017, 43003018}, set)
	assert.Equal(t, Range{Start: 43003016, End: 43003018}, *rng)

	set, rng = ix.IndexReferences([]scripture.Token{"John.3.16", "Matt.5.44"})
	require.NotNil(t, rng)
	assert.Len(t, set, 2)
	assert.Equal(t, scripture.VerseID(40005044), rng.Start, "range start is the set minimum")
	assert.Equal(t, scripture.VerseID(43003016), rng.End, "range end is the set maximum")
}

func TestIndexReferences_EmptyHasNoRange(t *testing.T) {
	ix := newIndexer()
	for _, tokens := range [][]scripture.Token{nil, {}, {"garbage"}, {"John.3.99"}} {
		set, rng := ix.IndexReferences(tokens)
		assert.Empty(t, set)
		assert.Nil(t, rng)
	}
}

func TestBackfill_Priority(t *testing.T) {
	ix := newIndexer()
	tests := []struct {
		name string
		rec  Record
		want Range
	}{
		{"exact ids win", Record{VerseIDs: []int{43003016}, Primary: "Matt.5.44"}, Range{43003016, 43003016}},
		{"primary next", Record{Primary: "Matt.5.44", Detected: []string{"John.3.16"}}, Range{40005044, 40005044}},
		{"detected after bad primary", Record{Primary: "bogus", Detected: []string{"John.3.16", "John.3.17"}}, Range{43003016, 43003017}},
		{"hinted human citation", Record{Hinted: []string{"Rom 8:28"}}, Range{45008028, 45008028}},
		{"unmatched last", Record{Unmatched: []string{"Gen.1.1"}}, Range{1001001, 1001001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, rng := ix.Backfill(tt.rec)
			require.NotNil(t, rng)
			assert.Equal(t, tt.want, *rng)
			lo, hi, _ := set.Bounds()
			assert.Equal(t, rng.Start, lo)
			assert.Equal(t, rng.End, hi)
		})
	}

	set, rng := ix.Backfill(Record{Primary: "nothing here"})
	assert.Nil(t, rng)
	assert.Empty(t, set)
}

func TestOverlapPolicy(t *testing.T) {
	r := scripture.NewResolver(0)
	// A unit that mentions John 3:1 and John 3:36 but nothing between.
	unitSet := scripture.Union(r.Expand("John.3.1"), r.Expand("John.3.36"))
	unitRange := FromSet(unitSet)
	query := r.Expand("John.3.16")

	assert.True(t, TrustRange.Match(unitRange, unitSet, query), "range overlap is final")
	assert.False(t, VerifyExact.Match(unitRange, unitSet, query), "exact set has no John 3:16")
	assert.True(t, VerifyExact.Match(unitRange, unitSet, r.Expand("John.3.36")))
	assert.False(t, VerifyExact.Match(nil, nil, query))
	assert.False(t, TrustRange.Match(unitRange, unitSet, nil))
}

type memSource struct {
	units   map[string]Record
	ranges  map[string]*Range
	updates int
}

func (m *memSource) UnitsMissingRange(_ context.Context, after string, limit int) ([]Unit, error) {
	var ids []string
	for id := range m.units {
		if m.ranges[id] == nil && id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, Unit{ID: id, Record: m.units[id]})
	}
	return out, nil
}

func (m *memSource) SetVerseIndex(_ context.Context, id string, set scripture.VerseSet, rng *Range) error {
	m.updates++
	m.ranges[id] = rng
	rec := m.units[id]
	rec.VerseIDs = set.Ints()
	m.units[id] = rec
	return nil
}

func TestBackfillMissing_Idempotent(t *testing.T) {
	ix := newIndexer()
	src := &memSource{
		units: map[string]Record{
			"a": {Primary: "John.3.16"},
			"b": {Detected: []string{"Gen.1.1-3"}},
			"c": {Primary: "no refs"},
			"d": {Hinted: []string{"Ps 23:1"}},
		},
		ranges: map[string]*Range{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	n, err := ix.BackfillMissing(context.Background(), src, 2, log)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Nil(t, src.ranges["c"])
	assert.Equal(t, Range{1001001, 1001003}, *src.ranges["b"])

	n, err = ix.BackfillMissing(context.Background(), src, 2, log)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, src.updates)
}
