// Package verserange computes the exact verse set and the bounding verse
// range for a unit of content, and backfills them for stored units.
package verserange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/versegest/internal/scripture"
)

// Range is the closed interval [Start, End] bounding a verse set.
type Range struct {
	Start scripture.VerseID `json:"start" yaml:"start"`
	End   scripture.VerseID `json:"end" yaml:"end"`
}

// FromSet returns the bounds of set, or nil when set is empty.
func FromSet(set scripture.VerseSet) *Range {
	lo, hi, ok := set.Bounds()
	if !ok {
		return nil
	}
	return &Range{Start: lo, End: hi}
}

// Overlaps reports start <= o.End && end >= o.Start.
func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && r.End >= o.Start
}

// OverlapPolicy decides whether a range overlap is the final answer or only
// a pre-filter ahead of an exact verse set check.
type OverlapPolicy int

const (
	// VerifyExact treats range overlap as a pre-filter and requires the
	// candidate's exact verse set to share a verse with the query.
	VerifyExact OverlapPolicy = iota
	// TrustRange accepts range overlap as final. Used for seed
	// relationships whose stored ranges are tight two-endpoint spans.
	TrustRange
)

func (p OverlapPolicy) String() string {
	switch p {
	case TrustRange:
		return "trust_range"
	default:
		return "verify_exact"
	}
}

// Match applies the policy to one candidate.
func (p OverlapPolicy) Match(candidate *Range, candidateSet, query scripture.VerseSet) bool {
	q := FromSet(query)
	if candidate == nil || q == nil || !candidate.Overlaps(*q) {
		return false
	}
	if p == TrustRange {
		return true
	}
	return candidateSet.Overlaps(query)
}

// Indexer turns reference tokens into verse sets and ranges.
type Indexer struct {
	resolver *scripture.Resolver
}

func New(resolver *scripture.Resolver) *Indexer {
	return &Indexer{resolver: resolver}
}

// IndexReferences unions the expansion of every token. Tokens that do not
// expand are ignored. The range is nil iff the set is empty.
func (ix *Indexer) IndexReferences(tokens []scripture.Token) (scripture.VerseSet, *Range) {
	sets := make([]scripture.VerseSet, 0, len(tokens))
	for _, t := range tokens {
		sets = append(sets, ix.resolver.Expand(t))
	}
	set := scripture.Union(sets...)
	if set.Empty() {
		return nil, nil
	}
	return set, FromSet(set)
}

// Record holds what a stored unit remembers about its references.
type Record struct {
	VerseIDs  []int
	Primary   string
	Detected  []string
	Hinted    []string
	Unmatched []string
}

// Backfill recomputes set and range for a stored unit. Exact ids win when
// present; otherwise the first non-empty expansion among primary,
// detected, hinted and unmatched references is used.
func (ix *Indexer) Backfill(rec Record) (scripture.VerseSet, *Range) {
	if set := scripture.FromInts(rec.VerseIDs); !set.Empty() {
		return set, FromSet(set)
	}
	groups := [][]string{{rec.Primary}, rec.Detected, rec.Hinted, rec.Unmatched}
	for _, g := range groups {
		var sets []scripture.VerseSet
		for _, raw := range g {
			sets = append(sets, ix.resolver.ExpandLoose(raw))
		}
		if set := scripture.Union(sets...); !set.Empty() {
			return set, FromSet(set)
		}
	}
	return nil, nil
}

// Unit is one stored content unit whose range is missing.
type Unit struct {
	ID string
	Record
}

// Source lists units lacking a range and writes recomputed indexes.
// SetVerseIndex must write the set and range atomically.
type Source interface {
	UnitsMissingRange(ctx context.Context, afterID string, limit int) ([]Unit, error)
	SetVerseIndex(ctx context.Context, id string, set scripture.VerseSet, rng *Range) error
}

// BackfillMissing walks every unit lacking a range in id order and fills
// in what can be recomputed. It returns how many units were updated.
// Running it twice is a no-op the second time.
func (ix *Indexer) BackfillMissing(ctx context.Context, src Source, batch int, log *slog.Logger) (int, error) {
	if batch <= 0 {
		batch = 200
	}
	updated := 0
	after := ""
	for {
		units, err := src.UnitsMissingRange(ctx, after, batch)
		if err != nil {
			return updated, fmt.Errorf("list units: %w", err)
		}
		if len(units) == 0 {
			return updated, nil
		}
		for _, u := range units {
			after = u.ID
			set, rng := ix.Backfill(u.Record)
			if rng == nil {
				continue
			}
			if err := src.SetVerseIndex(ctx, u.ID, set, rng); err != nil {
				return updated, fmt.Errorf("update %s: %w", u.ID, err)
			}
			updated++
		}
		log.Info("backfill batch", "scanned", len(units), "updated", updated, "cursor", after)
	}
}
