package retrieval

import (
	"context"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/verserange"
)

// SeedFile is the YAML layout read by LoadSeeds:
//
//	pairs:
//	  - kind: contradiction
//	    a: John 3:16
//	    b: Matt.5.44
//	    summary: ...
//	commentary:
//	  - ref: Rom.8.28
//	    excerpt: ...
type SeedFile struct {
	Pairs []struct {
		Kind        string   `yaml:"kind"`
		A           string   `yaml:"a"`
		B           string   `yaml:"b"`
		Perspective string   `yaml:"perspective"`
		Summary     string   `yaml:"summary"`
		Weight      *float64 `yaml:"weight"`
	} `yaml:"pairs"`
	Commentary []struct {
		Ref         string `yaml:"ref"`
		Excerpt     string `yaml:"excerpt"`
		Perspective string `yaml:"perspective"`
		Source      string `yaml:"source"`
	} `yaml:"commentary"`
}

// SeedWriter stores seeds. *store.Store implements it.
type SeedWriter interface {
	UpsertPairSeed(ctx context.Context, seed store.PairSeed) error
	InsertCommentary(ctx context.Context, c store.CommentarySeed) (int64, error)
}

// LoadSeeds reads a seed file, canonicalizes every reference and stores
// each side with its own range. References may be OSIS tokens or human
// citations but must name one contiguous run. Loading stops at the first
// entry that does not resolve.
func LoadSeeds(ctx context.Context, r io.Reader, resolver *scripture.Resolver, w SeedWriter) (pairs, commentary int, err error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("decode seed file: %w", err)
	}

	for i, p := range f.Pairs {
		kind := store.SeedKind(p.Kind)
		if kind != store.Contradiction && kind != store.Harmony {
			return pairs, commentary, fmt.Errorf("pair %d: unknown kind %q", i, p.Kind)
		}
		a, ra, ok := resolveSeedRef(resolver, p.A)
		if !ok {
			return pairs, commentary, fmt.Errorf("pair %d: unresolvable reference %q", i, p.A)
		}
		b, rb, ok := resolveSeedRef(resolver, p.B)
		if !ok {
			return pairs, commentary, fmt.Errorf("pair %d: unresolvable reference %q", i, p.B)
		}
		err := w.UpsertPairSeed(ctx, store.PairSeed{
			Kind: kind, A: a, B: b,
			Perspective: p.Perspective, Summary: p.Summary, Weight: p.Weight,
			RangeA: ra, RangeB: rb,
		})
		if err != nil {
			return pairs, commentary, err
		}
		pairs++
	}

	for i, c := range f.Commentary {
		ref, rng, ok := resolveSeedRef(resolver, c.Ref)
		if !ok {
			return pairs, commentary, fmt.Errorf("commentary %d: unresolvable reference %q", i, c.Ref)
		}
		_, err := w.InsertCommentary(ctx, store.CommentarySeed{
			Ref: ref, Excerpt: c.Excerpt, Perspective: c.Perspective, Source: c.Source, Range: rng,
		})
		if err != nil {
			return pairs, commentary, err
		}
		commentary++
	}
	return pairs, commentary, nil
}

func resolveSeedRef(resolver *scripture.Resolver, raw string) (scripture.Token, *verserange.Range, bool) {
	set := resolver.ExpandLoose(raw)
	rng := verserange.FromSet(set)
	if rng == nil {
		return "", nil, false
	}
	tok, ok := scripture.Format(set)
	return tok, rng, ok
}
