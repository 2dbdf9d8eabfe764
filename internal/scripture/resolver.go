package scripture

import (
	"slices"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultMemoSize bounds the expansion memo when NewResolver gets 0.
const DefaultMemoSize = 4096

// Resolver parses, expands and compares Scripture references. It never
// returns errors: malformed input yields empty results.
type Resolver struct {
	mu   sync.Mutex
	memo *lru.Cache
}

// NewResolver creates a resolver whose expansion memo holds at most
// memoSize tokens.
func NewResolver(memoSize int) *Resolver {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}
	return &Resolver{memo: lru.New(memoSize)}
}

// Expand returns every verse the token covers, or an empty set when the
// token does not parse or names verses outside the canon.
func (r *Resolver) Expand(token Token) VerseSet {
	key := strings.TrimSpace(string(token))
	if key == "" {
		return nil
	}

	r.mu.Lock()
	if v, ok := r.memo.Get(key); ok {
		r.mu.Unlock()
		return slices.Clone(v.(VerseSet))
	}
	r.mu.Unlock()

	var set VerseSet
	if start, end, err := endpoints(key); err == nil {
		set = span(start, end)
	}

	r.mu.Lock()
	r.memo.Add(key, set)
	r.mu.Unlock()
	return slices.Clone(set)
}

// Intersects reports whether two tokens share at least one verse.
func (r *Resolver) Intersects(a, b Token) bool {
	return r.Expand(a).Overlaps(r.Expand(b))
}

// Canonicalize strips a trailing "!anchor" suffix and re-renders the token
// in canonical form. ok is false when the token covers no verses.
func (r *Resolver) Canonicalize(raw string) (Token, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '!'); i >= 0 {
		raw = raw[:i]
	}
	set := r.Expand(Token(raw))
	if set.Empty() {
		return "", false
	}
	return Format(set)
}

// Combine returns one token covering all inputs when they share a book and
// their union is a gapless run. A single input is returned unchanged.
// Gaps and mixed books both yield ok == false.
func (r *Resolver) Combine(tokens []Token) (Token, bool) {
	if len(tokens) == 0 {
		return "", false
	}
	if len(tokens) == 1 {
		if r.Expand(tokens[0]).Empty() {
			return "", false
		}
		return tokens[0], true
	}

	sets := make([]VerseSet, 0, len(tokens))
	book := 0
	for _, t := range tokens {
		s := r.Expand(t)
		if s.Empty() {
			return "", false
		}
		lo, hi, _ := s.Bounds()
		if lo.Book() != hi.Book() {
			return "", false
		}
		if book == 0 {
			book = lo.Book()
		} else if lo.Book() != book {
			return "", false
		}
		sets = append(sets, s)
	}
	return Format(Union(sets...))
}

// ClassifyMatches partitions hints by whether they intersect any detected
// token. Order of first appearance is kept and duplicates are dropped.
// Hints may be OSIS tokens or human citations.
func (r *Resolver) ClassifyMatches(detected []Token, hints []string) (matched, unmatched []string) {
	var coverage []VerseSet
	for _, d := range detected {
		if s := r.Expand(d); !s.Empty() {
			coverage = append(coverage, s)
		}
	}
	seen := make(map[string]bool, len(hints))
	for _, h := range hints {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true

		hit := false
		if hs := r.ExpandLoose(h); !hs.Empty() {
			for _, c := range coverage {
				if hs.Overlaps(c) {
					hit = true
					break
				}
			}
		}
		if hit {
			matched = append(matched, h)
		} else {
			unmatched = append(unmatched, h)
		}
	}
	return matched, unmatched
}

// ExpandLoose expands either an OSIS token or free text containing human
// citations.
func (r *Resolver) ExpandLoose(h string) VerseSet {
	if t, ok := r.Canonicalize(h); ok {
		return r.Expand(t)
	}
	_, all := r.Detect(h)
	var sets []VerseSet
	for _, t := range all {
		sets = append(sets, r.Expand(t))
	}
	return Union(sets...)
}
