package scripture

import (
	"fmt"
	"slices"
)

// VerseID encodes a single verse as book*1_000_000 + chapter*1_000 + verse.
// Integer order matches canonical order across books.
type VerseID int

// NewVerseID returns the id for a (book, chapter, verse) triple, validated
// against the canon.
func NewVerseID(book, chapter, verse int) (VerseID, bool) {
	if verse < 1 || verse > VerseCount(book, chapter) {
		return 0, false
	}
	return VerseID(book*1_000_000 + chapter*1_000 + verse), true
}

func (v VerseID) Book() int    { return int(v) / 1_000_000 }
func (v VerseID) Chapter() int { return int(v) / 1_000 % 1_000 }
func (v VerseID) Verse() int   { return int(v) % 1_000 }

// Valid reports whether v names a verse that exists in the canon.
func (v VerseID) Valid() bool {
	_, ok := NewVerseID(v.Book(), v.Chapter(), v.Verse())
	return ok
}

// Ordinal is the zero-based position of v in the whole canon. Two verses
// are adjacent iff their ordinals differ by one.
func (v VerseID) Ordinal() int {
	return chapterFirst[v.Book()-1][v.Chapter()-1] + v.Verse() - 1
}

func (v VerseID) String() string {
	b, ok := BookAt(v.Book())
	if !ok {
		return fmt.Sprintf("VerseID(%d)", int(v))
	}
	return fmt.Sprintf("%s.%d.%d", b.OSIS, v.Chapter(), v.Verse())
}

// verseAtOrdinal inverts Ordinal.
func verseAtOrdinal(ord int) (VerseID, bool) {
	if ord < 0 || ord >= totalVerses {
		return 0, false
	}
	book, _ := slices.BinarySearchFunc(chapterFirst, ord, func(starts []int, target int) int {
		if starts[0] <= target {
			return -1
		}
		return 1
	})
	// book is the index of the first book starting after ord.
	starts := chapterFirst[book-1]
	ch, found := slices.BinarySearch(starts, ord)
	if !found {
		ch--
	}
	return VerseID(book*1_000_000 + (ch+1)*1_000 + ord - starts[ch] + 1), true
}

// VerseSet is a sorted, deduplicated list of verse ids.
type VerseSet []VerseID

// NewVerseSet sorts and deduplicates ids into a set.
func NewVerseSet(ids ...VerseID) VerseSet {
	out := slices.Clone(ids)
	slices.Sort(out)
	return VerseSet(slices.Compact(out))
}

// Union merges sets into a new set.
func Union(sets ...VerseSet) VerseSet {
	var all []VerseID
	for _, s := range sets {
		all = append(all, s...)
	}
	return NewVerseSet(all...)
}

func (s VerseSet) Empty() bool { return len(s) == 0 }

// Bounds returns the smallest and largest ids. ok is false for an empty set.
func (s VerseSet) Bounds() (lo, hi VerseID, ok bool) {
	if len(s) == 0 {
		return 0, 0, false
	}
	return s[0], s[len(s)-1], true
}

// Contains reports exact membership.
func (s VerseSet) Contains(v VerseID) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}

// Overlaps reports whether the two sets share at least one id.
func (s VerseSet) Overlaps(other VerseSet) bool {
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			return true
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Contiguous reports whether the set is one unbroken run of canonical verses.
func (s VerseSet) Contiguous() bool {
	if len(s) == 0 {
		return false
	}
	return s[len(s)-1].Ordinal()-s[0].Ordinal() == len(s)-1
}

// Runs splits the set into maximal contiguous stretches, each returned as
// its first and last id. Because only canonical ids are ever stored, an id
// BETWEEN the bounds of a run belongs to that run.
func (s VerseSet) Runs() [][2]VerseID {
	var out [][2]VerseID
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1].Ordinal() == s[j].Ordinal()+1 {
			j++
		}
		out = append(out, [2]VerseID{s[i], s[j]})
		i = j + 1
	}
	return out
}

// Ints returns the set as plain ints, for storage.
func (s VerseSet) Ints() []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

// FromInts builds a set from stored ints, dropping ids outside the canon.
func FromInts(ids []int) VerseSet {
	out := make([]VerseID, 0, len(ids))
	for _, n := range ids {
		if v := VerseID(n); v.Valid() {
			out = append(out, v)
		}
	}
	return NewVerseSet(out...)
}

// span expands an inclusive ordinal range into a set.
func span(start, end VerseID) VerseSet {
	lo, hi := start.Ordinal(), end.Ordinal()
	if hi < lo {
		return nil
	}
	out := make(VerseSet, 0, hi-lo+1)
	for o := lo; o <= hi; o++ {
		v, _ := verseAtOrdinal(o)
		out = append(out, v)
	}
	return out
}
