package scripture

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Token is a canonical OSIS reference such as "John.3.16", "John.3.16-18"
// or "Gen.1.31-Gen.2.3". Tokens are produced by the resolver, not by hand.
type Token string

// osisRef is the participle grammar for an OSIS reference:
//
//	Book[.Chapter[.Verse[sub]]][-[Book.]Chapter[.Verse] | -Verse]
type osisRef struct {
	Start *osisPoint `@@`
	End   *osisTail  `( "-" @@ )?`
}

type osisPoint struct {
	Book    string       `@Book`
	Chapter *osisChapter `( "." @@ )?`
}

type osisChapter struct {
	Number int        `@Int`
	Verse  *osisVerse `( "." @@ )?`
}

type osisVerse struct {
	Number int    `@Int`
	Sub    string `@SubVerse?`
}

type osisTail struct {
	Book   string     `( @Book "." )?`
	First  int        `@Int`
	Second *osisVerse `( "." @@ )?`
}

var osisLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Book", Pattern: `[1-4]?[A-Z][A-Za-z]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "SubVerse", Pattern: `[a-z]`},
	{Name: "Punct", Pattern: `[.\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var osisParser = participle.MustBuild[osisRef](
	participle.Lexer(osisLexer),
	participle.Elide("Whitespace"),
)

// endpoints parses an OSIS token into its first and last verse. Sub-verse
// letters are accepted and ignored.
func endpoints(token string) (start, end VerseID, err error) {
	ref, err := osisParser.ParseString("", strings.TrimSpace(token))
	if err != nil {
		return 0, 0, err
	}

	book, ok := bookNumberOrAlias(ref.Start.Book)
	if !ok {
		return 0, 0, fmt.Errorf("unknown book %q", ref.Start.Book)
	}

	startCh, endCh := 1, ChapterCount(book)
	startV, endV := 1, 0
	if c := ref.Start.Chapter; c != nil {
		startCh, endCh = c.Number, c.Number
		if c.Verse != nil {
			startV = c.Verse.Number
			endV = c.Verse.Number
		}
	}
	if endV == 0 {
		endV = VerseCount(book, endCh)
	}

	start, ok = NewVerseID(book, startCh, startV)
	if !ok {
		return 0, 0, fmt.Errorf("no such verse %s %d:%d", ref.Start.Book, startCh, startV)
	}

	endBook := book
	if t := ref.End; t != nil {
		hasStartVerse := ref.Start.Chapter != nil && ref.Start.Chapter.Verse != nil
		switch {
		case t.Book != "":
			endBook, ok = bookNumberOrAlias(t.Book)
			if !ok {
				return 0, 0, fmt.Errorf("unknown book %q", t.Book)
			}
			endCh = t.First
			endV = VerseCount(endBook, endCh)
			if t.Second != nil {
				endV = t.Second.Number
			}
		case t.Second != nil:
			endCh, endV = t.First, t.Second.Number
		case hasStartVerse:
			endV = t.First
		default:
			// "John.3-5" or "John-3": the tail is a chapter.
			endCh = t.First
			endV = VerseCount(book, endCh)
		}
	}

	end, ok = NewVerseID(endBook, endCh, endV)
	if !ok {
		return 0, 0, fmt.Errorf("no such verse in %q", token)
	}
	if end < start {
		return 0, 0, fmt.Errorf("reversed range %q", token)
	}
	return start, end, nil
}

// bookNumberOrAlias accepts an OSIS code or any known book name, so
// "Matthew.5.44" resolves like "Matt.5.44".
func bookNumberOrAlias(name string) (int, bool) {
	if n, ok := BookNumber(name); ok {
		return n, true
	}
	code, ok := LookupBook(name)
	if !ok {
		return 0, false
	}
	return BookNumber(code)
}

// FormatRange renders the canonical token covering start..end.
func FormatRange(start, end VerseID) Token {
	if end < start {
		start, end = end, start
	}
	if start == end {
		return Token(start.String())
	}
	if start.Book() == end.Book() && start.Chapter() == end.Chapter() {
		return Token(fmt.Sprintf("%s-%d", start, end.Verse()))
	}
	return Token(fmt.Sprintf("%s-%s", start, end))
}

// Format renders a contiguous set as one token. ok is false for empty or
// gapped sets.
func Format(set VerseSet) (Token, bool) {
	if !set.Contiguous() {
		return "", false
	}
	return FormatRange(set[0], set[len(set)-1]), true
}
