package scripture

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// citationPattern matches human citations: "John 3:16", "1 Cor. 13:4-7",
// "II Kings 2:11", "Gen 1:31-2:3", "Romans 8".
var citationPattern = regexp.MustCompile(
	`(?i)\b((?:[1-3]\s*|(?-i:I{1,3})\s+)?[a-z]+(?:\s+of\s+[a-z]+)?)\.?\s*` +
		`(\d{1,3})(?:\s*:\s*(\d{1,3})[a-z]?(?:\s*[-–—]\s*(\d{1,3})(?:\s*:\s*(\d{1,3}))?)?)?\b`,
)

// osisPattern matches OSIS tokens embedded in prose, e.g. "John.3.16-18".
var osisPattern = regexp.MustCompile(
	`\b[1-4]?[A-Z][A-Za-z]+\.\d+(?:\.\d+[a-z]?)?(?:-(?:[1-4]?[A-Z][A-Za-z]+\.)?\d+(?:\.\d+)?)?\b`,
)

type detection struct {
	pos   int
	token Token
}

// Detect scans free text for Scripture citations. all holds each distinct
// canonical token in order of first appearance. primary is the covering
// token of all matches when Combine succeeds, otherwise the first match.
func (r *Resolver) Detect(text string) (primary Token, all []Token) {
	var found []detection
	var osisSpans [][]int

	// Only resolvable tokens claim their span; anything else is left to
	// the human citation pass.
	for _, m := range osisPattern.FindAllStringIndex(text, -1) {
		if t, ok := r.Canonicalize(text[m[0]:m[1]]); ok {
			osisSpans = append(osisSpans, m)
			found = append(found, detection{pos: m[0], token: t})
		}
	}

	inOSIS := func(pos int) bool {
		for _, s := range osisSpans {
			if pos >= s[0] && pos < s[1] {
				return true
			}
		}
		return false
	}

	for pos := 0; pos < len(text); {
		m := citationPattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[pos+m[2*i] : pos+m[2*i+1]]
		}
		start := pos + m[0]
		chapterOnly := group(3) == ""
		if !inOSIS(start) && !(chapterOnly && countsSomething(text[pos+m[1]:])) {
			if t, ok := r.citationToken(group(1), group(2), group(3), group(4), group(5)); ok {
				found = append(found, detection{pos: start, token: t})
				pos += m[1]
				continue
			}
		}
		// Not a citation: retry from the next word so "in 2 Kings 2:11"
		// still finds "2 Kings 2:11".
		pos = nextWord(text, start)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	seen := make(map[Token]bool, len(found))
	for _, d := range found {
		if seen[d.token] {
			continue
		}
		seen[d.token] = true
		all = append(all, d.token)
	}
	if len(all) == 0 {
		return "", nil
	}
	if t, ok := r.Combine(all); ok {
		return t, all
	}
	return all[0], all
}

// citationToken converts the captured parts of a human citation into a
// canonical token. Chapter-only citations require a full book name so
// that prose like "is 5" is not read as Isaiah.
func (r *Resolver) citationToken(book, chapter, verse, endA, endB string) (Token, bool) {
	code, ok := LookupBook(book)
	if !ok {
		return "", false
	}
	ch, _ := strconv.Atoi(chapter)

	var raw string
	switch {
	case verse == "":
		if !isFullBookName(book) {
			return "", false
		}
		raw = fmt.Sprintf("%s.%d", code, ch)
	case endA == "":
		raw = fmt.Sprintf("%s.%d.%s", code, ch, verse)
	case endB == "":
		raw = fmt.Sprintf("%s.%d.%s-%s", code, ch, verse, endA)
	default:
		raw = fmt.Sprintf("%s.%d.%s-%s.%s.%s", code, ch, verse, code, endA, endB)
	}
	return r.Canonicalize(raw)
}

func isFullBookName(name string) bool {
	n := normalizeBookName(name)
	for _, b := range canon {
		if normalizeBookName(b.Name) == n {
			return true
		}
	}
	return strings.EqualFold(strings.TrimSpace(name), "psalm")
}

// nextWord returns the offset of the first word after the one at pos.
func nextWord(text string, pos int) int {
	i := pos
	for i < len(text) && isWordByte(text[i]) {
		i++
	}
	for i < len(text) && !isWordByte(text[i]) {
		i++
	}
	if i == pos {
		i++
	}
	return i
}

// chapterConnectives may follow a chapter-only citation in prose.
var chapterConnectives = map[string]bool{
	"and": true, "or": true, "to": true, "through": true, "with": true,
	"says": true, "tells": true, "teaches": true, "shows": true,
}

// countsSomething reports whether rest starts with a lowercase word that
// makes the preceding number a quantity, as in "Mark 5 times".
func countsSomething(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	end := 0
	for end < len(rest) && rest[end] >= 'a' && rest[end] <= 'z' {
		end++
	}
	if end == 0 {
		return false
	}
	return !chapterConnectives[rest[:end]]
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
