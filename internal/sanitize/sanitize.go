// Package sanitize cleans passage text before it is embedded or indexed
// and pulls reference-keyed quotations out of it.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|` +
		`new\s+instructions|disregard\s+(previous|all|the\s+above))`,
)

var (
	markupTag    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	htmlEntities = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
)

// Text strips markup, control characters and lines that read as
// instructions to a language model. Paragraph breaks survive.
func Text(s string) string {
	s = markupTag.ReplaceAllString(s, " ")
	s = htmlEntities.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\u200b' || r == '\ufeff' {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if injectionPattern.MatchString(line) {
			continue
		}
		kept = append(kept, strings.TrimSpace(spaceRun.ReplaceAllString(line, " ")))
	}
	s = strings.Join(kept, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Suspicious reports whether s contains an instruction-injection phrase.
func Suspicious(s string) bool {
	return injectionPattern.MatchString(s)
}

// Slugify converts a string to a path-safe slug of at most 50 bytes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

var (
	nonSlug = regexp.MustCompile(`[^a-z0-9-]`)
	dashRun = regexp.MustCompile(`-+`)
)
