package sanitize

import (
	"regexp"
	"strings"

	"github.com/dgallion1/versegest/internal/scripture"
)

// Quote is a quotation found next to the Scripture reference it cites.
type Quote struct {
	Text string          `json:"text" yaml:"text"`
	Ref  scripture.Token `json:"ref" yaml:"ref"`
}

var quoted = regexp.MustCompile(`“([^”]+)”|"([^"]+)"`)

const (
	citeAfter  = 60 // bytes after a quote searched for its citation
	citeBefore = 80 // bytes before, when nothing follows
)

// Quotes returns quotations that sit next to a Scripture reference. A
// citation following the quote wins over one preceding it. Quotes shorter
// than three words, longer than 300 bytes or carrying an injection phrase
// are dropped.
func Quotes(text string, r *scripture.Resolver) []Quote {
	var out []Quote
	seen := make(map[string]bool)
	for _, m := range quoted.FindAllStringSubmatchIndex(text, -1) {
		var q string
		if m[2] >= 0 {
			q = text[m[2]:m[3]]
		} else {
			q = text[m[4]:m[5]]
		}
		q = strings.TrimSpace(q)
		if !validQuote(q) || seen[q] {
			continue
		}

		ref, ok := citation(r, text[m[1]:min(len(text), m[1]+citeAfter)], false)
		if !ok {
			ref, ok = citation(r, text[max(0, m[0]-citeBefore):m[0]], true)
		}
		if !ok {
			continue
		}
		seen[q] = true
		out = append(out, Quote{Text: q, Ref: ref})
	}
	return out
}

// citation returns the first (or last) reference detected in window.
func citation(r *scripture.Resolver, window string, last bool) (scripture.Token, bool) {
	_, refs := r.Detect(window)
	if len(refs) == 0 {
		return "", false
	}
	if last {
		return refs[len(refs)-1], true
	}
	return refs[0], true
}

func validQuote(q string) bool {
	if len(strings.Fields(q)) < 3 || len(q) > 300 {
		return false
	}
	return !injectionPattern.MatchString(q)
}
