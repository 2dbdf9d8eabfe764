package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/versegest/internal/store"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
	ellipsis  = "…"
)

func (e *Engine) render(ctx context.Context, rs []ranked, passages map[string]store.Passage, terms []string) []Result {
	if len(rs) == 0 {
		return nil
	}
	out := make([]Result, 0, len(rs))
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		p := passages[r.UnitID]
		snippet := Snippet(p.Text, terms, e.opts.SnippetChars)
		out = append(out, Result{
			UnitID:       r.UnitID,
			DocumentID:   r.DocumentID,
			Index:        p.Index,
			Snippet:      snippet,
			Highlighted:  Highlight(snippet, terms),
			Score:        r.score,
			VectorScore:  r.VectorScore,
			LexicalScore: r.LexicalScore,
			Primary:      p.Meta.Primary,
			Range:        p.Range,
		})
		ids = append(ids, r.UnitID)
	}

	if e.deps.Annotations != nil {
		notes, err := e.deps.Annotations.For(ctx, ids)
		if err != nil {
			e.log.Warn("annotations unavailable", "error", err)
			return out
		}
		for i := range out {
			out[i].Annotations = notes[out[i].UnitID]
		}
	}
	return out
}

func highlightTerms(q Query, tokens []string) []string {
	if len(q.Highlight) > 0 {
		return q.Highlight
	}
	return tokens
}

// Snippet trims text to at most limit bytes, centred on the first term
// occurrence when the text is longer. Cuts fall on word boundaries and are
// marked with an ellipsis.
func Snippet(text string, terms []string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 || len(text) <= limit {
		return text
	}
	focus := 0
	if spans := matchSpans(text, terms); len(spans) > 0 {
		focus = spans[0][0]
	}
	start := max(0, focus-limit/3)
	end := min(len(text), start+limit)
	start = max(0, end-limit)
	// Byte offsets may land inside a multi-byte rune.
	for start > 0 && start < end && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && end > start && !utf8.RuneStart(text[end]) {
		end--
	}

	if start > 0 {
		if i := strings.IndexByte(text[start:end], ' '); i >= 0 && start+i+1 < end {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexByte(text[start:end], ' '); i > 0 {
			end = start + i
		}
	}
	s := text[start:end]
	if start > 0 {
		s = ellipsis + s
	}
	if end < len(text) {
		s += ellipsis
	}
	return s
}

// Highlight wraps case-insensitive occurrences of terms in <mark> tags.
// Overlapping and adjacent matches become one marked span.
func Highlight(text string, terms []string) string {
	spans := matchSpans(text, terms)
	if len(spans) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text) + len(spans)*(len(markOpen)+len(markClose)))
	last := 0
	for _, sp := range spans {
		sb.WriteString(text[last:sp[0]])
		sb.WriteString(markOpen)
		sb.WriteString(text[sp[0]:sp[1]])
		sb.WriteString(markClose)
		last = sp[1]
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// matchSpans returns the merged byte spans of every term occurrence.
func matchSpans(text string, terms []string) [][2]int {
	var spans [][2]int
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(t))
		for _, m := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})
	merged := spans[:1]
	for _, sp := range spans[1:] {
		cur := &merged[len(merged)-1]
		if sp[0] <= cur[1] {
			cur[1] = max(cur[1], sp[1])
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
