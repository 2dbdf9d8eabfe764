package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Chunk is a bounded span of a document body. StartChar and EndChar are
// byte offsets into the text the chunk was cut from.
type Chunk struct {
	Index     int
	Text      string
	StartChar int
	EndChar   int
	Tokens    int

	// Transcript chunks only.
	TStart   float64
	TEnd     float64
	Speakers []string
}

// TextConfig controls text-mode chunking.
type TextConfig struct {
	MaxTokens int // Budget for paragraph accumulation.
	HardCap   int // No chunk ever exceeds this many tokens.
}

// DefaultTextConfig returns sensible defaults.
func DefaultTextConfig() TextConfig {
	return TextConfig{
		MaxTokens: 512,
		HardCap:   1024,
	}
}

func (c TextConfig) normalized() TextConfig {
	d := DefaultTextConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.HardCap <= 0 {
		c.HardCap = d.HardCap
	}
	if c.HardCap < c.MaxTokens {
		c.HardCap = c.MaxTokens
	}
	return c
}

type span struct {
	start, end int
	words      int
}

var paragraphSep = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)

// ChunkText splits text on paragraph boundaries and greedily packs
// paragraphs while the running estimate stays within MaxTokens. A paragraph
// whose own estimate exceeds HardCap is split on sentence ends (and on
// words, for a single runaway sentence).
func ChunkText(text string, cfg TextConfig) []Chunk {
	cfg = cfg.normalized()

	var chunks []Chunk
	var cur []span
	curWords := 0

	emit := func(start, end, words int) {
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      text[start:end],
			StartChar: start,
			EndChar:   end,
			Tokens:    tokensForWords(words),
		})
	}
	flush := func() {
		if len(cur) == 0 {
			return
		}
		emit(cur[0].start, cur[len(cur)-1].end, curWords)
		cur = cur[:0]
		curWords = 0
	}

	for _, p := range paragraphSpans(text) {
		if tokensForWords(p.words) > cfg.HardCap {
			flush()
			for _, piece := range splitOversized(text, p, cfg) {
				emit(piece.start, piece.end, piece.words)
			}
			continue
		}
		if len(cur) > 0 && tokensForWords(curWords+p.words) > cfg.MaxTokens {
			flush()
		}
		cur = append(cur, p)
		curWords += p.words
	}
	flush()

	if len(chunks) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			start := strings.Index(text, trimmed)
			emit(start, start+len(trimmed), len(strings.Fields(trimmed)))
		}
	}
	return chunks
}

// paragraphSpans returns trimmed, non-empty paragraph spans.
func paragraphSpans(text string) []span {
	var out []span
	prev := 0
	add := func(start, end int) {
		if s, e, ok := trimSpan(text, start, end); ok {
			out = append(out, span{start: s, end: e, words: len(strings.Fields(text[s:e]))})
		}
	}
	for _, sep := range paragraphSep.FindAllStringIndex(text, -1) {
		add(prev, sep[0])
		prev = sep[1]
	}
	add(prev, len(text))
	return out
}

func trimSpan(text string, start, end int) (int, int, bool) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end, start < end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f' || b == '\v'
}

// splitOversized packs the sentences of one paragraph into pieces of at
// most MaxTokens. A sentence that alone exceeds HardCap is cut on words.
func splitOversized(text string, p span, cfg TextConfig) []span {
	var units []span
	for _, s := range sentenceSpans(text, p.start, p.end) {
		if tokensForWords(s.words) > cfg.HardCap {
			units = append(units, wordSpans(text, s.start, s.end)...)
			continue
		}
		units = append(units, s)
	}

	var pieces []span
	var cur span
	open := false
	for _, u := range units {
		if open && tokensForWords(cur.words+u.words) > cfg.MaxTokens {
			pieces = append(pieces, cur)
			open = false
		}
		if !open {
			cur = u
			open = true
			continue
		}
		cur.end = u.end
		cur.words += u.words
	}
	if open {
		pieces = append(pieces, cur)
	}
	return pieces
}

// sentenceSpans breaks [start, end) after '.', '!' or '?' followed by
// whitespace.
func sentenceSpans(text string, start, end int) []span {
	var out []span
	sStart := start
	for i := start; i < end; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < end && isSpace(text[i+1]) {
			if s, e, ok := trimSpan(text, sStart, i+1); ok {
				out = append(out, span{start: s, end: e, words: len(strings.Fields(text[s:e]))})
			}
			sStart = i + 1
		}
	}
	if s, e, ok := trimSpan(text, sStart, end); ok {
		out = append(out, span{start: s, end: e, words: len(strings.Fields(text[s:e]))})
	}
	return out
}

// wordSpans returns one span per whitespace-separated word.
func wordSpans(text string, start, end int) []span {
	var out []span
	inWord := false
	wStart := start
	for i, r := range text[start:end] {
		pos := start + i
		if unicode.IsSpace(r) {
			if inWord {
				out = append(out, span{start: wStart, end: pos, words: 1})
				inWord = false
			}
			continue
		}
		if !inWord {
			wStart = pos
			inWord = true
		}
	}
	if inWord {
		out = append(out, span{start: wStart, end: end, words: 1})
	}
	return out
}
