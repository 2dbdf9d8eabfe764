package chunker

import (
	"slices"
	"strings"
)

// Segment is one timed caption line. Times are seconds from the start of
// the recording.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}

// TranscriptConfig controls transcript-mode chunking.
type TranscriptConfig struct {
	MaxTokens int
	MaxWindow float64 // seconds
}

// DefaultTranscriptConfig returns sensible defaults.
func DefaultTranscriptConfig() TranscriptConfig {
	return TranscriptConfig{
		MaxTokens: 400,
		MaxWindow: 120,
	}
}

// TranscriptBody joins segment texts with newlines. Chunk offsets from
// ChunkSegments index into this string.
func TranscriptBody(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t)
	}
	return sb.String()
}

// ChunkSegments groups consecutive segments. A chunk is closed before the
// next segment would push it past MaxTokens or stretch it beyond MaxWindow
// seconds from its first segment's start.
func ChunkSegments(segs []Segment, cfg TranscriptConfig) []Chunk {
	d := DefaultTranscriptConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = d.MaxWindow
	}

	var (
		chunks   []Chunk
		cur      []Segment
		curWords int
		curStart int // byte offset of cur[0] in the body
		offset   int // byte offset of the next segment in the body
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		var speakers []string
		for i, s := range cur {
			texts[i] = strings.TrimSpace(s.Text)
			if sp := strings.TrimSpace(s.Speaker); sp != "" {
				speakers = append(speakers, sp)
			}
		}
		slices.Sort(speakers)
		text := strings.Join(texts, "\n")
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      text,
			StartChar: curStart,
			EndChar:   curStart + len(text),
			Tokens:    tokensForWords(curWords),
			TStart:    cur[0].Start,
			TEnd:      cur[len(cur)-1].End,
			Speakers:  slices.Compact(speakers),
		})
		cur = nil
		curWords = 0
	}

	for _, s := range segs {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		words := len(strings.Fields(t))
		if len(cur) > 0 {
			overBudget := tokensForWords(curWords+words) > cfg.MaxTokens
			overWindow := s.End-cur[0].Start > cfg.MaxWindow
			if overBudget || overWindow {
				flush()
			}
		}
		if len(cur) == 0 {
			curStart = offset
		}
		cur = append(cur, s)
		curWords += words
		offset += len(t) + 1
	}
	flush()
	return chunks
}
