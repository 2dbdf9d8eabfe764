package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkText_SmallTextFitsOneChunk(t *testing.T) {
	text := "First paragraph about grace.\n\nSecond paragraph about faith."
	chunks := ChunkText(text, TextConfig{MaxTokens: 500, HardCap: 1000})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].Text != text {
		t.Errorf("expected chunk to hold the whole text, got %q", chunks[0].Text)
	}
	if chunks[0].StartChar != 0 || chunks[0].EndChar != len(text) {
		t.Errorf("expected offsets 0..%d, got %d..%d", len(text), chunks[0].StartChar, chunks[0].EndChar)
	}
}

func TestChunkText_FlushesOnBudget(t *testing.T) {
	// Each paragraph is 30 words (~39 tokens); a 50-token budget holds one.
	para := strings.TrimSpace(strings.Repeat("word ", 30))
	text := strings.Join([]string{para, para, para}, "\n\n")

	chunks := ChunkText(text, TextConfig{MaxTokens: 50, HardCap: 100})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Text != para {
			t.Errorf("chunk %d: unexpected text %q", i, c.Text)
		}
		if text[c.StartChar:c.EndChar] != c.Text {
			t.Errorf("chunk %d: offsets do not address its text", i)
		}
	}
}

func TestChunkText_OversizedParagraphSplitsOnSentences(t *testing.T) {
	// ~3000 words in one paragraph, far above the hard cap.
	large := strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300))
	cfg := TextConfig{MaxTokens: 100, HardCap: 150}

	chunks := ChunkText(large, cfg)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if est := EstimateTokens(c.Text); est > cfg.HardCap {
			t.Errorf("chunk %d has %d tokens, hard cap %d", c.Index, est, cfg.HardCap)
		}
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("chunk %d should end on a sentence boundary: %q", c.Index, c.Text[len(c.Text)-20:])
		}
	}
}

func TestChunkText_RunawaySentenceSplitsOnWords(t *testing.T) {
	runaway := strings.TrimSpace(strings.Repeat("selah ", 500))
	cfg := TextConfig{MaxTokens: 40, HardCap: 60}

	chunks := ChunkText(runaway, cfg)
	if len(chunks) < 10 {
		t.Fatalf("expected word-level split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if est := EstimateTokens(c.Text); est > cfg.HardCap {
			t.Errorf("chunk %d has %d tokens, hard cap %d", c.Index, est, cfg.HardCap)
		}
	}
}

func TestChunkText_ConcatenationRecoversInput(t *testing.T) {
	var paras []string
	for i := range 40 {
		n := 5 + (i*7)%60
		paras = append(paras, strings.TrimSpace(strings.Repeat(fmt.Sprintf("p%d ", i), n)))
	}
	input := "\n\n  " + strings.Join(paras, "\n\n") + "\n\n\n"

	chunks := ChunkText(input, TextConfig{MaxTokens: 80, HardCap: 120})

	var parts []string
	prevEnd := 0
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("indices must be 0..n-1, chunk %d has %d", i, c.Index)
		}
		if c.StartChar < prevEnd {
			t.Fatalf("chunk %d starts at %d before previous end %d", i, c.StartChar, prevEnd)
		}
		if strings.TrimSpace(c.Text) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
		prevEnd = c.EndChar
		parts = append(parts, c.Text)
	}
	if got := strings.Join(parts, "\n\n"); got != strings.TrimSpace(input) {
		t.Errorf("concatenation differs from trimmed input")
	}
}

func TestChunkText_Empty(t *testing.T) {
	if chunks := ChunkText("   \n\n \t ", DefaultTextConfig()); len(chunks) != 0 {
		t.Errorf("expected no chunks for whitespace, got %d", len(chunks))
	}
}

func TestChunkSegments_WindowAndSpeakers(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 5, Text: "In the beginning", Speaker: "Bob"},
		{Start: 5, End: 10, Text: "was the Word", Speaker: "Alice"},
		{Start: 10, End: 15, Text: "  ", Speaker: "Carol"},
		{Start: 15, End: 20, Text: "and the Word was with God", Speaker: "Bob"},
		{Start: 100, End: 110, Text: "John one verse one", Speaker: "Alice"},
	}
	chunks := ChunkSegments(segs, TranscriptConfig{MaxTokens: 400, MaxWindow: 60})

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := chunks[0]
	if first.TStart != 0 || first.TEnd != 20 {
		t.Errorf("expected first chunk 0..20s, got %v..%v", first.TStart, first.TEnd)
	}
	if strings.Join(first.Speakers, ",") != "Alice,Bob" {
		t.Errorf("expected sorted unique speakers, got %v", first.Speakers)
	}
	if chunks[1].TStart != 100 || chunks[1].Index != 1 {
		t.Errorf("unexpected second chunk: %+v", chunks[1])
	}

	body := TranscriptBody(segs)
	for _, c := range chunks {
		if body[c.StartChar:c.EndChar] != c.Text {
			t.Errorf("chunk %d offsets do not address the transcript body", c.Index)
		}
	}
}

func TestChunkSegments_TokenBudget(t *testing.T) {
	var segs []Segment
	for i := range 20 {
		segs = append(segs, Segment{Start: float64(i), End: float64(i + 1), Text: strings.Repeat("amen ", 10)})
	}
	chunks := ChunkSegments(segs, TranscriptConfig{MaxTokens: 30, MaxWindow: 3600})
	if len(chunks) != 10 {
		t.Fatalf("expected 10 chunks of two segments, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Tokens > 30 {
			t.Errorf("chunk %d over budget: %d", c.Index, c.Tokens)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"one two three", 3},
		{strings.Repeat("w ", 100), 133},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
