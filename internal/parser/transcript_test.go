package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/versegest/internal/faults"
)

func TestTranscriptParser_SRT(t *testing.T) {
	input := "1\r\n00:00:01,000 --> 00:00:04,500\r\nPASTOR: Turn with me to John 3:16.\r\n\r\n" +
		"2\r\n00:00:05,000 --> 00:00:09,250\r\n<i>For God so loved</i>\r\nthe world.\r\n\r\n\r\n" +
		"3\r\n00:01:00,000 --> 00:01:02,000\r\n   \r\n"
	segs, err := (&TranscriptParser{}).ParseSegments(strings.NewReader(input), "sermon.srt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments (blank cue dropped), got %d", len(segs))
	}
	if segs[0].Speaker != "PASTOR" || segs[0].Text != "Turn with me to John 3:16." {
		t.Errorf("unexpected first segment: %+v", segs[0])
	}
	if segs[0].Start != 1 || segs[0].End != 4.5 {
		t.Errorf("unexpected timing: %v-%v", segs[0].Start, segs[0].End)
	}
	if segs[1].Text != "For God so loved\nthe world." || segs[1].Speaker != "" {
		t.Errorf("unexpected second segment: %+v", segs[1])
	}
}

func TestTranscriptParser_VTT(t *testing.T) {
	input := "WEBVTT - sermon\n\nNOTE recorded live\nsecond note line\n\n" +
		"intro\n01:02.000 --> 01:05.500 align:start\n<v Ann Lee>Grace and peace.</v>\n\n" +
		"1:00:00.000 --> 1:00:01.000\nAmen."
	segs, err := (&TranscriptParser{}).ParseSegments(strings.NewReader(input), "talk.vtt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Speaker != "Ann Lee" || segs[0].Text != "Grace and peace." {
		t.Errorf("unexpected voice cue: %+v", segs[0])
	}
	if segs[0].Start != 62 || segs[0].End != 65.5 {
		t.Errorf("unexpected timing: %v-%v", segs[0].Start, segs[0].End)
	}
	if segs[1].Start != 3600 || segs[1].Text != "Amen." {
		t.Errorf("unexpected final cue: %+v", segs[1])
	}
}

func TestTranscriptParser_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"header only":  "WEBVTT\n\n",
		"bad timing":   "1\n00:00:01 -> 00:00:02\nhello\n",
		"invalid utf8": "1\n00:00:01,000 --> 00:00:02,000\n\xff\xfe\n",
	}
	for name, input := range tests {
		_, err := (&TranscriptParser{}).ParseSegments(strings.NewReader(input), "x.srt")
		if !errors.Is(err, faults.ErrUnsupportedSource) {
			t.Errorf("%s: expected unsupported source, got %v", name, err)
		}
	}
}

func TestCueSeconds(t *testing.T) {
	tests := map[string]float64{
		"00:00:01,250": 1.25,
		"01:00.5":      60.5,
		"02:03:04.000": 7384,
	}
	for in, want := range tests {
		got, err := cueSeconds(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %v, got %v (%v)", in, want, got, err)
		}
	}
	if _, err := cueSeconds("aa:01.000"); err == nil {
		t.Errorf("expected error for non-numeric timestamp")
	}
}
