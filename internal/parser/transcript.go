package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/faults"
)

// TranscriptParser reads SRT and WebVTT caption files into timed segments.
// Cue numbers are optional, hours are optional (VTT), and either "," or
// "." may separate milliseconds.
type TranscriptParser struct{}

func (p *TranscriptParser) Name() string    { return "transcript" }
func (p *TranscriptParser) Version() string { return "1" }

var (
	cueTimeRe  = regexp.MustCompile(`^((?:\d+:)?\d{1,2}:\d{2}[,.]\d{3})\s+-->\s+((?:\d+:)?\d{1,2}:\d{2}[,.]\d{3})`)
	voiceRe    = regexp.MustCompile(`^<v(?:\.[\w.-]+)?\s+([^>]+)>`)
	speakerRe  = regexp.MustCompile(`^([A-Z][\p{L}.'-]*(?: [A-Z][\p{L}.'-]*){0,2}):\s+(.+)$`)
	cueTagRe   = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	errBadCue  = errors.New("malformed cue")
	vttHeaders = []string{"NOTE", "STYLE", "REGION"}
)

// ParseSegments returns the cues in file order. A file with no spoken text
// is rejected as an unsupported source.
func (p *TranscriptParser) ParseSegments(r io.Reader, filename string) ([]chunker.Segment, error) {
	br := bufio.NewReader(r)
	var segs []chunker.Segment
	first := true

	for {
		line, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		if first {
			first = false
			line = strings.TrimPrefix(line, "\ufeff")
			if strings.HasPrefix(line, "WEBVTT") {
				if err := skipBlock(br); err != nil {
					return nil, err
				}
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isVTTMetaBlock(line) {
			if err := skipBlock(br); err != nil {
				return nil, err
			}
			continue
		}

		timeLine := line
		if !cueTimeRe.MatchString(timeLine) {
			// Cue identifier (SRT sequence number or VTT id) precedes the timing.
			timeLine, _, err = readTrimmedLine(br)
			if err != nil {
				return nil, err
			}
		}
		m := cueTimeRe.FindStringSubmatch(timeLine)
		if m == nil {
			return nil, faults.Unsupported(filename, "malformed transcript", fmt.Errorf("%w: invalid time line %q", errBadCue, timeLine))
		}
		start, err1 := cueSeconds(m[1])
		end, err2 := cueSeconds(m[2])
		if err := errors.Join(err1, err2); err != nil {
			return nil, faults.Unsupported(filename, "malformed transcript", err)
		}

		var texts []string
		for {
			l, eof, err := readTrimmedLine(br)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(l) == "" {
				break
			}
			texts = append(texts, l)
			if eof {
				break
			}
		}
		text := strings.Join(texts, "\n")
		if !utf8.ValidString(text) {
			return nil, faults.Unsupported(filename, "transcript is not valid UTF-8", nil)
		}
		speaker, text := splitSpeaker(text)
		text = strings.TrimSpace(cueTagRe.ReplaceAllString(text, ""))
		if text == "" {
			continue
		}
		segs = append(segs, chunker.Segment{Start: start, End: end, Text: text, Speaker: speaker})
	}

	if len(segs) == 0 {
		return nil, faults.Unsupported(filename, "transcript has no cues", nil)
	}
	return segs, nil
}

// splitSpeaker pulls a voice tag or a leading "Name:" label off a cue.
func splitSpeaker(text string) (string, string) {
	if m := voiceRe.FindStringSubmatchIndex(text); m != nil {
		return strings.TrimSpace(text[m[2]:m[3]]), text[m[1]:]
	}
	if m := speakerRe.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	return "", text
}

func isVTTMetaBlock(line string) bool {
	for _, h := range vttHeaders {
		if line == h || strings.HasPrefix(line, h+" ") {
			return true
		}
	}
	return false
}

// skipBlock consumes lines through the next blank line.
func skipBlock(br *bufio.Reader) error {
	for {
		l, eof, err := readTrimmedLine(br)
		if err != nil {
			return err
		}
		if eof || strings.TrimSpace(l) == "" {
			return nil
		}
	}
}

// cueSeconds parses [hh:]mm:ss(,|.)mmm.
func cueSeconds(ts string) (float64, error) {
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: bad timestamp %q", errBadCue, ts)
		}
		if i < len(parts)-1 && v != float64(int(v)) {
			return 0, fmt.Errorf("%w: bad timestamp %q", errBadCue, ts)
		}
		total = total*60 + v
	}
	return total, nil
}

// readTrimmedLine reads one line with its CRLF or LF ending removed. eof
// is set only when nothing was left to read.
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, err
		}
		eof = true
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}
