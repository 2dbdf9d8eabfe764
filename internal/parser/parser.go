// Package parser turns source bytes into a document tree. Prose formats
// produce a doctree.DocTree; caption files produce timed segments and OSIS
// XML produces verse-tagged nodes plus commentary excerpts.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/versegest/internal/doctree"
)

// Parser converts raw document bytes into a DocTree. Name and Version are
// recorded on every passage the parser produced.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
	Name() string
	Version() string
}

// Format groups extensions by the shape of their parse output.
type Format int

const (
	FormatUnknown Format = iota
	FormatDocument
	FormatTranscript
	FormatMarkup
)

var formats = map[string]Format{
	".txt":      FormatDocument,
	".md":       FormatDocument,
	".markdown": FormatDocument,
	".csv":      FormatDocument,
	".html":     FormatDocument,
	".htm":      FormatDocument,
	".pdf":      FormatDocument,
	".docx":     FormatDocument,
	".srt":      FormatTranscript,
	".vtt":      FormatTranscript,
	".osis":     FormatMarkup,
	".xml":      FormatMarkup,
}

// FormatOf classifies a filename by extension.
func FormatOf(filename string) Format {
	return formats[strings.ToLower(filepath.Ext(filename))]
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".osis", ".xml":
		return &OSISParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// ForContentType picks a parser for a fetched URL body.
func ForContentType(contentType string) (Parser, bool) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "text/html", "application/xhtml+xml":
		return &HTMLParser{}, true
	case "text/plain", "":
		return &TextParser{}, true
	case "text/markdown", "text/x-markdown":
		return &MarkdownParser{}, true
	case "text/csv":
		return &CSVParser{}, true
	case "application/pdf":
		return &PDFParser{}, true
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return &DOCXParser{}, true
	case "application/xml", "text/xml":
		return &OSISParser{}, true
	}
	return nil, false
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return FormatOf(filename) != FormatUnknown
}
