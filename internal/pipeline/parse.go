package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/versegest/internal/chunker"
	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/parser"
)

// parse is the second transition: *Fetched -> *Parsed. It is not retried.
func (o *Orchestrator) parse(_ context.Context, f *Fetched) (*Parsed, error) {
	switch {
	case f.Markup != nil:
		p := &parser.OSISParser{}
		return o.parsedTree(f, f.Markup.Tree, p.Name(), p.Version())

	case f.Segments != nil:
		return o.parsedSegments(f, f.Segments, "transcript-provider", "1")

	case f.Source.Kind == KindTranscript:
		p := &parser.TranscriptParser{}
		segs, err := p.ParseSegments(bytes.NewReader(f.Raw), f.SourceName)
		if err != nil {
			return nil, err
		}
		return o.parsedSegments(f, segs, p.Name(), p.Version())
	}

	p, err := o.documentParser(f)
	if err != nil {
		return nil, err
	}
	tree, err := p.Parse(bytes.NewReader(f.Raw), f.SourceName)
	if err != nil {
		var unsupported *faults.UnsupportedSourceError
		if errors.As(err, &unsupported) {
			return nil, err
		}
		return nil, faults.Unsupported(f.Source.Location(), "parse "+p.Name(), err)
	}
	return o.parsedTree(f, tree, p.Name(), p.Version())
}

func (o *Orchestrator) documentParser(f *Fetched) (parser.Parser, error) {
	var p parser.Parser
	if f.ContentType != "" {
		p, _ = parser.ForContentType(f.ContentType)
	}
	if p == nil {
		var err error
		if p, err = parser.ForFile(f.SourceName); err != nil {
			return nil, faults.Unsupported(f.Source.Location(), "unsupported format", err)
		}
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = o.opts.PDFFallback
	}
	return p, nil
}

func (o *Orchestrator) parsedTree(f *Fetched, tree *doctree.DocTree, name, version string) (*Parsed, error) {
	body := doctree.Flatten(tree)
	if err := checkBody(f, body.Text); err != nil {
		return nil, err
	}
	fm := mergeFrontmatter(tree.Frontmatter, f.Source.Frontmatter)
	return &Parsed{
		Fetched:       f,
		Parser:        name,
		ParserVersion: version,
		Title:         firstNonEmpty(f.Source.Title, tree.Title, f.SourceName),
		Body:          body.Text,
		Chunks:        chunker.ChunkText(body.Text, o.opts.Text),
		Sections:      body.Sections,
		Frontmatter:   fm,
	}, nil
}

func (o *Orchestrator) parsedSegments(f *Fetched, segs []chunker.Segment, name, version string) (*Parsed, error) {
	text := chunker.TranscriptBody(segs)
	if err := checkBody(f, text); err != nil {
		return nil, err
	}
	return &Parsed{
		Fetched:       f,
		Parser:        name,
		ParserVersion: version,
		Title:         firstNonEmpty(f.Source.Title, strings.TrimSuffix(f.SourceName, ".txt")),
		Body:          text,
		Chunks:        chunker.ChunkSegments(segs, o.opts.Transcript),
		Frontmatter:   f.Source.Frontmatter,
	}, nil
}

func checkBody(f *Fetched, text string) error {
	if strings.TrimSpace(text) == "" {
		return faults.Unsupported(f.Source.Location(), "no extractable text", nil)
	}
	if !utf8.ValidString(text) {
		return faults.Unsupported(f.Source.Location(), "text is not valid UTF-8", nil)
	}
	return nil
}

// mergeFrontmatter overlays the caller's values on the document's own.
func mergeFrontmatter(doc, caller map[string]any) map[string]any {
	if len(doc) == 0 {
		return caller
	}
	out := make(map[string]any, len(doc)+len(caller))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range caller {
		out[k] = v
	}
	return out
}

// sectionRefs lists the raw references tagged on body sections a chunk
// overlaps.
func sectionRefs(sections []doctree.Section, c chunker.Chunk) []string {
	var out []string
	for _, s := range sections {
		if s.Ref != "" && s.Start < c.EndChar && s.End > c.StartChar {
			out = append(out, s.Ref)
		}
	}
	return out
}

// breadcrumb is the heading path of the first section a chunk overlaps.
func breadcrumb(sections []doctree.Section, c chunker.Chunk) []string {
	for _, s := range sections {
		if s.Start < c.EndChar && s.End > c.StartChar {
			return s.Breadcrumb
		}
	}
	return nil
}

func (p *Parsed) String() string {
	return fmt.Sprintf("%s (%s %s, %d chunks)", p.Title, p.Parser, p.ParserVersion, len(p.Chunks))
}
