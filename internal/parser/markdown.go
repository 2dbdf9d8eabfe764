package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.yaml.in/yaml/v3"

	"github.com/dgallion1/versegest/internal/doctree"
)

// MarkdownParser handles Markdown files using goldmark. A leading
// "---"-fenced YAML block is decoded into the tree's Frontmatter; a string
// "title" key there overrides the filename title.
type MarkdownParser struct{}

func (p *MarkdownParser) Name() string    { return "markdown" }
func (p *MarkdownParser) Version() string { return "2" }

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	front, body, err := splitFrontmatter(src)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(body))
	o := newOutline()
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			o.heading(h.Level, extractText(h, body))
			continue
		}
		o.paragraph(extractText(n, body))
	}

	tree := o.tree(baseTitle(filename))
	if len(front) > 0 {
		tree.Frontmatter = front
		if t, ok := front["title"].(string); ok && strings.TrimSpace(t) != "" {
			tree.Title = strings.TrimSpace(t)
		}
	}
	return tree, nil
}

// splitFrontmatter returns the decoded YAML block and the remaining body.
// Input without a block comes back unchanged.
func splitFrontmatter(src []byte) (map[string]any, []byte, error) {
	s := bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(s, []byte("---\n")) && !bytes.HasPrefix(s, []byte("---\r\n")) {
		return nil, src, nil
	}
	rest := s[bytes.IndexByte(s, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, src, nil
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}

	var front map[string]any
	if err := yaml.Unmarshal(block, &front); err != nil {
		return nil, nil, err
	}
	return front, body, nil
}

// extractText gets the text content of a goldmark AST node. Leaf blocks
// (code, raw HTML) contribute their source lines; everything else is the
// concatenation of its inline text, with nested blocks on their own lines.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
