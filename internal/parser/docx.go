package parser

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
)

// DOCXParser handles .docx files. Heading styles build the outline; a
// "Title" styled paragraph names the document.
type DOCXParser struct{}

func (p *DOCXParser) Name() string    { return "docx" }
func (p *DOCXParser) Version() string { return "2" }

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, faults.Unsupported(filename, "corrupt docx", err)
	}

	title := baseTitle(filename)
	o := newOutline()
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		switch style := docxStyle(para); {
		case strings.EqualFold(style, "title"):
			title = text
		case docxHeadingLevel(style) > 0:
			o.heading(docxHeadingLevel(style), text)
		default:
			o.paragraph(text)
		}
	}
	return o.tree(title), nil
}

func docxStyle(para *docx.Paragraph) string {
	if para.Properties == nil || para.Properties.Style == nil {
		return ""
	}
	return para.Properties.Style.Val
}

// docxHeadingLevel accepts both style ids ("Heading2") and display names
// ("heading 2").
func docxHeadingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
	if err != nil || n < 1 || n > 6 {
		return 0
	}
	return n
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
