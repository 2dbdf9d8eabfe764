package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/versegest/internal/doctree"
)

// TextParser handles plain text files. Blank lines separate paragraphs.
type TextParser struct{}

func (p *TextParser) Name() string    { return "text" }
func (p *TextParser) Version() string { return "1" }

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	var current []string
	emit := func() {
		if len(current) > 0 {
			tree.Children = append(tree.Children, &doctree.DocNode{Text: strings.Join(current, "\n")})
			current = current[:0]
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			emit()
			continue
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	emit()
	return tree, nil
}
