package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/versegest/internal/doctree"
	"github.com/dgallion1/versegest/internal/faults"
)

// PDFParser handles PDF files with the Go library, optionally falling back
// to pdftotext when the library cannot extract anything. Each page becomes
// a node carrying its page number.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Name() string    { return "pdf" }
func (p *PDFParser) Version() string { return "2" }

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, faults.Unsupported(filename, "corrupt pdf", errors.New("missing %PDF header"))
	}

	pages, err := extractPDFPages(data)
	if errors.Is(err, pdflib.ErrInvalidPassword) {
		return nil, faults.Unsupported(filename, "encrypted pdf", err)
	}
	if (err != nil || blank(pages)) && p.FallbackPdftotext {
		if alt, altErr := extractPdftotext(data); altErr == nil {
			pages, err = alt, nil
		}
	}
	if err != nil {
		return nil, faults.Unsupported(filename, "corrupt pdf", err)
	}
	if blank(pages) {
		return nil, faults.Unsupported(filename, "pdf has no extractable text", nil)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	for i, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Page %d", i+1),
			Text:  page,
			Page:  i + 1,
		})
	}
	return tree, nil
}

func extractPDFPages(data []byte) (pages []string, err error) {
	// The library panics on some malformed xref tables.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf reader: %v", rec)
		}
	}()
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := reader.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func extractPdftotext(data []byte) ([]string, error) {
	tmp, err := os.CreateTemp("", "versegest-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	// pdftotext separates pages with form feeds.
	return strings.Split(string(out), "\f"), nil
}

func blank(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}
