package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/versegest/internal/doctree"
)

// refColumns are header names treated as a per-row reference.
var refColumns = map[string]bool{"ref": true, "reference": true, "osis": true, "osisref": true, "verse": true}

// csvBatchSize is the row count per node for tables without a reference column.
const csvBatchSize = 20

// CSVParser handles CSV files. When a header names a reference column each
// row becomes its own node tagged with that reference; otherwise rows are
// grouped into fixed-size batches.
type CSVParser struct{}

func (p *CSVParser) Name() string    { return "csv" }
func (p *CSVParser) Version() string { return "2" }

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: baseTitle(filename)}
	if len(records) < 2 {
		return tree, nil
	}
	headers := records[0]
	rows := records[1:]

	refCol := -1
	for i, h := range headers {
		if refColumns[strings.ToLower(strings.TrimSpace(h))] {
			refCol = i
			break
		}
	}

	if refCol >= 0 {
		for _, row := range rows {
			ref := ""
			if refCol < len(row) {
				ref = strings.TrimSpace(row[refCol])
			}
			text := rowText(headers, row, refCol)
			if text == "" {
				continue
			}
			tree.Children = append(tree.Children, &doctree.DocNode{Text: text, Ref: ref})
		}
		return tree, nil
	}

	for i := 0; i < len(rows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(rows))
		var lines []string
		for _, row := range rows[i:end] {
			if t := rowText(headers, row, -1); t != "" {
				lines = append(lines, t)
			}
		}
		if len(lines) == 0 {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1), // 1-indexed, skip header
			Text:  strings.Join(lines, "\n"),
		})
	}
	return tree, nil
}

// rowText renders "header: value" pairs, skipping empty cells and the
// column at skip.
func rowText(headers, row []string, skip int) string {
	var parts []string
	for j, cell := range row {
		cell = strings.TrimSpace(cell)
		if j == skip || cell == "" {
			continue
		}
		if j < len(headers) && strings.TrimSpace(headers[j]) != "" {
			parts = append(parts, strings.TrimSpace(headers[j])+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, ", ")
}
