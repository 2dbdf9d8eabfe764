package store

import (
	"context"
	"fmt"
	"strings"
)

// LexicalHit is one full-text match. BM25 is SQLite's bm25() value: lower
// (more negative) is more relevant.
type LexicalHit struct {
	PassageID string
	BM25      float64
}

// SearchFTS runs an FTS5 MATCH expression against sanitized passage text,
// restricted by f, best matches first.
func (s *Store) SearchFTS(ctx context.Context, match string, f Filter, limit int) ([]LexicalHit, error) {
	var qb strings.Builder
	args := []any{match}
	qb.WriteString(
		`SELECT p.id, bm25(passages_fts)
		FROM passages_fts
		JOIN passages p ON p.rowid = passages_fts.rowid
		JOIN documents d ON d.id = p.document_id
		WHERE passages_fts MATCH ?`)
	f.where(&qb, &args)
	qb.WriteString(` ORDER BY bm25(passages_fts), p.id`)
	if limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("full-text query: %w", err)
	}
	defer rows.Close()

	var out []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.PassageID, &h.BM25); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
