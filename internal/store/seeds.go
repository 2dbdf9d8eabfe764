package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/verserange"
)

// SeedKind distinguishes pair relationships.
type SeedKind string

const (
	Contradiction SeedKind = "contradiction"
	Harmony       SeedKind = "harmony"
)

// PairSeed relates two references. Each side carries its own range.
type PairSeed struct {
	ID          int64
	Kind        SeedKind
	A           scripture.Token
	B           scripture.Token
	Perspective string
	Summary     string
	Weight      *float64
	RangeA      *verserange.Range
	RangeB      *verserange.Range
}

// CommentarySeed anchors an excerpt to one reference.
type CommentarySeed struct {
	ID          int64
	Ref         scripture.Token
	Excerpt     string
	Perspective string
	Source      string
	DocumentID  string // set when the excerpt came from an ingested document
	Range       *verserange.Range
}

// UpsertPairSeed stores s, replacing the summary and weight of an existing
// seed with the same kind, references and perspective.
func (s *Store) UpsertPairSeed(ctx context.Context, seed PairSeed) error {
	aStart, aEnd := rangeArgs(seed.RangeA)
	bStart, bEnd := rangeArgs(seed.RangeB)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pair_seeds (kind, a, b, perspective, summary, weight, a_start, a_end, b_start, b_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kind, a, b, perspective) DO UPDATE SET
			summary=excluded.summary, weight=excluded.weight,
			a_start=excluded.a_start, a_end=excluded.a_end,
			b_start=excluded.b_start, b_end=excluded.b_end`,
		string(seed.Kind), string(seed.A), string(seed.B), seed.Perspective, seed.Summary, seed.Weight,
		aStart, aEnd, bStart, bEnd,
	)
	if err != nil {
		return fmt.Errorf("upserting pair seed %s/%s: %w", seed.A, seed.B, err)
	}
	return nil
}

// PairSeedsOverlapping returns seeds of kind (all kinds when empty) where
// either side's range overlaps r.
func (s *Store) PairSeedsOverlapping(ctx context.Context, kind SeedKind, r verserange.Range) ([]PairSeed, error) {
	query := `SELECT id, kind, a, b, perspective, summary, weight, a_start, a_end, b_start, b_end
		FROM pair_seeds
		WHERE ((a_start <= ? AND a_end >= ?) OR (b_start <= ? AND b_end >= ?))`
	args := []any{int(r.End), int(r.Start), int(r.End), int(r.Start)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY weight IS NULL, weight DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pair seeds: %w", err)
	}
	defer rows.Close()

	var out []PairSeed
	for rows.Next() {
		var (
			p                          PairSeed
			kindStr, a, b              string
			weight                     sql.NullFloat64
			aStart, aEnd, bStart, bEnd sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &kindStr, &a, &b, &p.Perspective, &p.Summary, &weight,
			&aStart, &aEnd, &bStart, &bEnd); err != nil {
			return nil, fmt.Errorf("scanning pair seed: %w", err)
		}
		p.Kind = SeedKind(kindStr)
		p.A, p.B = scripture.Token(a), scripture.Token(b)
		if weight.Valid {
			p.Weight = &weight.Float64
		}
		p.RangeA = rangeFrom(aStart, aEnd)
		p.RangeB = rangeFrom(bStart, bEnd)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertCommentary stores a standalone commentary seed.
func (s *Store) InsertCommentary(ctx context.Context, c CommentarySeed) (int64, error) {
	return insertCommentary(ctx, s.db, c)
}

func insertCommentary(ctx context.Context, ex execer, c CommentarySeed) (int64, error) {
	start, end := rangeArgs(c.Range)
	var docID any
	if c.DocumentID != "" {
		docID = c.DocumentID
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO commentary_seeds (ref, excerpt, perspective, source, document_id, v_start, v_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.Ref), c.Excerpt, c.Perspective, c.Source, docID, start, end,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting commentary for %s: %w", c.Ref, err)
	}
	return res.LastInsertId()
}

// CommentariesOverlapping returns commentary seeds whose range overlaps r.
func (s *Store) CommentariesOverlapping(ctx context.Context, r verserange.Range) ([]CommentarySeed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ref, excerpt, perspective, source, COALESCE(document_id, ''), v_start, v_end
		 FROM commentary_seeds WHERE v_start <= ? AND v_end >= ? ORDER BY id`,
		int(r.End), int(r.Start))
	if err != nil {
		return nil, fmt.Errorf("querying commentaries: %w", err)
	}
	defer rows.Close()

	var out []CommentarySeed
	for rows.Next() {
		var (
			c          CommentarySeed
			ref        string
			start, end sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &ref, &c.Excerpt, &c.Perspective, &c.Source, &c.DocumentID, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning commentary: %w", err)
		}
		c.Ref = scripture.Token(ref)
		c.Range = rangeFrom(start, end)
		out = append(out, c)
	}
	return out, rows.Err()
}

func rangeArgs(r *verserange.Range) (start, end any) {
	if r == nil {
		return nil, nil
	}
	return int(r.Start), int(r.End)
}

func rangeFrom(start, end sql.NullInt64) *verserange.Range {
	if !start.Valid || !end.Valid {
		return nil
	}
	return &verserange.Range{Start: scripture.VerseID(start.Int64), End: scripture.VerseID(end.Int64)}
}
