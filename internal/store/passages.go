package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/versegest/internal/embed"
	"github.com/dgallion1/versegest/internal/faults"
	"github.com/dgallion1/versegest/internal/scripture"
	"github.com/dgallion1/versegest/internal/verserange"
)

// Document is one ingested source.
type Document struct {
	ID            string
	Title         string
	SourceType    string
	SourceURI     string
	Collection    string
	Author        string
	ContentHash   string
	Parser        string
	ParserVersion string
	ArtifactDir   string
	Meta          map[string]any
	CreatedAt     time.Time
}

// PassageMeta is free-form per-passage provenance, stored as JSON.
type PassageMeta struct {
	Primary       string   `json:"primary,omitempty"`
	Detected      []string `json:"detected,omitempty"`
	Hinted        []string `json:"hinted,omitempty"`
	Unmatched     []string `json:"unmatched,omitempty"`
	Speakers      []string `json:"speakers,omitempty"`
	Breadcrumb    []string `json:"breadcrumb,omitempty"`
	Parser        string   `json:"parser,omitempty"`
	ParserVersion string   `json:"parser_version,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
}

// Passage is one stored content unit.
type Passage struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Sanitized  string
	StartChar  int
	EndChar    int
	Page       int
	TStart     *float64
	TEnd       *float64
	VerseIDs   scripture.VerseSet // nil when no reference resolved
	Range      *verserange.Range  // nil iff VerseIDs is empty
	Embedding  []float32
	Lexeme     string
	Meta       PassageMeta

	// Populated on reads from the owning document.
	Collection string
	Author     string
	SourceType string
}

// Quote is a quotation tied to the reference cited next to it.
type Quote struct {
	PassageID string
	Text      string
	Ref       scripture.Token
	Range     *verserange.Range
}

// Tx writes one document's rows atomically.
type Tx struct {
	tx *sql.Tx
}

// InsertDocument stores d. A content hash that already exists surfaces as
// *faults.DuplicateSourceError.
func (t *Tx) InsertDocument(ctx context.Context, d Document) error {
	meta, err := json.Marshal(orEmpty(d.Meta))
	if err != nil {
		return fmt.Errorf("marshal document meta: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, source_type, source_uri, collection, author,
			content_hash, parser, parser_version, artifact_dir, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.SourceType, d.SourceURI, d.Collection, d.Author,
		d.ContentHash, d.Parser, d.ParserVersion, d.ArtifactDir, string(meta), formatTime(d.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: documents.content_hash") {
			var existing string
			t.tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE content_hash = ?`, d.ContentHash).Scan(&existing)
			return &faults.DuplicateSourceError{ContentHash: d.ContentHash, ExistingID: existing}
		}
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// InsertPassage stores p and its verse join rows.
func (t *Tx) InsertPassage(ctx context.Context, p Passage) error {
	meta, err := json.Marshal(p.Meta)
	if err != nil {
		return fmt.Errorf("marshal passage meta: %w", err)
	}
	ids, start, end, err := verseColumns(p.VerseIDs, p.Range)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO passages (id, document_id, idx, text, sanitized, start_char, end_char, page,
			t_start, t_end, verse_ids, verse_start, verse_end, embedding, lexeme, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DocumentID, p.Index, p.Text, p.Sanitized, p.StartChar, p.EndChar, p.Page,
		p.TStart, p.TEnd, ids, start, end, embed.Encode(p.Embedding), p.Lexeme, string(meta),
	)
	if err != nil {
		return fmt.Errorf("inserting passage %d: %w", p.Index, err)
	}
	return insertVerses(ctx, t.tx, p.ID, p.VerseIDs)
}

// InsertQuote stores a reference-keyed quotation.
func (t *Tx) InsertQuote(ctx context.Context, q Quote) error {
	var start, end sql.NullInt64
	if q.Range != nil {
		start = sql.NullInt64{Int64: int64(q.Range.Start), Valid: true}
		end = sql.NullInt64{Int64: int64(q.Range.End), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO passage_quotes (passage_id, text, ref, verse_start, verse_end) VALUES (?, ?, ?, ?, ?)`,
		q.PassageID, q.Text, string(q.Ref), start, end,
	)
	if err != nil {
		return fmt.Errorf("inserting quote: %w", err)
	}
	return nil
}

// InsertCommentary stores a commentary excerpt anchored to a reference.
func (t *Tx) InsertCommentary(ctx context.Context, c CommentarySeed) error {
	_, err := insertCommentary(ctx, t.tx, c)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVerses(ctx context.Context, ex execer, passageID string, set scripture.VerseSet) error {
	for _, v := range set {
		if _, err := ex.ExecContext(ctx,
			`INSERT OR IGNORE INTO passage_verses (passage_id, verse_id) VALUES (?, ?)`, passageID, int(v),
		); err != nil {
			return fmt.Errorf("inserting verse %s: %w", v, err)
		}
	}
	return nil
}

// verseColumns encodes a verse set for storage. The stored range is always
// derived from set; rng only guards against a range without verses.
func verseColumns(set scripture.VerseSet, rng *verserange.Range) (ids, start, end any, err error) {
	if set.Empty() {
		if rng != nil {
			return nil, nil, nil, errors.New("verse range without verse ids")
		}
		return nil, nil, nil, nil
	}
	derived := verserange.FromSet(set)
	raw, err := json.Marshal(set.Ints())
	if err != nil {
		return nil, nil, nil, err
	}
	return string(raw), int(derived.Start), int(derived.End), nil
}

// DocumentByHash returns the document holding hash, if any.
func (s *Store) DocumentByHash(ctx context.Context, hash string) (Document, bool, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+` WHERE content_hash = ?`, hash)
	if err != nil {
		return Document{}, false, fmt.Errorf("querying document: %w", err)
	}
	docs, err := scanDocuments(rows)
	if err != nil || len(docs) == 0 {
		return Document{}, false, err
	}
	return docs[0], true, nil
}

// Documents lists every document, newest first.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	return scanDocuments(rows)
}

const documentSelect = `SELECT id, title, source_type, source_uri, collection, author, content_hash,
	parser, parser_version, artifact_dir, meta, created_at FROM documents`

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		var meta, created string
		if err := rows.Scan(&d.ID, &d.Title, &d.SourceType, &d.SourceURI, &d.Collection, &d.Author,
			&d.ContentHash, &d.Parser, &d.ParserVersion, &d.ArtifactDir, &meta, &created); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		json.Unmarshal([]byte(meta), &d.Meta)
		d.CreatedAt = parseTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Filter narrows passage reads. Zero fields do not filter.
type Filter struct {
	Collection string
	Author     string
	SourceType string
	DocumentID string
	// Scope restricts passages to those touching these verses. The range
	// pre-filter always applies; Policy decides whether exact membership
	// is also required.
	Scope  scripture.VerseSet
	Policy verserange.OverlapPolicy
}

// where appends the filter's clauses for a query aliasing passages as p
// and documents as d.
func (f Filter) where(qb *strings.Builder, args *[]any) {
	if f.Collection != "" {
		qb.WriteString(` AND d.collection = ?`)
		*args = append(*args, f.Collection)
	}
	if f.Author != "" {
		qb.WriteString(` AND d.author = ?`)
		*args = append(*args, f.Author)
	}
	if f.SourceType != "" {
		qb.WriteString(` AND d.source_type = ?`)
		*args = append(*args, f.SourceType)
	}
	if f.DocumentID != "" {
		qb.WriteString(` AND p.document_id = ?`)
		*args = append(*args, f.DocumentID)
	}
	lo, hi, ok := f.Scope.Bounds()
	if !ok {
		return
	}
	qb.WriteString(` AND p.verse_start <= ? AND p.verse_end >= ?`)
	*args = append(*args, int(hi), int(lo))
	if f.Policy == verserange.TrustRange {
		return
	}
	qb.WriteString(` AND EXISTS (SELECT 1 FROM passage_verses pv WHERE pv.passage_id = p.id AND (`)
	for i, run := range f.Scope.Runs() {
		if i > 0 {
			qb.WriteString(` OR `)
		}
		qb.WriteString(`pv.verse_id BETWEEN ? AND ?`)
		*args = append(*args, int(run[0]), int(run[1]))
	}
	qb.WriteString(`))`)
}

const passageColumns = `p.id, p.document_id, p.idx, p.text, p.sanitized, p.start_char, p.end_char, p.page,
	p.t_start, p.t_end, p.verse_ids, p.verse_start, p.verse_end, p.embedding, p.lexeme, p.meta,
	d.collection, d.author, d.source_type`

// Passages returns passages matching f in document, index order. limit <= 0
// means no limit.
func (s *Store) Passages(ctx context.Context, f Filter, limit int) ([]Passage, error) {
	var qb strings.Builder
	var args []any
	qb.WriteString(`SELECT ` + passageColumns + ` FROM passages p JOIN documents d ON d.id = p.document_id WHERE 1=1`)
	f.where(&qb, &args)
	qb.WriteString(` ORDER BY p.document_id, p.idx`)
	if limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	return scanPassages(rows)
}

// PassagesByID loads the named passages.
func (s *Store) PassagesByID(ctx context.Context, ids []string) (map[string]Passage, error) {
	out := make(map[string]Passage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + passageColumns + ` FROM passages p JOIN documents d ON d.id = p.document_id
		WHERE p.id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	ps, err := scanPassages(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		out[p.ID] = p
	}
	return out, nil
}

func scanPassages(rows *sql.Rows) ([]Passage, error) {
	defer rows.Close()
	var out []Passage
	for rows.Next() {
		var (
			p          Passage
			tStart     sql.NullFloat64
			tEnd       sql.NullFloat64
			verseIDs   sql.NullString
			verseStart sql.NullInt64
			verseEnd   sql.NullInt64
			blob       []byte
			meta       string
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Index, &p.Text, &p.Sanitized, &p.StartChar, &p.EndChar,
			&p.Page, &tStart, &tEnd, &verseIDs, &verseStart, &verseEnd, &blob, &p.Lexeme, &meta,
			&p.Collection, &p.Author, &p.SourceType); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		if tStart.Valid {
			p.TStart = &tStart.Float64
		}
		if tEnd.Valid {
			p.TEnd = &tEnd.Float64
		}
		if verseIDs.Valid {
			var ints []int
			json.Unmarshal([]byte(verseIDs.String), &ints)
			p.VerseIDs = scripture.FromInts(ints)
		}
		if verseStart.Valid && verseEnd.Valid {
			p.Range = &verserange.Range{Start: scripture.VerseID(verseStart.Int64), End: scripture.VerseID(verseEnd.Int64)}
		}
		if len(blob) > 0 {
			v, err := embed.Decode(blob)
			if err != nil {
				return nil, fmt.Errorf("passage %s: %w", p.ID, err)
			}
			p.Embedding = v
		}
		json.Unmarshal([]byte(meta), &p.Meta)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UnitsMissingRange lists passages without a verse range, ordered by id,
// strictly after afterID.
func (s *Store) UnitsMissingRange(ctx context.Context, afterID string, limit int) ([]verserange.Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, verse_ids, meta FROM passages
		 WHERE (verse_start IS NULL OR verse_end IS NULL) AND id > ?
		 ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying passages without range: %w", err)
	}
	defer rows.Close()

	var out []verserange.Unit
	for rows.Next() {
		var id, meta string
		var verseIDs sql.NullString
		if err := rows.Scan(&id, &verseIDs, &meta); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		var m PassageMeta
		json.Unmarshal([]byte(meta), &m)
		u := verserange.Unit{ID: id, Record: verserange.Record{
			Primary:   m.Primary,
			Detected:  m.Detected,
			Hinted:    m.Hinted,
			Unmatched: m.Unmatched,
		}}
		if verseIDs.Valid {
			json.Unmarshal([]byte(verseIDs.String), &u.VerseIDs)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetVerseIndex writes a passage's verse ids, range and join rows in one
// transaction.
func (s *Store) SetVerseIndex(ctx context.Context, id string, set scripture.VerseSet, rng *verserange.Range) error {
	ids, start, end, err := verseColumns(set, rng)
	if err != nil {
		return err
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE passages SET verse_ids = ?, verse_start = ?, verse_end = ? WHERE id = ?`,
			ids, start, end, id,
		); err != nil {
			return fmt.Errorf("updating passage range: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM passage_verses WHERE passage_id = ?`, id); err != nil {
			return fmt.Errorf("clearing verses: %w", err)
		}
		return insertVerses(ctx, tx.tx, id, set)
	})
}

// QuotesFor returns quotes whose reference range overlaps r.
func (s *Store) QuotesFor(ctx context.Context, r verserange.Range) ([]Quote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT passage_id, text, ref, verse_start, verse_end FROM passage_quotes
		 WHERE verse_start <= ? AND verse_end >= ? ORDER BY passage_id, rowid`,
		int(r.End), int(r.Start))
	if err != nil {
		return nil, fmt.Errorf("querying quotes: %w", err)
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		var q Quote
		var ref string
		var start, end sql.NullInt64
		if err := rows.Scan(&q.PassageID, &q.Text, &ref, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning quote: %w", err)
		}
		q.Ref = scripture.Token(ref)
		if start.Valid && end.Valid {
			q.Range = &verserange.Range{Start: scripture.VerseID(start.Int64), End: scripture.VerseID(end.Int64)}
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
