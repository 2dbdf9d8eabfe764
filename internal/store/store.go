// Package store persists documents, passages and seed relationships in
// SQLite. Passages carry both their exact verse ids (a join table) and a
// bounding range (two indexed columns) for cheap overlap pre-filters.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + path
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL,
			source_uri TEXT NOT NULL DEFAULT '',
			collection TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL UNIQUE,
			parser TEXT NOT NULL DEFAULT '',
			parser_version TEXT NOT NULL DEFAULT '',
			artifact_dir TEXT NOT NULL DEFAULT '',
			meta TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
		`CREATE TABLE IF NOT EXISTS passages (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			text TEXT NOT NULL,
			sanitized TEXT NOT NULL,
			start_char INTEGER NOT NULL,
			end_char INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			t_start REAL,
			t_end REAL,
			verse_ids TEXT,
			verse_start INTEGER,
			verse_end INTEGER,
			embedding BLOB,
			lexeme TEXT NOT NULL DEFAULT '',
			meta TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passages_document ON passages(document_id, idx)`,
		`CREATE INDEX IF NOT EXISTS idx_passages_range ON passages(verse_start, verse_end)`,
		`CREATE TABLE IF NOT EXISTS passage_verses (
			passage_id TEXT NOT NULL REFERENCES passages(id) ON DELETE CASCADE,
			verse_id INTEGER NOT NULL,
			PRIMARY KEY (passage_id, verse_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passage_verses_verse ON passage_verses(verse_id)`,
		`CREATE TABLE IF NOT EXISTS passage_quotes (
			passage_id TEXT NOT NULL REFERENCES passages(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			ref TEXT NOT NULL,
			verse_start INTEGER,
			verse_end INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passage_quotes_range ON passage_quotes(verse_start, verse_end)`,
		`CREATE TABLE IF NOT EXISTS pair_seeds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			a TEXT NOT NULL,
			b TEXT NOT NULL,
			perspective TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			weight REAL,
			a_start INTEGER, a_end INTEGER,
			b_start INTEGER, b_end INTEGER,
			UNIQUE (kind, a, b, perspective)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pair_seeds_a ON pair_seeds(a_start, a_end)`,
		`CREATE INDEX IF NOT EXISTS idx_pair_seeds_b ON pair_seeds(b_start, b_end)`,
		`CREATE TABLE IF NOT EXISTS commentary_seeds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ref TEXT NOT NULL,
			excerpt TEXT NOT NULL,
			perspective TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			document_id TEXT REFERENCES documents(id) ON DELETE CASCADE,
			v_start INTEGER, v_end INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commentary_range ON commentary_seeds(v_start, v_end)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table kept in sync with passages by triggers.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='passages_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE passages_fts USING fts5(sanitized, content=passages, content_rowid=rowid)`,
			`CREATE TRIGGER passages_ai AFTER INSERT ON passages BEGIN
				INSERT INTO passages_fts(rowid, sanitized) VALUES (new.rowid, new.sanitized);
			END`,
			`CREATE TRIGGER passages_ad AFTER DELETE ON passages BEGIN
				INSERT INTO passages_fts(passages_fts, rowid, sanitized) VALUES('delete', old.rowid, old.sanitized);
			END`,
			`CREATE TRIGGER passages_au AFTER UPDATE OF sanitized ON passages BEGIN
				INSERT INTO passages_fts(passages_fts, rowid, sanitized) VALUES('delete', old.rowid, old.sanitized);
				INSERT INTO passages_fts(rowid, sanitized) VALUES (new.rowid, new.sanitized);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Counts reports the number of stored documents and passages.
func (s *Store) Counts(ctx context.Context) (documents, passages int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM documents), (SELECT count(*) FROM passages)`,
	).Scan(&documents, &passages)
	return documents, passages, err
}

// WithTx runs fn in one transaction. Any error from fn rolls back every
// row fn wrote.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
