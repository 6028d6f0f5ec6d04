// Package store implements the SQLite metadata backend: a
// WAL-mode files table with batched upsert and scoped transactions,
// grounded on jra3-linear-fuse's use of the pure-Go modernc.org/sqlite
// driver (no cgo) for its own path-keyed metadata cache.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cuedeck/cue/internal/card"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	hash TEXT NOT NULL,
	modified_at INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	tokens INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL UNIQUE,
	path TEXT NOT NULL,
	status TEXT,
	priority TEXT,
	assignee TEXT
);
CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	card_id INTEGER NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
	tag TEXT NOT NULL
);
`

// Store wraps the workspace's .cue/metadata.db.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) <workspaceRoot>/.cue/metadata.db in
// WAL mode.
func Open(workspaceRoot string) (*Store, error) {
	dir := filepath.Join(workspaceRoot, ".cue")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "metadata.db")

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_pragma=mmap_size(268435456)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // single writer; WAL still allows concurrent readers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the on-disk database path.
func (s *Store) Path() string { return s.path }

// UpsertFile inserts or updates a single row. Prefer UpsertFilesBatch for
// more than a handful of rows.
func (s *Store) UpsertFile(ctx context.Context, m card.FileMetadata) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO files(path, hash, modified_at, size_bytes, tokens)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, modified_at=excluded.modified_at,
			size_bytes=excluded.size_bytes, tokens=excluded.tokens
	`, m.Path, m.Hash, m.ModifiedAt, m.SizeBytes, m.Tokens)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpsertFilesBatch is the primary fast path: a single transaction for N
// rows.
func (s *Store) UpsertFilesBatch(ctx context.Context, rows []card.FileMetadata) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.tx.PrepareContext(ctx, `
		INSERT INTO files(path, hash, modified_at, size_bytes, tokens)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, modified_at=excluded.modified_at,
			size_bytes=excluded.size_bytes, tokens=excluded.tokens
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx, m.Path, m.Hash, m.ModifiedAt, m.SizeBytes, m.Tokens); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetFile returns the row for path, or false if absent.
func (s *Store) GetFile(ctx context.Context, path string) (card.FileMetadata, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, path, hash, modified_at, size_bytes, tokens FROM files WHERE path = ?`, path)
	var m card.FileMetadata
	if err := row.Scan(&m.ID, &m.Path, &m.Hash, &m.ModifiedAt, &m.SizeBytes, &m.Tokens); err != nil {
		if err == sql.ErrNoRows {
			return card.FileMetadata{}, false, nil
		}
		return card.FileMetadata{}, false, err
	}
	return m, true, nil
}

// GetAllFiles returns every row.
func (s *Store) GetAllFiles(ctx context.Context) ([]card.FileMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, hash, modified_at, size_bytes, tokens FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []card.FileMetadata
	for rows.Next() {
		var m card.FileMetadata
		if err := rows.Scan(&m.ID, &m.Path, &m.Hash, &m.ModifiedAt, &m.SizeBytes, &m.Tokens); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteFile removes path's row, if present.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return err
}

// GetTotalTokens returns sum(tokens) across all files.
func (s *Store) GetTotalTokens(ctx context.Context) (uint64, error) {
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(tokens) FROM files`).Scan(&total); err != nil {
		return 0, err
	}
	return uint64(total.Int64), nil
}

// Stats summarizes the files table.
type Stats struct {
	FileCount   int
	TotalTokens uint64
	TotalBytes  int64
}

// GetStats returns aggregate counts over the files table.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(tokens),0), COALESCE(SUM(size_bytes),0) FROM files`)
	if err := row.Scan(&st.FileCount, &st.TotalTokens, &st.TotalBytes); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Tx is a scoped transaction handle. An uncommitted Tx is rolled back only
// by Rollback: call Rollback in a defer immediately after Begin.
type Tx struct {
	tx        *sql.Tx
	committed bool
}

// Begin starts a new scoped transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Execute runs a statement within the transaction.
func (t *Tx) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Query runs a query within the transaction.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.committed {
		return nil
	}
	t.committed = true
	return t.tx.Commit()
}

// Rollback rolls back the transaction. A no-op after Commit.
func (t *Tx) Rollback() error {
	if t.committed {
		return nil
	}
	return t.tx.Rollback()
}
