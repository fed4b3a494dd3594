// Package history keeps a local ledger of completed publishes, so the CI
// log is not the only record of which blob a commit ended up as.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one completed publish.
type Entry struct {
	RunID      string
	Repository string
	Branch     string
	Commit     string
	BlobID     string
	TotalFiles int
	TotalSize  int64
	CreatedAt  time.Time
}

// Store is a sqlite-backed ledger. Single writer, single process; the
// walship run is strictly sequential so no pooling concerns apply.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS publishes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	repository  TEXT NOT NULL,
	branch      TEXT NOT NULL,
	commit_sha  TEXT NOT NULL,
	blob_id     TEXT NOT NULL,
	total_files INTEGER NOT NULL,
	total_size  INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publishes_created_at ON publishes(created_at);
`

// Open opens (and if needed creates) the ledger at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one publish to the ledger.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publishes (run_id, repository, branch, commit_sha, blob_id, total_files, total_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Repository, e.Branch, e.Commit, e.BlobID,
		e.TotalFiles, e.TotalSize, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("history: record publish: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, repository, branch, commit_sha, blob_id, total_files, total_size, created_at
		 FROM publishes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.RunID, &e.Repository, &e.Branch, &e.Commit,
			&e.BlobID, &e.TotalFiles, &e.TotalSize, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
