package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrSnapshotCorrupt indicates a buffer that carries the plaintext signature
// but cannot be parsed as a relational snapshot.
var ErrSnapshotCorrupt = errors.New("snapshot is corrupt")

// Snapshot is an opened, validated snapshot database. It is exclusively owned
// by the session that opened it and must be released with Close, which also
// removes the backing temp file.
type Snapshot struct {
	db   *sqlx.DB
	path string
	size int64
}

// Open validates plaintext as a snapshot and opens it through the embedded
// SQLite engine. The bytes are spilled to a private temp file because the
// driver operates on files, not buffers.
func Open(ctx context.Context, plaintext []byte) (*Snapshot, error) {
	if !IsPlaintext(plaintext) {
		return nil, fmt.Errorf("%w: missing database signature", ErrSnapshotCorrupt)
	}

	dir, err := os.MkdirTemp("", "snapshot-")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, "snapshot.db")
	if err := os.WriteFile(path, plaintext, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write snapshot file: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?mode=ro")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	s := &Snapshot{db: db, path: path, size: int64(len(plaintext))}
	if err := s.validate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// validate confirms the file parses as a database and carries the tables the
// aggregation queries depend on.
func (s *Snapshot) validate(ctx context.Context) error {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: database contains no tables", ErrSnapshotCorrupt)
	}

	for _, table := range []string{"conversations", "messages"} {
		var count int
		err := s.db.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: required table %q not found", ErrSnapshotCorrupt, table)
		}
	}
	return nil
}

// DB exposes the relational query handle for the aggregation pipeline.
func (s *Snapshot) DB() *sqlx.DB {
	return s.db
}

// Size returns the plaintext snapshot size in bytes.
func (s *Snapshot) Size() int64 {
	return s.size
}

// Close releases the database handle and deletes the backing temp file.
func (s *Snapshot) Close() error {
	var firstErr error
	if s.db != nil {
		firstErr = s.db.Close()
		s.db = nil
	}
	if s.path != "" {
		if err := os.RemoveAll(filepath.Dir(s.path)); err != nil && firstErr == nil {
			firstErr = err
		}
		s.path = ""
	}
	return firstErr
}
