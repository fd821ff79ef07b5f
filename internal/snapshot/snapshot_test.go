package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// buildFixture writes a minimal snapshot database to disk and returns its raw
// bytes.
func buildFixture(t *testing.T) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}

	schema := `
	CREATE TABLE conversations (id TEXT PRIMARY KEY, type TEXT);
	CREATE TABLE messages (id TEXT PRIMARY KEY, conversationId TEXT, sent_at INTEGER);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close fixture database: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture bytes: %v", err)
	}
	return data
}

func TestOpenValidSnapshot(t *testing.T) {
	data := buildFixture(t)
	if !IsPlaintext(data) {
		t.Fatal("fixture does not carry the snapshot signature")
	}

	snap, err := Open(context.Background(), data)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer snap.Close()

	if snap.Size() != int64(len(data)) {
		t.Errorf("Size() = %d, want %d", snap.Size(), len(data))
	}

	var n int
	if err := snap.DB().Get(&n, `SELECT COUNT(*) FROM conversations`); err != nil {
		t.Errorf("query against opened snapshot failed: %v", err)
	}
}

func TestOpenRejectsCiphertext(t *testing.T) {
	_, err := Open(context.Background(), make([]byte, 1024))
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("Open() error = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestOpenRejectsTruncatedSignatureOnly(t *testing.T) {
	// A valid signature followed by garbage must fail downstream parsing,
	// not be promoted to an opened snapshot.
	buf := append([]byte("SQLite format 3\x00"), []byte("not a real page")...)
	_, err := Open(context.Background(), buf)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("Open() error = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestOpenRejectsMissingRequiredTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE unrelated (id INTEGER)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	db.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read bytes: %v", err)
	}

	_, err = Open(context.Background(), data)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("Open() error = %v, want ErrSnapshotCorrupt", err)
	}
}
