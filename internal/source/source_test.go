package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	want := []byte("snapshot bytes")
	if err := os.WriteFile(path, want, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	for _, location := range []string{path, "file://" + path} {
		got, err := NewFetcher(nil).Fetch(context.Background(), location)
		if err != nil {
			t.Fatalf("Fetch(%q) unexpected error: %v", location, err)
		}
		if string(got) != string(want) {
			t.Errorf("Fetch(%q) = %q, want %q", location, got, want)
		}
	}
}

func TestFetchMissingFile(t *testing.T) {
	_, err := NewFetcher(nil).Fetch(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestFetchS3Unconfigured(t *testing.T) {
	_, err := NewFetcher(nil).Fetch(context.Background(), "s3://bucket/key")
	if err == nil {
		t.Error("expected error for unconfigured s3 source")
	}
}

func TestSplitS3Location(t *testing.T) {
	tests := []struct {
		location   string
		bucket     string
		key        string
		ok         bool
	}{
		{"s3://bucket/path/to/key", "bucket", "path/to/key", true},
		{"s3://bucket/key", "bucket", "key", true},
		{"s3://bucket", "", "", false},
		{"s3:///key", "", "", false},
		{"/local/path", "", "", false},
		{"file:///local/path", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, ok := splitS3Location(tt.location)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("splitS3Location(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.location, bucket, key, ok, tt.bucket, tt.key, tt.ok)
		}
	}
}
