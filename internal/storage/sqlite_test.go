package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "data", "nested", "test.db")

	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("directory was not created: %v", err)
	}
	if _, err := db.Exec("INSERT INTO deliveries(id, event, repository, branch, payload_hash, status, created_at) VALUES('a', 'create', 'o/r', 'main', 'h', 'ignored', '2026-01-01T00:00:00Z');"); err != nil {
		t.Fatalf("schema not usable: %v", err)
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestBootstrapSQLiteIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	if err := BootstrapSQLite(context.Background(), db); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
}
