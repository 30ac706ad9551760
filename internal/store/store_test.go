// Package store provides unit tests for the durable local store.
package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
)

// TestOpenCreatesDatabase tests that Open creates the database file and
// migrates to the current schema version.
func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}

	version, err := s.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}
}

// TestOpenIsIdempotent tests that reopening an existing database does not
// reapply migrations or lose data.
func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if _, err := s.Exec("INSERT INTO cache_entries (key, type, data, created_at, expires_at) VALUES ('k', 'classes', '{}', 1, 9999999999999)"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row to survive reopen, got %d", count)
	}

	version, err := s.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d after reopen, got %d", SchemaVersion, version)
	}
}

// TestOpenCreatesCollections tests that all expected tables exist.
func TestOpenCreatesCollections(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"action_queue", "cache_entries", "demo_sessions", "schema_migrations"} {
		var name string
		err := s.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

// TestOpenSurfacesStorageUnavailable tests that an unusable data directory
// fails with STORAGE_UNAVAILABLE instead of degrading silently.
func TestOpenSurfacesStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, err := Open(filepath.Join(blocked, "data"))
	if err == nil {
		t.Fatal("Expected error opening store under a file path")
	}
	if !errors.Is(err, errors.ErrStorageUnavailable) {
		t.Errorf("Expected STORAGE_UNAVAILABLE, got %v", err)
	}
}
