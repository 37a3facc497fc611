package db

import (
	"path/filepath"
	"testing"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studio.db")
	database, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return database
}

func TestNewDatabaseEnablesWAL(t *testing.T) {
	database := newTestDatabase(t)

	var journalMode string
	if err := database.DB().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}
}

func TestNewDatabaseRequiresPath(t *testing.T) {
	if _, err := NewDatabase(""); err == nil {
		t.Error("NewDatabase accepted an empty path")
	}
}

func TestNewDatabaseCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dirs", "studio.db")
	database, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := newTestDatabase(t)

	// A second run must be a no-op, not an error.
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	version, dirty, err := MigrationVersion(database.Path())
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if dirty {
		t.Error("database left in dirty state")
	}
	if version == 0 {
		t.Error("no migrations applied")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.db")
	database, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := database.Ping(); err == nil {
		t.Error("Ping succeeded on a closed database")
	}
}
