// Package store provides the durable local store backing the action queue
// and the cache. It is a single sqlite database file in the client's data
// directory, opened in WAL mode so acknowledged writes survive a crash.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
)

// FileName is the sqlite database file created under the data directory.
const FileName = "educafric-offline.db"

// Store wraps the sql.DB with subsystem-specific configuration.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the durable store under dataDir and
// migrates the schema forward to the current version. Opening is idempotent.
// A store that cannot be opened or migrated is fatal to the subsystem, so
// failures are surfaced as STORAGE_UNAVAILABLE rather than degraded to
// in-memory behavior.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, FileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to open database", err)
	}

	// sqlite supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to configure database", err)
		}
	}

	s := &Store{db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to migrate schema", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}
