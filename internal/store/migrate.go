package store

import (
	"database/sql"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
)

// migration is one forward schema step. Migrations are embedded so the
// store can always reach the current version without external files.
type migration struct {
	Version     int
	Description string
	SQL         string
}

// SchemaVersion is the schema version this build migrates to.
const SchemaVersion = 2

var migrations = []migration{
	{
		Version:     1,
		Description: "action queue and cache collections",
		SQL: `
		CREATE TABLE IF NOT EXISTS action_queue (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
			payload TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			enqueued_at INTEGER NOT NULL,
			synced INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_action_queue_synced ON action_queue(synced);

		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cache_entries_type ON cache_entries(type);
		CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
		`,
	},
	{
		Version:     2,
		Description: "sandbox session table",
		SQL: `
		CREATE TABLE IF NOT EXISTS demo_sessions (
			token TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			role TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			demo_mode INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_demo_sessions_username ON demo_sessions(username);
		`,
	},
}

// Migrate applies all pending migrations in version order. Already applied
// versions are skipped, so calling Migrate on every open is safe.
func (s *Store) Migrate() error {
	if err := s.initVersionTable(); err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to initialize version table", err)
	}

	applied, err := s.appliedVersions()
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to read applied versions", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return errors.Wrap(errors.ErrMigration, "failed to apply migration", err)
		}
	}

	return nil
}

// CurrentVersion returns the highest applied schema version.
func (s *Store) CurrentVersion() (int, error) {
	var version int
	err := s.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to read schema version", err)
	}
	return version, nil
}

func (s *Store) initVersionTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL
	);`
	_, err := s.Exec(query)
	return err
}

func (s *Store) appliedVersions() (map[int]bool, error) {
	rows, err := s.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *Store) applyMigration(m migration) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}

	query := `INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)`
	if _, err := tx.Exec(query, m.Version, time.Now().Unix(), m.Description); err != nil {
		return err
	}

	return tx.Commit()
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// Multi-step read-modify-write sequences on shared rows go through here
// so two flows touching the same item cannot lose updates.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to commit transaction", err)
	}
	return nil
}
