// Package cache provides a TTL-bounded read-through cache over the durable
// store. Writes create a new generation; reads return the newest generation
// whose expiry is still in the future. A small in-memory LRU front keeps the
// hot per-type reads off sqlite.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
	"github.com/simonmuehling/educafric-app-sub010/internal/store"
)

const (
	// frontSize bounds the in-memory front; one slot per logical type.
	frontSize = 128
	// frontTTL bounds staleness of the front independently of entry TTLs.
	frontTTL = 30 * time.Second
)

// Manager is the TTL cache over the durable store.
type Manager struct {
	store *store.Store
	front *expirable.LRU[string, *models.CacheEntry]
}

// NewManager creates a cache Manager backed by the durable store.
func NewManager(s *store.Store) *Manager {
	return &Manager{
		store: s,
		front: expirable.NewLRU[string, *models.CacheEntry](frontSize, nil, frontTTL),
	}
}

// Put stores a new generation for the given type with the given TTL.
// Existing generations are left in place; they age out via PurgeExpired.
func (m *Manager) Put(typ string, data json.RawMessage, ttl time.Duration) (*models.CacheEntry, error) {
	if typ == "" {
		return nil, errors.New(errors.ErrValidation, "cache type must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New(errors.ErrValidation, "cache ttl must be positive")
	}

	now := time.Now()
	entry := &models.CacheEntry{
		Key:       fmt.Sprintf("%s:%d", typ, now.UnixNano()),
		Type:      typ,
		Data:      data,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}

	query := `
	INSERT INTO cache_entries (key, type, data, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := m.store.Exec(query, entry.Key, entry.Type, string(entry.Data), entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to store cache entry", err)
	}

	m.front.Add(typ, entry)

	return entry, nil
}

// Get returns the data of the newest unexpired entry for the type. The
// second return value is false when nothing valid exists; "only expired
// generations present" and "never cached" are indistinguishable here, use
// Newest for stale-fallback reads.
func (m *Manager) Get(typ string) (json.RawMessage, bool, error) {
	now := time.Now()

	if entry, ok := m.front.Get(typ); ok && !entry.Expired(now) {
		return entry.Data, true, nil
	}

	entry, err := m.newestSince(typ, now.UnixMilli())
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}

	m.front.Add(typ, entry)
	return entry.Data, true, nil
}

// Newest returns the newest entry for the type regardless of expiry, or
// (nil, nil) if the type was never cached. Callers that need "stale but
// present" fallback data branch on Expired themselves.
func (m *Manager) Newest(typ string) (*models.CacheEntry, error) {
	query := `
	SELECT key, type, data, created_at, expires_at
	FROM cache_entries WHERE type = ?
	ORDER BY created_at DESC, key DESC LIMIT 1
	`
	entry, err := scanEntry(m.store.QueryRow(query, typ))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read cache entry", err)
	}
	return entry, nil
}

// PurgeExpired physically deletes all entries past their expiry and returns
// how many were removed. Already-expired entries are invisible to Get, so
// this is safe to run concurrently with reads and writes.
func (m *Manager) PurgeExpired() (int, error) {
	res, err := m.store.Exec("DELETE FROM cache_entries WHERE expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to purge expired cache entries", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count purged cache entries", err)
	}
	if affected > 0 {
		logging.Debug("purged expired cache entries", map[string]interface{}{"count": affected})
	}
	return int(affected), nil
}

// Clear removes all cache entries of every type.
func (m *Manager) Clear() error {
	if _, err := m.store.Exec("DELETE FROM cache_entries"); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to clear cache", err)
	}
	m.front.Purge()
	logging.Info("cache cleared", nil)
	return nil
}

func (m *Manager) newestSince(typ string, nowMillis int64) (*models.CacheEntry, error) {
	query := `
	SELECT key, type, data, created_at, expires_at
	FROM cache_entries WHERE type = ? AND expires_at > ?
	ORDER BY created_at DESC, key DESC LIMIT 1
	`
	entry, err := scanEntry(m.store.QueryRow(query, typ, nowMillis))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read cache entry", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	var data string
	err := row.Scan(&entry.Key, &entry.Type, &data, &entry.CreatedAt, &entry.ExpiresAt)
	if err != nil {
		return nil, err
	}
	entry.Data = json.RawMessage(data)
	return &entry, nil
}
