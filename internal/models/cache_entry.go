package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a durably stored, TTL-bounded snapshot of data.
// Entries are never mutated in place; a refresh writes a new generation
// under a new key and the newest unexpired generation wins on read.
type CacheEntry struct {
	Key       string          `db:"key" json:"key"`
	Type      string          `db:"type" json:"type"`
	Data      json.RawMessage `db:"data" json:"data"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	ExpiresAt int64           `db:"expires_at" json:"expires_at"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.UnixMilli()
}
