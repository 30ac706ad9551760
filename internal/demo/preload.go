// Package demo makes a fully disconnected sandbox environment navigable
// with zero network access. It seeds the cache with a fixed school dataset
// and keeps a fixed credential table for offline authentication.
//
// The preloader only activates on an explicit sandbox signal; it must never
// engage for a regular user who merely lost connectivity, or a real account
// would silently see demo data.
package demo

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simonmuehling/educafric-app-sub010/internal/cache"
	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
	"github.com/simonmuehling/educafric-app-sub010/internal/store"
)

// PreloadTTL keeps the sandbox dataset valid for a year; a detached demo
// device never refreshes it.
const PreloadTTL = 365 * 24 * time.Hour

// credential is one row of the fixed demo credential table.
type credential struct {
	Password string
	Role     string
	UserID   int64
}

// demoCredentials maps the published sandbox accounts. All of them are
// public demo logins; there is nothing secret to protect here.
var demoCredentials = map[string]credential{
	"teacher.demo@educafric.com":  {Password: "demo2024", Role: "teacher", UserID: 1001},
	"parent.demo@educafric.com":   {Password: "demo2024", Role: "parent", UserID: 1002},
	"student.demo@educafric.com":  {Password: "demo2024", Role: "student", UserID: 1003},
	"director.demo@educafric.com": {Password: "demo2024", Role: "director", UserID: 1004},
}

// IsSandboxHost reports whether the hostname carries the sandbox marker.
func IsSandboxHost(host string) bool {
	return strings.HasPrefix(host, "sandbox.") || strings.HasPrefix(host, "demo.")
}

// IsSandboxPath reports whether the request path carries the sandbox prefix.
func IsSandboxPath(path string) bool {
	return path == "/sandbox" || strings.HasPrefix(path, "/sandbox/")
}

// Preloader seeds and serves the sandbox environment.
type Preloader struct {
	store   *store.Store
	cache   *cache.Manager
	enabled bool
}

// NewPreloader creates a Preloader. enabled must come from an explicit
// sandbox signal (config flag, hostname marker or path prefix).
func NewPreloader(s *store.Store, c *cache.Manager, enabled bool) *Preloader {
	return &Preloader{store: s, cache: c, enabled: enabled}
}

// Enabled reports whether the sandbox signal was present.
func (p *Preloader) Enabled() bool {
	return p.enabled
}

// Seed populates the cache with the fixed dataset and the session table
// with one long-lived session per demo account. Safe to call repeatedly.
func (p *Preloader) Seed() error {
	if !p.enabled {
		return errors.New(errors.ErrSandboxDisabled, "sandbox preload requested outside sandbox mode")
	}

	for typ, data := range fixedDataset() {
		raw, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to encode preload dataset", err)
		}
		if _, err := p.cache.Put(typ, raw, PreloadTTL); err != nil {
			return err
		}
	}

	now := time.Now()
	for username, cred := range demoCredentials {
		existing, err := p.sessionByUsername(username)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Expired(now) {
			continue
		}
		if err := p.insertSession(username, cred, now); err != nil {
			return err
		}
	}

	logging.Info("sandbox environment seeded", map[string]interface{}{
		"accounts": len(demoCredentials),
	})
	return nil
}

// Authenticate checks submitted credentials against the fixed table, with
// no network involved. The returned session is tagged DemoMode so calling
// code never confuses it with a real authenticated session.
func (p *Preloader) Authenticate(username, password string) (*models.DemoSession, error) {
	if !p.enabled {
		return nil, errors.New(errors.ErrSandboxDisabled, "offline authentication requested outside sandbox mode")
	}

	cred, ok := demoCredentials[username]
	if !ok || cred.Password != password {
		return nil, errors.New(errors.ErrInvalidCredentials, "unknown demo account or wrong password")
	}

	now := time.Now()
	session, err := p.sessionByUsername(username)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Expired(now) {
		if err := p.insertSession(username, cred, now); err != nil {
			return nil, err
		}
		session, err = p.sessionByUsername(username)
		if err != nil {
			return nil, err
		}
	}
	return session, nil
}

// SessionByToken resolves a previously minted demo session token, or
// (nil, nil) when the token is unknown or expired.
func (p *Preloader) SessionByToken(token string) (*models.DemoSession, error) {
	if !p.enabled {
		return nil, errors.New(errors.ErrSandboxDisabled, "session lookup requested outside sandbox mode")
	}

	query := `
	SELECT token, username, role, user_id, demo_mode, created_at, expires_at
	FROM demo_sessions WHERE token = ? AND expires_at > ?
	`
	row := p.store.QueryRow(query, token, time.Now().UnixMilli())
	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (p *Preloader) sessionByUsername(username string) (*models.DemoSession, error) {
	query := `
	SELECT token, username, role, user_id, demo_mode, created_at, expires_at
	FROM demo_sessions WHERE username = ?
	ORDER BY created_at DESC LIMIT 1
	`
	return scanSession(p.store.QueryRow(query, username))
}

func (p *Preloader) insertSession(username string, cred credential, now time.Time) error {
	session := &models.DemoSession{
		Token:     "demo-" + uuid.New().String(),
		Username:  username,
		Role:      cred.Role,
		UserID:    cred.UserID,
		DemoMode:  true,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(PreloadTTL).UnixMilli(),
	}

	query := `
	INSERT INTO demo_sessions (token, username, role, user_id, demo_mode, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := p.store.Exec(query, session.Token, session.Username, session.Role,
		session.UserID, session.DemoMode, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to store demo session", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.DemoSession, error) {
	var s models.DemoSession
	err := row.Scan(&s.Token, &s.Username, &s.Role, &s.UserID, &s.DemoMode, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read demo session", err)
	}
	return &s, nil
}
