package models

import "time"

// DemoSession is an offline session minted from the fixed sandbox
// credential table. DemoMode is always true for persisted rows so calling
// code can tell these apart from real authenticated sessions.
type DemoSession struct {
	Token     string `db:"token" json:"token"`
	Username  string `db:"username" json:"username"`
	Role      string `db:"role" json:"role"`
	UserID    int64  `db:"user_id" json:"user_id"`
	DemoMode  bool   `db:"demo_mode" json:"demo_mode"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	ExpiresAt int64  `db:"expires_at" json:"expires_at"`
}

// TableName returns the table name for DemoSession.
func (DemoSession) TableName() string {
	return "demo_sessions"
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *DemoSession) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.UnixMilli()
}
