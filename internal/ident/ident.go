// Package ident generates and validates action identifiers.
package ident

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action IDs are a millisecond timestamp plus a random suffix, e.g.
// "1756600000123-9f86d081a3b4". The time prefix makes IDs roughly sortable
// by enqueue time; the suffix makes them unique within a millisecond.
var actionIDRegex = regexp.MustCompile(`^\d{13,}-[0-9a-f]{12}$`)

// NewActionID generates a new unique action identifier.
func NewActionID() string {
	u := uuid.New()
	suffix := strings.ReplaceAll(u.String(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// IsValid checks whether s is a well-formed action identifier.
func IsValid(s string) bool {
	return actionIDRegex.MatchString(s)
}

// Validate returns an error if s is not a well-formed action identifier.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid action id: %q", s)
	}
	return nil
}

// Time extracts the embedded enqueue timestamp from an action identifier.
func Time(s string) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(s[:strings.IndexByte(s, '-')], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid action id timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}
