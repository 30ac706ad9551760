// Package models provides data model definitions for the offline subsystem.
package models

import (
	"encoding/json"
	"time"
)

// Category classifies a queued action. The set is closed; unknown categories
// fall back to the generic sync endpoint at dispatch time.
type Category string

const (
	CategoryAttendance Category = "attendance"
	CategoryGrade      Category = "grade"
	CategoryHomework   Category = "homework"
	CategoryMessage    Category = "message"
	CategoryAssignment Category = "assignment"
)

// Operation is the mutation kind carried by an action.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Action is a pending mutation awaiting delivery to the remote authority.
type Action struct {
	ID         string          `db:"id" json:"id"`
	Category   Category        `db:"category" json:"category"`
	Operation  Operation       `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	OwnerID    int64           `db:"owner_id" json:"owner_id"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Synced     bool            `db:"synced" json:"synced"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for Action.
func (Action) TableName() string {
	return "action_queue"
}

// EnqueuedTime returns EnqueuedAt as time.Time.
func (a *Action) EnqueuedTime() time.Time {
	return time.UnixMilli(a.EnqueuedAt)
}

// PayloadID extracts the "id" field from the payload, used to address
// update and delete requests. Returns "" when the payload has none.
func (a *Action) PayloadID() string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(a.Payload, &partial); err != nil {
		return ""
	}
	return partial.ID
}
