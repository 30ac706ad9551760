// Package queue provides the durable action queue for offline mutations.
// Actions survive process restarts and are drained by the sync orchestrator
// once connectivity returns.
package queue

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/ident"
	"github.com/simonmuehling/educafric-app-sub010/internal/logging"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
	"github.com/simonmuehling/educafric-app-sub010/internal/store"
)

// Manager provides durable enqueue and retrieval of pending actions.
// Status fields (synced, retry_count) are mutated only by the orchestrator;
// mutators are no-ops for ids that no longer exist so they tolerate races
// between a drain in flight and explicit deletes.
type Manager struct {
	store *store.Store
}

// NewManager creates a queue Manager backed by the durable store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

const actionColumns = "id, category, operation, payload, owner_id, enqueued_at, synced, retry_count"

// Enqueue persists a new action and returns it. The write is durable before
// Enqueue returns; from the caller's perspective this is fire-and-forget.
func (m *Manager) Enqueue(category models.Category, operation models.Operation, payload json.RawMessage, ownerID int64) (*models.Action, error) {
	switch operation {
	case models.OperationCreate, models.OperationUpdate, models.OperationDelete:
	default:
		return nil, errors.New(errors.ErrValidation, "unknown operation "+string(operation))
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	action := &models.Action{
		ID:         ident.NewActionID(),
		Category:   category,
		Operation:  operation,
		Payload:    payload,
		OwnerID:    ownerID,
		EnqueuedAt: time.Now().UnixMilli(),
		Synced:     false,
		RetryCount: 0,
	}

	query := `
	INSERT INTO action_queue (` + actionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := m.store.Exec(query, action.ID, action.Category, action.Operation,
		string(action.Payload), action.OwnerID, action.EnqueuedAt, action.Synced, action.RetryCount)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to enqueue action", err)
	}

	logging.Debug("action enqueued", map[string]interface{}{
		"action_id": action.ID,
		"category":  string(category),
		"operation": string(operation),
		"owner_id":  ownerID,
	})

	return action, nil
}

// Pending returns all unsynced actions via the synced index, oldest first.
// FIFO by enqueue time keeps drain order predictable for dependent writes.
func (m *Manager) Pending() ([]*models.Action, error) {
	query := `
	SELECT ` + actionColumns + `
	FROM action_queue WHERE synced = 0
	ORDER BY enqueued_at, id
	`
	rows, err := m.store.Query(query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list pending actions", err)
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan action", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate pending actions", err)
	}
	return actions, nil
}

// Get retrieves a single action by id, or (nil, nil) if it no longer exists.
func (m *Manager) Get(id string) (*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM action_queue WHERE id = ?`
	action, err := scanAction(m.store.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get action", err)
	}
	return action, nil
}

// MarkSynced flags an action as accepted by the remote authority.
// No-op if the id no longer exists.
func (m *Manager) MarkSynced(id string) error {
	_, err := m.store.Exec("UPDATE action_queue SET synced = 1 WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to mark action synced", err)
	}
	return nil
}

// IncrementRetry bumps an action's retry count and returns the new count.
// The read-modify-write runs in one transaction so concurrent flows cannot
// lose an increment. Returns (0, nil) if the id no longer exists.
func (m *Manager) IncrementRetry(id string) (int, error) {
	var newCount int
	err := m.store.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("UPDATE action_queue SET retry_count = retry_count + 1 WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			newCount = 0
			return nil
		}
		return tx.QueryRow("SELECT retry_count FROM action_queue WHERE id = ?", id).Scan(&newCount)
	})
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to increment retry count", err)
	}
	return newCount, nil
}

// PurgeSynced removes actions already accepted by the remote authority.
// Normally the orchestrator deletes an action right after marking it
// synced; this sweeps leftovers from a crash between the two writes so a
// synced action is never redelivered.
func (m *Manager) PurgeSynced() (int, error) {
	res, err := m.store.Exec("DELETE FROM action_queue WHERE synced = 1")
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to purge synced actions", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count purged actions", err)
	}
	return int(affected), nil
}

// Delete removes an action. No-op if the id no longer exists.
func (m *Manager) Delete(id string) error {
	_, err := m.store.Exec("DELETE FROM action_queue WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete action", err)
	}
	return nil
}

// Size returns the total number of queued actions, synced or not. Callers
// racing a drain should not assume this matches a later Pending() length.
func (m *Manager) Size() (int, error) {
	var count int
	if err := m.store.QueryRow("SELECT COUNT(*) FROM action_queue").Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count actions", err)
	}
	return count, nil
}

// PendingCount returns the number of unsynced actions.
func (m *Manager) PendingCount() (int, error) {
	var count int
	if err := m.store.QueryRow("SELECT COUNT(*) FROM action_queue WHERE synced = 0").Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count pending actions", err)
	}
	return count, nil
}

// Clear removes all queued actions.
func (m *Manager) Clear() error {
	if _, err := m.store.Exec("DELETE FROM action_queue"); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to clear action queue", err)
	}
	logging.Info("action queue cleared", nil)
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*models.Action, error) {
	var action models.Action
	var payload string
	err := row.Scan(&action.ID, &action.Category, &action.Operation, &payload,
		&action.OwnerID, &action.EnqueuedAt, &action.Synced, &action.RetryCount)
	if err != nil {
		return nil, err
	}
	action.Payload = json.RawMessage(payload)
	return &action, nil
}
