package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// State keys used elsewhere in the system. All are stored per user.
const (
	StateKeyTasks     = "tasks"     // the durable task queue
	StateKeyWorkflows = "workflows" // the persisted workflow list
)

// CursorStateKey returns the state key holding the sync cursor for one
// content category.
func CursorStateKey(category string) string {
	return category + "_cursor"
}

// GetState reads a whole-unit JSON state value into v. Returns found=false
// (and leaves v untouched) when the key has never been written.
func (s *Store) GetState(ctx context.Context, ownerID, key string, v any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM state WHERE name = ?
	`, ownerID+":"+key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get state %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), v); err != nil {
		return false, fmt.Errorf("get state %s: decode: %w", key, err)
	}
	return true, nil
}

// PutState replaces a whole-unit JSON state value. There are no
// partial-record transactions: the value is always written as a unit.
func (s *Store) PutState(ctx context.Context, ownerID, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("put state %s: marshal: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, ownerID+":"+key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}
