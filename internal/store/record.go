package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MediaVariant is one encoding of a media item. Variants are ordered by
// ascending quality: the last variant is the highest-quality one.
type MediaVariant struct {
	URL     string `json:"url"`
	Bitrate int    `json:"bitrate,omitempty"`
}

// MediaItem is one attachment on a record.
type MediaItem struct {
	Type     string         `json:"type"` // "photo" | "video" | "gif"
	Variants []MediaVariant `json:"variants,omitempty"`
}

// Record is one locally replicated remote content item (post, bookmark,
// profile). Identity is the composite (OwnerID, RemoteID); Key joins the
// two for the primary-key column.
type Record struct {
	OwnerID       string      `json:"owner_id"`
	RemoteID      string      `json:"remote_id"`
	Category      string      `json:"category,omitempty"`
	Folder        string      `json:"folder,omitempty"`
	FullText      string      `json:"full_text,omitempty"`
	SortIndex     string      `json:"sort_index,omitempty"`
	Conversations []string    `json:"conversations,omitempty"`
	Media         []MediaItem `json:"media,omitempty"`
}

// Key returns the composite primary key for the record.
func (r Record) Key() string {
	return r.OwnerID + ":" + r.RemoteID
}

// Upsert writes records idempotently: an existing row with the same
// composite id is overwritten, never duplicated. All rows of one call are
// written in a single transaction, so a crash mid-page leaves either the
// whole page or none of it.
//
// Record text is NFC normalized at this boundary so that equal-looking
// content from different API surfaces dedupes and searches consistently.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(id, owner_id, remote_id, category, folder, full_text, sort_index, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category   = excluded.category,
			folder     = excluded.folder,
			full_text  = excluded.full_text,
			sort_index = excluded.sort_index,
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("upsert records: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, rec := range records {
		if rec.OwnerID == "" || rec.RemoteID == "" {
			return fmt.Errorf("upsert records: record missing identity (owner=%q, remote=%q)", rec.OwnerID, rec.RemoteID)
		}

		rec.FullText = norm.NFC.String(rec.FullText)

		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("upsert records: marshal %s: %w", rec.Key(), err)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.Key(),
			rec.OwnerID,
			rec.RemoteID,
			rec.Category,
			rec.Folder,
			rec.FullText,
			rec.SortIndex,
			string(payload),
			now,
		); err != nil {
			return fmt.Errorf("upsert records: write %s: %w", rec.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert records: commit: %w", err)
	}

	return nil
}

// FindByID returns the record with the given composite identity, or nil
// when no such record exists. Absence is not an error.
func (s *Store) FindByID(ctx context.Context, ownerID, remoteID string) (*Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM records WHERE id = ?
	`, ownerID+":"+remoteID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("find record: decode %s:%s: %w", ownerID, remoteID, err)
	}
	return &rec, nil
}

// Delete removes a record and returns it, or nil when it was already
// absent. Callers use the returned record to adjust aggregate counters
// (per-folder counts) consistently with what was removed.
func (s *Store) Delete(ctx context.Context, ownerID, remoteID string) (*Record, error) {
	rec, err := s.FindByID(ctx, ownerID, remoteID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE id = ?
	`, ownerID+":"+remoteID); err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}

	return rec, nil
}

// Count returns the number of records owned by the user.
func (s *Store) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE owner_id = ?
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// CountByFolder returns per-folder record counts for the user. Records
// without a folder are omitted.
func (s *Store) CountByFolder(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT folder, COUNT(*) FROM records
		WHERE owner_id = ? AND folder != ''
		GROUP BY folder
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count by folder: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var folder string
		var n int
		if err := rows.Scan(&folder, &n); err != nil {
			return nil, fmt.Errorf("count by folder: scan: %w", err)
		}
		counts[folder] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by folder: %w", err)
	}
	return counts, nil
}

// Iterate walks the user's records in stable (sort_index DESC, remote_id)
// order, newest first, calling fn for each. Iteration stops early when fn
// returns false.
func (s *Store) Iterate(ctx context.Context, ownerID string, fn func(Record) bool) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM records
		WHERE owner_id = ?
		ORDER BY sort_index DESC, remote_id ASC
	`, ownerID)
	if err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("iterate records: scan: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return fmt.Errorf("iterate records: decode: %w", err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return rows.Err()
}
