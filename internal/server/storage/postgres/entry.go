package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
)

// GetEntry retrieves a single entry by room and key
// Returns ErrEntryNotFound if no row exists
func (t *roomTx) GetEntry(ctx context.Context, roomID, key string) (*models.Entry, error) {
	query := `
		SELECT v, deleted, version
		FROM entry
		WHERE room_id = $1 AND k = $2
	`

	var value string
	var deleted bool
	var version int64

	err := t.tx.QueryRowContext(ctx, query, roomID, key).Scan(&value, &deleted, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	entry := &models.Entry{
		RoomID:  roomID,
		Key:     key,
		Version: version,
		Deleted: deleted,
	}
	if !deleted {
		entry.Value = json.RawMessage(value)
	}

	return entry, nil
}

// PutEntry creates or overwrites an entry at the given version, clearing
// any tombstone
func (t *roomTx) PutEntry(ctx context.Context, roomID, key string, value json.RawMessage, version int64) error {
	query := `
		INSERT INTO entry (room_id, k, v, deleted, version)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (room_id, k) DO UPDATE SET v = $3, deleted = FALSE, version = $4
	`

	if _, err := t.tx.ExecContext(ctx, query, roomID, key, string(value), version); err != nil {
		return fmt.Errorf("failed to put entry: %w", err)
	}

	return nil
}

// DeleteEntry soft-deletes an entry, stamping it with the given version
func (t *roomTx) DeleteEntry(ctx context.Context, roomID, key string, version int64) error {
	query := `
		UPDATE entry SET deleted = TRUE, version = $1
		WHERE room_id = $2 AND k = $3
	`

	if _, err := t.tx.ExecContext(ctx, query, version, roomID, key); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	return nil
}

// RoomVersion returns the max entry version in the room, or 0 if the room
// has no entries
func (t *roomTx) RoomVersion(ctx context.Context, roomID string) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM entry WHERE room_id = $1`

	var version int64
	if err := t.tx.QueryRowContext(ctx, query, roomID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get room version: %w", err)
	}

	return version, nil
}

// EntriesSince returns all entries (including tombstones) with
// version > since, ordered by key
func (t *roomTx) EntriesSince(ctx context.Context, roomID string, since int64) ([]models.Entry, error) {
	query := `
		SELECT k, v, deleted, version
		FROM entry
		WHERE room_id = $1 AND version > $2
		ORDER BY k
	`

	rows, err := t.tx.QueryContext(ctx, query, roomID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var value string
		entry := models.Entry{RoomID: roomID}

		if err := rows.Scan(&entry.Key, &value, &entry.Deleted, &entry.Version); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !entry.Deleted {
			entry.Value = json.RawMessage(value)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}
