package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
)

// GetClientRecord retrieves the durable bookkeeping row for a client
// Returns ErrClientNotFound if the client has never connected
func (t *roomTx) GetClientRecord(ctx context.Context, clientID string) (*models.ClientRecord, error) {
	query := `
		SELECT room_id, base_cookie, last_mutation_id
		FROM client
		WHERE id = $1
	`

	record := &models.ClientRecord{ClientID: clientID}
	var baseCookie sql.NullInt64

	err := t.tx.QueryRowContext(ctx, query, clientID).Scan(
		&record.RoomID,
		&baseCookie,
		&record.LastMutationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client record: %w", err)
	}

	if baseCookie.Valid {
		record.BaseCookie = &baseCookie.Int64
	}

	return record, nil
}

// SetClientRecord creates or updates a client record
func (t *roomTx) SetClientRecord(ctx context.Context, record *models.ClientRecord) error {
	query := `
		INSERT INTO client (id, room_id, base_cookie, last_mutation_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			room_id = $2,
			base_cookie = $3,
			last_mutation_id = $4
	`

	var baseCookie sql.NullInt64
	if record.BaseCookie != nil {
		baseCookie = sql.NullInt64{Int64: *record.BaseCookie, Valid: true}
	}

	if _, err := t.tx.ExecContext(ctx, query, record.ClientID, record.RoomID, baseCookie, record.LastMutationID); err != nil {
		return fmt.Errorf("failed to set client record: %w", err)
	}

	return nil
}
