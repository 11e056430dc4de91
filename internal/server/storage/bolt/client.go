package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
)

// GetClientRecord retrieves the durable bookkeeping row for a client
// Returns ErrClientNotFound if the client has never connected
func (t *roomTx) GetClientRecord(ctx context.Context, clientID string) (*models.ClientRecord, error) {
	raw := t.tx.Bucket(bucketClients).Get([]byte(clientID))
	if raw == nil {
		return nil, storage.ErrClientNotFound
	}

	var record models.ClientRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client record: %w", err)
	}

	return &record, nil
}

// SetClientRecord creates or updates a client record
func (t *roomTx) SetClientRecord(ctx context.Context, record *models.ClientRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal client record: %w", err)
	}

	if err := t.tx.Bucket(bucketClients).Put([]byte(record.ClientID), raw); err != nil {
		return fmt.Errorf("failed to put client record: %w", err)
	}

	return nil
}
