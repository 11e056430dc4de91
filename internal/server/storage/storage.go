package storage

import (
	"context"
	"encoding/json"

	"github.com/iudanet/roomsync/internal/models"
)

// RoomStorage is the versioned-store surface available inside one
// transaction. All writes take an explicit version supplied by the caller
// (the room stepper), so an entire batch of mutations can share version
// numbers consistent with the room's new cookie. Rooms are created
// implicitly by the first write.
type RoomStorage interface {
	// GetEntry retrieves a single entry by room and key, including
	// tombstoned entries (Value is nil, Deleted is true).
	// Returns ErrEntryNotFound if no row exists.
	GetEntry(ctx context.Context, roomID, key string) (*models.Entry, error)

	// PutEntry creates or overwrites an entry at the given version,
	// clearing any tombstone.
	PutEntry(ctx context.Context, roomID, key string, value json.RawMessage, version int64) error

	// DeleteEntry soft-deletes an entry, stamping it with the given
	// version. Deleting an absent key is a no-op.
	DeleteEntry(ctx context.Context, roomID, key string, version int64) error

	// RoomVersion returns the max entry version in the room, or 0 if the
	// room has no entries.
	RoomVersion(ctx context.Context, roomID string) (int64, error)

	// EntriesSince returns all entries (including tombstones) with
	// version > since, ordered by key for determinism.
	EntriesSince(ctx context.Context, roomID string, since int64) ([]models.Entry, error)

	// GetClientRecord retrieves the durable bookkeeping row for a client.
	// Returns ErrClientNotFound if the client has never connected.
	GetClientRecord(ctx context.Context, clientID string) (*models.ClientRecord, error)

	// SetClientRecord creates or updates a client record.
	SetClientRecord(ctx context.Context, record *models.ClientRecord) error
}

// Store wraps every unit of work in a retryable transaction at the
// strictest isolation level the backend offers. The body may run multiple
// times on transient conflicts, so it must be pure with respect to its
// inputs; nothing is preserved between attempts. Exhausting the retry
// bound returns an error wrapping ErrRetryExhausted.
type Store interface {
	WithTx(ctx context.Context, fn func(tx RoomStorage) error) error
	Close() error
}
