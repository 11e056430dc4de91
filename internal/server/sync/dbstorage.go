package sync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/iudanet/roomsync/internal/server/storage"
)

// dbStorage adapts one room of the durable versioned store to the Storage
// interface the entry cache stacks over. It is bound to one transaction;
// instances live for a single room step.
type dbStorage struct {
	tx     storage.RoomStorage
	roomID string
}

func newDBStorage(tx storage.RoomStorage, roomID string) *dbStorage {
	return &dbStorage{tx: tx, roomID: roomID}
}

// Get returns a nil value for keys that are absent or tombstoned; the
// tombstone's version is preserved so the cache can answer version reads
func (d *dbStorage) Get(ctx context.Context, key string) (json.RawMessage, int64, error) {
	entry, err := d.tx.GetEntry(ctx, d.roomID, key)
	if err != nil {
		if errors.Is(err, storage.ErrEntryNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return entry.Value, entry.Version, nil
}

func (d *dbStorage) Put(ctx context.Context, key string, value json.RawMessage, version int64) error {
	return d.tx.PutEntry(ctx, d.roomID, key, value, version)
}

func (d *dbStorage) Del(ctx context.Context, key string, version int64) error {
	return d.tx.DeleteEntry(ctx, d.roomID, key, version)
}
