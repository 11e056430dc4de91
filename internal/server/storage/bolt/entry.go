package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
)

// storedEntry is the on-disk form of one entry row
type storedEntry struct {
	Value   json.RawMessage `json:"v,omitempty"`
	Version int64           `json:"version"`
	Deleted bool            `json:"deleted"`
}

// roomBucket returns the nested bucket for a room, or nil if the room has
// never been written
func (t *roomTx) roomBucket(roomID string) *bbolt.Bucket {
	return t.tx.Bucket(bucketEntries).Bucket([]byte(roomID))
}

// ensureRoomBucket creates the nested bucket for a room on first write
func (t *roomTx) ensureRoomBucket(roomID string) (*bbolt.Bucket, error) {
	b, err := t.tx.Bucket(bucketEntries).CreateBucketIfNotExists([]byte(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to create room bucket: %w", err)
	}
	return b, nil
}

// GetEntry retrieves a single entry by room and key
// Returns ErrEntryNotFound if no row exists
func (t *roomTx) GetEntry(ctx context.Context, roomID, key string) (*models.Entry, error) {
	b := t.roomBucket(roomID)
	if b == nil {
		return nil, storage.ErrEntryNotFound
	}

	raw := b.Get([]byte(key))
	if raw == nil {
		return nil, storage.ErrEntryNotFound
	}

	var stored storedEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	entry := &models.Entry{
		RoomID:  roomID,
		Key:     key,
		Version: stored.Version,
		Deleted: stored.Deleted,
	}
	if !stored.Deleted {
		entry.Value = stored.Value
	}

	return entry, nil
}

// PutEntry creates or overwrites an entry at the given version, clearing
// any tombstone
func (t *roomTx) PutEntry(ctx context.Context, roomID, key string, value json.RawMessage, version int64) error {
	b, err := t.ensureRoomBucket(roomID)
	if err != nil {
		return err
	}

	return t.putStored(b, key, storedEntry{Value: value, Version: version})
}

// DeleteEntry soft-deletes an entry, stamping it with the given version
// Deleting an absent key is a no-op
func (t *roomTx) DeleteEntry(ctx context.Context, roomID, key string, version int64) error {
	b := t.roomBucket(roomID)
	if b == nil || b.Get([]byte(key)) == nil {
		return nil
	}

	return t.putStored(b, key, storedEntry{Version: version, Deleted: true})
}

func (t *roomTx) putStored(b *bbolt.Bucket, key string, stored storedEntry) error {
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := b.Put([]byte(key), raw); err != nil {
		return fmt.Errorf("failed to put entry: %w", err)
	}
	return nil
}

// RoomVersion returns the max entry version in the room, or 0 if the room
// has no entries
func (t *roomTx) RoomVersion(ctx context.Context, roomID string) (int64, error) {
	var version int64
	entries, err := t.EntriesSince(ctx, roomID, 0)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.Version > version {
			version = entry.Version
		}
	}
	return version, nil
}

// EntriesSince returns all entries (including tombstones) with
// version > since. bbolt cursors iterate in byte order, which gives the
// deterministic by-key ordering the patch differ needs.
func (t *roomTx) EntriesSince(ctx context.Context, roomID string, since int64) ([]models.Entry, error) {
	b := t.roomBucket(roomID)
	if b == nil {
		return nil, nil
	}

	var entries []models.Entry
	err := b.ForEach(func(k, raw []byte) error {
		var stored storedEntry
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal entry %q: %w", k, err)
		}
		if stored.Version <= since {
			return nil
		}
		entry := models.Entry{
			RoomID:  roomID,
			Key:     string(k),
			Version: stored.Version,
			Deleted: stored.Deleted,
		}
		if !stored.Deleted {
			entry.Value = stored.Value
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
