// Package bolt implements the versioned store on top of bbolt for
// single-node deployments that want a file-backed KV store instead of a
// SQL database. bbolt serializes writers, so every Update transaction is
// trivially serializable and transient conflicts cannot occur.
package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/roomsync/internal/server/storage"
)

var (
	// Bucket names
	bucketEntries = []byte("entries") // nested per-room buckets
	bucketClients = []byte("clients")
)

// Storage represents the bbolt implementation of the versioned store
type Storage struct {
	db *bbolt.DB
}

// New creates a new bbolt storage instance
// dbPath is the path to the database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets creates the top-level buckets if they don't exist
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return fmt.Errorf("failed to create entries bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketClients); err != nil {
			return fmt.Errorf("failed to create clients bucket: %w", err)
		}
		return nil
	})
}

// WithTx runs fn inside one bbolt update transaction. Writers are fully
// serialized by bbolt, so there is nothing transient to retry.
func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.RoomStorage) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&roomTx{tx: btx})
	})
}

// roomTx implements storage.RoomStorage on top of one bbolt transaction
type roomTx struct {
	tx *bbolt.Tx
}
