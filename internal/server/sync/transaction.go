package sync

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupported is returned by transaction operations the engine does not
// implement yet. Callers may rely on these answers, so they must fail
// loudly instead of returning something plausible.
var ErrUnsupported = errors.New("operation not supported")

// Transaction is the write surface handed to a mutator. It wraps the
// per-mutation entry cache, pinned to the invoking client and to the
// version chosen by the room stepper for this batch, so every write of the
// mutation lands at that version.
type Transaction struct {
	cache    *EntryCache
	clientID string
	version  int64
}

// NewTransaction binds a transaction to one (clientID, version) pair
func NewTransaction(cache *EntryCache, clientID string, version int64) *Transaction {
	return &Transaction{
		cache:    cache,
		clientID: clientID,
		version:  version,
	}
}

// ClientID identifies the client whose mutation is running, so mutators
// can record per-client effects
func (t *Transaction) ClientID() string {
	return t.clientID
}

// Get returns the current value for key, or nil if absent
func (t *Transaction) Get(ctx context.Context, key string) (json.RawMessage, error) {
	value, _, err := t.cache.Get(ctx, key)
	return value, err
}

// Has reports whether key currently has a value
func (t *Transaction) Has(ctx context.Context, key string) (bool, error) {
	return t.cache.Has(ctx, key)
}

// Put writes value under key at the transaction's pinned version
func (t *Transaction) Put(ctx context.Context, key string, value json.RawMessage) error {
	return t.cache.Put(ctx, key, value, t.version)
}

// Del deletes key, reporting whether it had a value
func (t *Transaction) Del(ctx context.Context, key string) (bool, error) {
	had, err := t.Has(ctx, key)
	if err != nil {
		return false, err
	}
	if err := t.cache.Del(ctx, key, t.version); err != nil {
		return false, err
	}
	return had, nil
}

// Scan is not supported
func (t *Transaction) Scan(ctx context.Context, fromKey string) ([]string, error) {
	return nil, ErrUnsupported
}

// IsEmpty is not supported
func (t *Transaction) IsEmpty(ctx context.Context) (bool, error) {
	return false, ErrUnsupported
}
