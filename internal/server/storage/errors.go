package storage

import "errors"

// Common storage errors
var (
	// ErrEntryNotFound indicates that no entry row exists for a (room, key)
	ErrEntryNotFound = errors.New("entry not found")

	// ErrClientNotFound indicates that no record exists for a client.
	// During a room step this is fatal: a client must connect before it
	// can push mutations.
	ErrClientNotFound = errors.New("client record not found")

	// ErrRetryExhausted indicates that a transaction kept hitting
	// transient conflicts and gave up after the retry bound
	ErrRetryExhausted = errors.New("transaction retries exhausted")
)
