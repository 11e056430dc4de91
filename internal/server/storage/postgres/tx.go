package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iudanet/roomsync/internal/server/storage"
)

// maxTxAttempts bounds the retries of a conflicting transaction
const maxTxAttempts = 10

// Postgres error codes for serialization_failure and deadlock_detected
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// WithTx runs fn inside a serializable transaction, retrying on
// serialization failures and deadlocks. The body must be pure with respect
// to its inputs: nothing is preserved between attempts.
func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.RoomStorage) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(&roomTx{tx: tx}); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	}

	return fmt.Errorf("%w after %d attempts: %v", storage.ErrRetryExhausted, maxTxAttempts, lastErr)
}

// isSerializationFailure reports whether err is a transient conflict worth
// retrying
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// roomTx implements storage.RoomStorage on top of one sql.Tx
type roomTx struct {
	tx *sql.Tx
}
