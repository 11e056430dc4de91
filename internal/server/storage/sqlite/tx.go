package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/roomsync/internal/server/storage"
)

// maxTxAttempts bounds the retries of a conflicting transaction
const maxTxAttempts = 10

// WithTx runs fn inside a transaction, retrying on transient lock
// conflicts. SQLite transactions are always serializable, so no explicit
// isolation level is requested. The body must be pure with respect to its
// inputs: nothing is preserved between attempts.
func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.RoomStorage) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(&roomTx{tx: tx}); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
			}
			if isBusy(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	}

	return fmt.Errorf("%w after %d attempts: %v", storage.ErrRetryExhausted, maxTxAttempts, lastErr)
}

// isBusy reports whether err is a transient SQLite lock conflict worth
// retrying
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// roomTx implements storage.RoomStorage on top of one sql.Tx
type roomTx struct {
	tx *sql.Tx
}
