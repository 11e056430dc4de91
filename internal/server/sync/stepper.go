package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/pkg/api"
)

// ClientPoke pairs a computed poke with the client it is addressed to
type ClientPoke struct {
	ClientID string
	Poke     *api.Poke
}

// stepMutation executes one mutation against a fresh cache layer over
// parent. It returns true when the mutation's id was consumed, meaning the
// caller must advance the client's lastMutationID to mutation.ID.
//
// Ordering policy: an id below the expected one was already processed and
// is skipped silently; an id above it is deferred without consuming
// (the client stalls until the gap closes). An unknown mutator name or a
// failing mutator still consumes the id: mutations are idempotent by id,
// not retryable, and a permanently broken mutation must not wedge the
// client's queue forever.
func stepMutation(
	ctx context.Context,
	parent *EntryCache,
	mutation models.ClientMutation,
	clientLastMutationID int64,
	version int64,
	mutators Mutators,
	logger *slog.Logger,
) bool {
	expected := clientLastMutationID + 1

	if mutation.ID < expected {
		logger.Debug("mutation already processed, skipping",
			"client_id", mutation.ClientID,
			"mutation_id", mutation.ID)
		return false
	}

	if mutation.ID > expected {
		logger.Warn("mutation out of order, deferring",
			"client_id", mutation.ClientID,
			"mutation_id", mutation.ID,
			"expected", expected)
		return false
	}

	cache := NewEntryCache(parent)
	tx := NewTransaction(cache, mutation.ClientID, version)

	mutator, ok := mutators[mutation.Name]
	if !ok {
		// Consume the id anyway: a missing mutator must not stall the
		// client forever.
		logger.Warn("unknown mutator, consuming mutation without effect",
			"client_id", mutation.ClientID,
			"mutation_id", mutation.ID,
			"name", mutation.Name)
		return true
	}

	if err := mutator.Apply(ctx, tx, mutation.Args); err != nil {
		// Same policy as an unknown mutator: consume the id, drop the
		// effect. The client's optimistic state rolls back with the next
		// patch.
		logger.Error("mutator failed, consuming mutation without effect",
			"client_id", mutation.ClientID,
			"mutation_id", mutation.ID,
			"name", mutation.Name,
			"error", err)
		mutationErrors.Inc()
		return true
	}

	if err := cache.Flush(ctx); err != nil {
		// Flushing into the parent cache is pure map work; the only
		// errors it can surface come from the mutation's own writes.
		logger.Error("failed to flush mutation cache",
			"client_id", mutation.ClientID,
			"mutation_id", mutation.ID,
			"error", err)
		return true
	}

	mutationsApplied.Inc()
	return true
}

// stepRoom orders, applies and commits a batch of mutations for one room
// inside the caller's transaction, returning the pokes to deliver after
// commit.
func stepRoom(
	ctx context.Context,
	tx storage.RoomStorage,
	roomID string,
	mutations []models.ClientMutation,
	mutators Mutators,
	connectedClientIDs []string,
	logger *slog.Logger,
) ([]ClientPoke, error) {
	// Push guarantees timestamps increase with mutation ids within each
	// client, so a global timestamp sort is also sorted by id per client.
	// Correctness does not depend on it: an out-of-order mutation stalls
	// its client rather than being applied out of order.
	sort.SliceStable(mutations, func(i, j int) bool {
		return mutations[i].Timestamp < mutations[j].Timestamp
	})

	// Records for every client that sent a mutation (they may have
	// disconnected, their mutations still apply) plus every connected
	// client (they may need a poke with no mutations of their own).
	ids := make(map[string]struct{})
	for _, m := range mutations {
		ids[m.ClientID] = struct{}{}
	}
	for _, id := range connectedClientIDs {
		ids[id] = struct{}{}
	}

	records := make(map[string]*models.ClientRecord, len(ids))
	for id := range ids {
		record, err := tx.GetClientRecord(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrClientNotFound) {
				return nil, fmt.Errorf("client %s pushed before connecting: %w", id, err)
			}
			return nil, err
		}
		records[id] = record
	}

	// All writes of this batch share one version so the room's new cookie
	// covers them all.
	roomVersion, err := tx.RoomVersion(ctx, roomID)
	if err != nil {
		return nil, err
	}
	nextVersion := roomVersion + 1

	cache := NewEntryCache(newDBStorage(tx, roomID))
	for _, m := range mutations {
		record := records[m.ClientID]
		if stepMutation(ctx, cache, m, record.LastMutationID, nextVersion, mutators, logger) {
			record.LastMutationID = m.ID
		}
	}

	if err := cache.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush room cache: %w", err)
	}

	pokes, cookie, err := computePokes(ctx, tx, roomID, connectedClientIDs, records)
	if err != nil {
		return nil, err
	}

	// Advance the durable bookkeeping: lastMutationID as consumed above,
	// baseCookie to the cookie the pokes reflect.
	for _, record := range records {
		record.BaseCookie = &cookie
		if err := tx.SetClientRecord(ctx, record); err != nil {
			return nil, err
		}
	}

	return pokes, nil
}
