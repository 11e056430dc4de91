package sync

import (
	"context"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/pkg/api"
)

// GetPatch computes the put/del operations transforming a client's view
// from fromCookie to the room's current state. A nil fromCookie means the
// client has nothing and gets a full snapshot. Cost is proportional to the
// number of changed rows, never to the document size; ops come back sorted
// by key.
func GetPatch(ctx context.Context, tx storage.RoomStorage, roomID string, fromCookie *int64) ([]api.PatchOp, error) {
	var since int64
	if fromCookie != nil {
		since = *fromCookie
	}

	entries, err := tx.EntriesSince(ctx, roomID, since)
	if err != nil {
		return nil, err
	}

	patch := make([]api.PatchOp, 0, len(entries))
	for _, entry := range entries {
		if entry.Deleted {
			patch = append(patch, api.PatchOp{Op: api.OpDel, Key: entry.Key})
		} else {
			patch = append(patch, api.PatchOp{Op: api.OpPut, Key: entry.Key, Value: entry.Value})
		}
	}

	return patch, nil
}

// computePokes builds one poke per connected client from its previous base
// cookie to the room's current cookie. Typically every client shares the
// same base cookie, so distinct patches are computed once and reused.
func computePokes(
	ctx context.Context,
	tx storage.RoomStorage,
	roomID string,
	connectedClientIDs []string,
	records map[string]*models.ClientRecord,
) ([]ClientPoke, int64, error) {
	cookie, err := tx.RoomVersion(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}

	// Patch cache keyed by base cookie; -1 stands in for nil (snapshot).
	patches := make(map[int64][]api.PatchOp)
	patchFor := func(baseCookie *int64) ([]api.PatchOp, error) {
		key := int64(-1)
		if baseCookie != nil {
			key = *baseCookie
		}
		if patch, ok := patches[key]; ok {
			return patch, nil
		}
		patch, err := GetPatch(ctx, tx, roomID, baseCookie)
		if err != nil {
			return nil, err
		}
		patches[key] = patch
		return patch, nil
	}

	pokes := make([]ClientPoke, 0, len(connectedClientIDs))
	for _, clientID := range connectedClientIDs {
		record := records[clientID]
		patch, err := patchFor(record.BaseCookie)
		if err != nil {
			return nil, 0, err
		}
		pokes = append(pokes, ClientPoke{
			ClientID: clientID,
			Poke: &api.Poke{
				BaseCookie:     record.BaseCookie,
				Cookie:         cookie,
				LastMutationID: record.LastMutationID,
				Patch:          patch,
			},
		})
	}

	return pokes, cookie, nil
}
