package sync

import (
	"math"
	"sort"
	"time"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/pkg/api"
)

// Push enqueues a batch of mutations onto the client's pending queue and
// signals the loop. Re-sent mutation ids are discarded, so pushing the
// same batch twice is harmless.
//
// Each accepted mutation gets a server-assigned timestamp clamped between
// its queue neighbours at the insertion point. Wall-clock reads are not
// monotonic, but the room stepper sorts by timestamp across clients, so
// timestamps must at least be consistent with id order within one client's
// queue.
func (e *Engine) Push(client *Client, req *api.PushRequest, now func() time.Time) {
	client.mu.Lock()
	for _, m := range req.Mutations {
		client.enqueueLocked(m, now)
	}
	client.mu.Unlock()

	e.logger.Debug("processed push",
		"client_id", client.ClientID,
		"mutations", len(req.Mutations))

	// Fire-and-forget: the push handler never waits for the step.
	e.Signal()
}

// enqueueLocked inserts one mutation into the sorted pending queue,
// dropping duplicates. Caller holds c.mu.
func (c *Client) enqueueLocked(m api.Mutation, now func() time.Time) {
	idx := sort.Search(len(c.pending), func(i int) bool {
		return c.pending[i].ID >= m.ID
	})

	if idx < len(c.pending) && c.pending[idx].ID == m.ID {
		// Idempotent re-send.
		return
	}

	floor := int64(0)
	if idx > 0 {
		floor = c.pending[idx-1].Timestamp
	}
	ceiling := int64(math.MaxInt64)
	if idx < len(c.pending) {
		ceiling = c.pending[idx].Timestamp
	}

	timestamp := now().UnixMilli()
	if timestamp < floor {
		timestamp = floor
	}
	if timestamp > ceiling {
		timestamp = ceiling
	}

	mutation := models.Mutation{
		ID:        m.ID,
		Name:      m.Name,
		Args:      m.Args,
		Timestamp: timestamp,
	}

	c.pending = append(c.pending, models.Mutation{})
	copy(c.pending[idx+1:], c.pending[idx:])
	c.pending[idx] = mutation
}
