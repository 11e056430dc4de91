package sync

import (
	stdsync "sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/iudanet/roomsync/internal/models"
	"github.com/iudanet/roomsync/pkg/api"
)

// Socket is the transport-side handle for one live connection. Send must
// be safe for concurrent use; delivery is best-effort.
type Socket interface {
	Send(msg *api.Message) error
	Close() error
}

// Client is the transient, per-connection state. Everything durable lives
// in the client record; here we only keep the socket, a cache of the
// client's room (it never changes for the client's lifetime), and the
// in-memory queue of pending mutations sorted by id.
type Client struct {
	ClientID string
	RoomID   string

	socket Socket

	mu      stdsync.Mutex
	pending []models.Mutation
}

// NewClient creates the runtime state for one live connection
func NewClient(clientID, roomID string, socket Socket) *Client {
	return &Client{
		ClientID: clientID,
		RoomID:   roomID,
		socket:   socket,
	}
}

// Send forwards a message to the client's connection
func (c *Client) Send(msg *api.Message) error {
	return c.socket.Send(msg)
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.socket.Close()
}

// PendingMutations returns a snapshot of the pending queue
func (c *Client) PendingMutations() []models.Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]models.Mutation, len(c.pending))
	copy(snapshot, c.pending)
	return snapshot
}

// ClearPending removes all pending mutations with id <= lastMutationID.
// The queue is sorted by id, so this trims its processed prefix.
func (c *Client) ClearPending(lastMutationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := len(c.pending)
	for i, m := range c.pending {
		if m.ID > lastMutationID {
			idx = i
			break
		}
	}
	c.pending = c.pending[idx:]
}

// Registry is the process-wide set of live connections, keyed by client
// id. It is injected into the engine rather than kept as a hidden
// singleton, so tests can swap it per scenario. Push handlers touch only
// their own client's pending queue, so the registry itself is the only
// cross-client shared state.
type Registry struct {
	clients *xsync.MapOf[string, *Client]
}

// NewRegistry creates an empty client registry
func NewRegistry() *Registry {
	return &Registry{
		clients: xsync.NewMapOf[string, *Client](),
	}
}

// Get returns the live client for an id, if connected
func (r *Registry) Get(clientID string) (*Client, bool) {
	return r.clients.Load(clientID)
}

// Register stores a client, returning any previous connection registered
// under the same id so the caller can close it
func (r *Registry) Register(client *Client) (previous *Client) {
	if prev, ok := r.clients.LoadAndStore(client.ClientID, client); ok {
		return prev
	}
	return nil
}

// Remove deletes the registry entry for client, unless a newer connection
// has already replaced it
func (r *Registry) Remove(client *Client) {
	r.clients.Compute(client.ClientID, func(current *Client, loaded bool) (*Client, bool) {
		if loaded && current == client {
			return nil, true // delete
		}
		return current, !loaded
	})
}

// RoomClientIDs returns the ids of all live clients in a room
func (r *Registry) RoomClientIDs(roomID string) []string {
	var ids []string
	r.clients.Range(func(clientID string, client *Client) bool {
		if client.RoomID == roomID {
			ids = append(ids, clientID)
		}
		return true
	})
	return ids
}

// PendingByRoom gathers a snapshot of every client's pending mutations,
// grouped by room. Rooms with no pending mutations are absent.
func (r *Registry) PendingByRoom() map[string][]models.ClientMutation {
	byRoom := make(map[string][]models.ClientMutation)
	r.clients.Range(func(clientID string, client *Client) bool {
		for _, m := range client.PendingMutations() {
			byRoom[client.RoomID] = append(byRoom[client.RoomID], models.ClientMutation{
				Mutation: m,
				ClientID: clientID,
			})
		}
		return true
	})
	return byRoom
}
