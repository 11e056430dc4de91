package models

import "encoding/json"

// Entry represents one versioned key/value row within a room.
// A deleted entry keeps its row with the Deleted flag set and the version
// of the delete, so clients can be told to remove the key.
type Entry struct {
	RoomID  string          `json:"room_id"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version int64           `json:"version"`
	Deleted bool            `json:"deleted"`
}

// ClientRecord is the durable per-client bookkeeping row.
// BaseCookie is the room cookie as of the last patch computed for this
// client; nil means the client has seen nothing and needs a full snapshot.
// LastMutationID is the highest mutation id processed for this client.
// It is mutated only by the room stepper (and set once at connect time).
type ClientRecord struct {
	ClientID       string `json:"client_id"`
	RoomID         string `json:"room_id"`
	BaseCookie     *int64 `json:"base_cookie"`
	LastMutationID int64  `json:"last_mutation_id"`
}
