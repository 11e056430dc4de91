package api

import "encoding/json"

// Patch op kinds.
const (
	OpPut = "put"
	OpDel = "del"
)

// PatchOp is a single put or delete operation within a patch.
// Value is present only for put operations.
type PatchOp struct {
	Op    string          `json:"op"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Mutation is the wire form of one client mutation. The server assigns
// timestamps itself, so the wire shape carries none.
type Mutation struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// PushRequest is a batch of mutations sent by a client.
type PushRequest struct {
	Mutations []Mutation `json:"mutations"`
}

// Poke is the server-to-client message carrying a patch plus updated
// cookie and lastMutationID. BaseCookie is nil when the patch is a full
// snapshot.
type Poke struct {
	BaseCookie     *int64    `json:"baseCookie"`
	Cookie         int64     `json:"cookie"`
	LastMutationID int64     `json:"lastMutationID"`
	Patch          []PatchOp `json:"patch"`
}

// PullRequest asks for everything newer than BaseCookie in a room.
type PullRequest struct {
	RoomID     string `json:"roomID"`
	ClientID   string `json:"clientID"`
	BaseCookie *int64 `json:"baseCookie"`
}

// PullResponse mirrors Poke for the HTTP pull path.
type PullResponse struct {
	BaseCookie     *int64    `json:"baseCookie"`
	Cookie         int64     `json:"cookie"`
	LastMutationID int64     `json:"lastMutationID"`
	Patch          []PatchOp `json:"patch"`
}
