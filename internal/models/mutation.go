package models

import "encoding/json"

// Mutation is a named, argument-carrying state-change request from a client.
// IDs start at 1 and increase by exactly 1 per client. Timestamp is assigned
// server-side at enqueue time (unix milliseconds) and is monotonically
// non-decreasing within one client's pending queue.
type Mutation struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Timestamp int64           `json:"timestamp"`
}

// ClientMutation is a pending mutation tagged with the client that sent it.
// The room stepper works on these, sorted by timestamp across clients.
type ClientMutation struct {
	Mutation
	ClientID string `json:"client_id"`
}
