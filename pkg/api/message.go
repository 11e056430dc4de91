package api

// Message type identifiers for socket frames.
const (
	TypePush  = "push"
	TypePoke  = "poke"
	TypeError = "error"
)

// Message is one framed message on the socket, in either direction.
// Exactly one of Push, Poke or Error is set depending on Type.
type Message struct {
	Type  string       `json:"type"`
	Push  *PushRequest `json:"push,omitempty"`
	Poke  *Poke        `json:"poke,omitempty"`
	Error string       `json:"error,omitempty"`
}
