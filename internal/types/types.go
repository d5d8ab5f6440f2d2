// Package types holds the websocket wire messages.
package types

import "github.com/DoyleJ11/hackathon-judging/internal/hub"

// ClientMessage answers a confirmation round on behalf of the operator the
// socket was opened as. User, when set, must name that same operator.
type ClientMessage struct {
	Type  string `json:"type"` // "Confirm" | "Cancel"
	Round string `json:"round"`
	User  string `json:"user,omitempty"`
}

type ServerMessage struct {
	Type    string       `json:"type"` // "Message" | "Ack" | "Error"
	Message *hub.Message `json:"message,omitempty"`
	Round   string       `json:"round,omitempty"`
	Error   string       `json:"error,omitempty"`
}
