// Package server defines the wire envelopes exchanged with chat clients and
// utility helpers that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Envelope types understood by the router.
const (
	TypeJoin = "join"
	TypeChat = "chat"
)

const (
	defaultUsername = "anonymous"
	systemUsername  = "system"
)

// Envelope is the inbound frame. Payload is decoded once Type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload is the payload of a join envelope.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
	SenderID string `json:"senderId,omitempty"`
}

// ChatPayload is the payload of a chat envelope. Message is a pointer so an
// absent message can be told apart from an empty one.
type ChatPayload struct {
	RoomID   string  `json:"roomId"`
	Message  *string `json:"message"`
	Username string  `json:"username,omitempty"`
	SenderID string  `json:"senderId,omitempty"`
}

// Notice is a system-authored join or leave announcement.
type Notice struct {
	Message         string `json:"message"`
	Username        string `json:"username"`
	IsSystemMessage bool   `json:"isSystemMessage"`
}

// ChatRelay is a chat message as fanned out to room members. SenderID
// encodes as null when the client did not supply one.
type ChatRelay struct {
	Message  string  `json:"message"`
	Username string  `json:"username"`
	SenderID *string `json:"senderId"`
}

// Identity is the per-connection state established by a join. It is owned by
// the connection's read pump, which runs both the router and the lifecycle
// handler, so it needs no locking.
type Identity struct {
	RoomID   string
	Username string
}

// Joined reports whether a join has been recorded.
func (id *Identity) Joined() bool {
	return id != nil && id.RoomID != ""
}

func (id *Identity) reset() {
	id.RoomID = ""
	id.Username = ""
}

func newNotice(text string) Notice {
	return Notice{Message: text, Username: systemUsername, IsSystemMessage: true}
}

func joinedText(username string) string { return username + " has joined the room" }
func leftText(username string) string   { return username + " has left the room" }

func usernameOrDefault(name string) string {
	if name == "" {
		return defaultUsername
	}
	return name
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
