// Package server defines the sentinel errors returned by frame decoding and
// per-recipient delivery.
package server

import "errors"

var (
	// ErrMalformedFrame is returned when an inbound frame is not a valid
	// JSON envelope or its payload does not match the declared type.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMissingRoomID is returned for join and chat payloads without a roomId.
	ErrMissingRoomID = errors.New("missing roomId")
	// ErrMissingMessage is returned for chat payloads without a message.
	ErrMissingMessage = errors.New("missing message")

	// ErrConnectionClosed is returned when delivering to a connection that
	// is no longer open.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when a recipient's outbound queue has
	// no room left.
	ErrSendBufferFull = errors.New("send buffer full")
)
