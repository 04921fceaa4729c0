// Package server implements the room-based WebSocket chat relay.
//
// Clients join a named room with a join envelope and exchange chat envelopes
// that are fanned out to every member of that room. The Registry holds room
// membership, the Router decodes and dispatches inbound frames, the Lifecycle
// handler cleans up after disconnects, and the Hub ties those to the
// per-connection read/write pumps. Configuration, logging, metrics and the
// HTTP surface live alongside them in this package.
package server
