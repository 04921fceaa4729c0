// Package server cleans up room membership when a connection goes away.
package server

import "go.uber.org/zap"

// Lifecycle removes closed connections from their room and tells the
// remaining members.
type Lifecycle struct {
	registry *Registry
	fanout   *Fanout
	logger   *zap.Logger
	metrics  *Metrics
}

// NewLifecycle returns a Lifecycle over registry.
func NewLifecycle(registry *Registry, fanout *Fanout, logger *zap.Logger, metrics *Metrics) *Lifecycle {
	return &Lifecycle{registry: registry, fanout: fanout, logger: logger, metrics: metrics}
}

// HandleClose runs once per connection on graceful close or transport error.
// It is a no-op for connections that never joined a room.
func (l *Lifecycle) HandleClose(m Member, identity *Identity) {
	if !identity.Joined() {
		return
	}
	l.depart(m, identity)
}

// depart removes m from its current room, announces the departure to the
// members left behind and clears identity.
func (l *Lifecycle) depart(m Member, identity *Identity) {
	roomID, username := identity.RoomID, identity.Username
	identity.reset()

	l.registry.RemoveMember(roomID, m)
	rooms, _ := l.registry.Stats()
	l.metrics.rooms.Set(float64(rooms))

	notified := l.fanout.Notice(roomID, leftText(username), m)
	l.logger.Info("Client left room",
		zap.String("client_id", m.ID()),
		zap.String("room", roomID),
		zap.String("username", username),
		zap.Int("notified", notified))
}
