// Package server routes decoded join and chat envelopes to the registry and
// fans them out to room members.
package server

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Router decodes inbound frames and dispatches them by envelope type.
type Router struct {
	registry  *Registry
	fanout    *Fanout
	lifecycle *Lifecycle
	logger    *zap.Logger
	metrics   *Metrics
}

// NewRouter wires a router to the shared registry and fan-out. The lifecycle
// handler is used when a join moves a connection out of its previous room.
func NewRouter(registry *Registry, fanout *Fanout, lifecycle *Lifecycle, logger *zap.Logger, metrics *Metrics) *Router {
	return &Router{
		registry:  registry,
		fanout:    fanout,
		lifecycle: lifecycle,
		logger:    logger,
		metrics:   metrics,
	}
}

// Route handles one raw frame from m. identity is the connection's state and
// is updated by joins. Decode failures are returned wrapped around
// ErrMalformedFrame, ErrMissingRoomID or ErrMissingMessage; the frame is
// dropped and nothing is sent back to m. Unknown envelope types are ignored.
func (r *Router) Route(m Member, identity *Identity, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.metrics.frameDropped(dropMalformed)
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	var err error
	switch env.Type {
	case TypeJoin:
		err = r.routeJoin(m, identity, env.Payload)
	case TypeChat:
		err = r.routeChat(env.Payload)
	default:
		r.metrics.frameDropped(dropUnknownType)
		r.logger.Debug("Ignoring frame with unknown type",
			zap.String("client_id", m.ID()),
			zap.String("type", env.Type))
		return nil
	}

	if err != nil {
		r.metrics.frameDropped(dropMalformed)
		return err
	}
	r.metrics.frameRouted(env.Type)
	return nil
}

func (r *Router) routeJoin(m Member, identity *Identity, raw json.RawMessage) error {
	var p JoinPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("join: %w", ErrMissingRoomID)
	}
	username := usernameOrDefault(p.Username)

	if identity.Joined() && identity.RoomID != p.RoomID {
		r.lifecycle.depart(m, identity)
	}

	identity.RoomID = p.RoomID
	identity.Username = username

	r.registry.EnsureRoom(p.RoomID)
	r.registry.AddMember(p.RoomID, m)
	r.updateRoomGauge()

	notified := r.fanout.Notice(p.RoomID, joinedText(username), m)
	r.logger.Info("Client joined room",
		zap.String("client_id", m.ID()),
		zap.String("room", p.RoomID),
		zap.String("username", username),
		zap.Int("notified", notified))
	return nil
}

func (r *Router) routeChat(raw json.RawMessage) error {
	var p ChatPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("chat: %w", ErrMissingRoomID)
	}
	if p.Message == nil {
		return fmt.Errorf("chat: %w", ErrMissingMessage)
	}

	relay := ChatRelay{
		Message:  *p.Message,
		Username: usernameOrDefault(p.Username),
	}
	if p.SenderID != "" {
		senderID := p.SenderID
		relay.SenderID = &senderID
	}

	delivered := r.fanout.Chat(p.RoomID, relay)
	r.logger.Debug("Relayed chat message",
		zap.String("room", p.RoomID),
		zap.String("username", relay.Username),
		zap.Int("delivered", delivered))
	return nil
}

func (r *Router) updateRoomGauge() {
	rooms, _ := r.registry.Stats()
	r.metrics.rooms.Set(float64(rooms))
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return nil
}
