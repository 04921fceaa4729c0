// Package server delivers notices and chat relays to room members with
// per-recipient failure isolation.
package server

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Delivery kinds, used as metric labels.
const (
	kindNotice = "notice"
	kindChat   = "chat"
)

// Fanout writes one payload to the members of a room.
type Fanout struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *Metrics
}

// NewFanout returns a Fanout over registry.
func NewFanout(registry *Registry, logger *zap.Logger, metrics *Metrics) *Fanout {
	return &Fanout{registry: registry, logger: logger, metrics: metrics}
}

// Notice sends a system notice to every member of roomID except exclude,
// which may be nil. It returns the number of members the notice was queued to.
func (f *Fanout) Notice(roomID, text string, exclude Member) int {
	payload, err := json.Marshal(newNotice(text))
	if err != nil {
		f.logger.Error("Error encoding notice", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	return f.deliver(roomID, kindNotice, payload, exclude)
}

// Chat relays a chat message to every member of roomID, sender included.
func (f *Fanout) Chat(roomID string, relay ChatRelay) int {
	payload, err := json.Marshal(relay)
	if err != nil {
		f.logger.Error("Error encoding chat relay", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	return f.deliver(roomID, kindChat, payload, nil)
}

func (f *Fanout) deliver(roomID, kind string, payload []byte, exclude Member) int {
	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ID()
	}

	delivered := 0
	f.registry.each(roomID, func(m Member) {
		if excludeID != "" && m.ID() == excludeID {
			return
		}
		if err := m.Deliver(payload); err != nil {
			f.metrics.deliveryFailed(err)
			f.logger.Debug("Skipping member",
				zap.String("room", roomID),
				zap.String("client_id", m.ID()),
				zap.Error(err))
			return
		}
		delivered++
	})

	f.metrics.delivered(kind, delivered)
	return delivered
}
