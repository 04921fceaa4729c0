package server

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeMember struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func newFakeMember(id string) *fakeMember { return &fakeMember{id: id} }

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Deliver(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeMember) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeMember) decoded(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range f.received() {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		out = append(out, frame)
	}
	return out
}

func (f *fakeMember) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type engine struct {
	registry  *Registry
	router    *Router
	lifecycle *Lifecycle
	metrics   *Metrics
	logs      *observer.ObservedLogs
}

func newEngine() *engine {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	metrics := NewMetrics()
	registry := NewRegistry()
	fanout := NewFanout(registry, logger, metrics)
	lifecycle := NewLifecycle(registry, fanout, logger, metrics)
	return &engine{
		registry:  registry,
		router:    NewRouter(registry, fanout, lifecycle, logger, metrics),
		lifecycle: lifecycle,
		metrics:   metrics,
		logs:      logs,
	}
}

func joinFrame(roomID, username string) []byte {
	payload := map[string]string{"roomId": roomID}
	if username != "" {
		payload["username"] = username
	}
	raw, _ := json.Marshal(map[string]any{"type": TypeJoin, "payload": payload})
	return raw
}

func chatFrame(roomID, message, username, senderID string) []byte {
	payload := map[string]string{"roomId": roomID, "message": message}
	if username != "" {
		payload["username"] = username
	}
	if senderID != "" {
		payload["senderId"] = senderID
	}
	raw, _ := json.Marshal(map[string]any{"type": TypeChat, "payload": payload})
	return raw
}

func noticeFrame(text string) map[string]any {
	return map[string]any{"message": text, "username": "system", "isSystemMessage": true}
}

func memberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID())
	}
	return ids
}
