// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and room statistics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const healthText = "GoChat server is running!"

// WebSocketHandler returns a handler that upgrades GET requests to a
// WebSocket, creates a Client and hands it to hub, which starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// RootHandler serves WebSocket upgrades on "/" for clients that connect to
// the bare host, and the plain health text for everything else.
func RootHandler(hub *Hub) http.HandlerFunc {
	ws := WebSocketHandler(hub)
	return func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws(w, r)
			return
		}
		HealthHandler(w, r)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthText)
}

// StatusHandler reports liveness as JSON for orchestrators.
func StatusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// StatsHandler returns room, connection and membership counts as JSON.
func StatsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rooms, clients, members := hub.Stats()
		writeJSON(w, map[string]int{"rooms": rooms, "clients": clients, "members": members})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
