// Package server wires HTTP handlers into a ServeMux for the chat relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// "/" and "/ws" accept WebSocket upgrades; "/health", "/stats" and "/metrics"
// serve operational data.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/health", StatusHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.Handle("/metrics", hub.metrics.Handler())
	return mux
}
