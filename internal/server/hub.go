// Package server coordinates client registration, room routing, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub tracks every live WebSocket connection and owns the room registry,
// router and lifecycle handler that those connections share. Registration
// and unregistration are serialized by Run; routing runs on each client's
// read pump against the registry's locks.
type Hub struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	registry  *Registry
	router    *Router
	lifecycle *Lifecycle

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub from cfg. A nil cfg uses defaults and a nil logger
// discards output. The returned Hub must be started with Run.
func NewHub(cfg *Config, logger *zap.Logger) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitized := sanitizeConfig(*cfg)
	metrics := NewMetrics()

	registry := NewRegistry()
	fanout := NewFanout(registry, logger, metrics)
	lifecycle := NewLifecycle(registry, fanout, logger, metrics)
	router := NewRouter(registry, fanout, lifecycle, logger, metrics)

	policy := newOriginPolicy(sanitized.AllowedOrigins, logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     sanitized,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		registry:   registry,
		router:     router,
		lifecycle:  lifecycle,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config { return h.cfg }

// Registry returns the room registry shared by all connections.
func (h *Hub) Registry() *Registry { return h.registry }

// Metrics returns the hub's Prometheus collectors.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Stats reports the number of rooms, open connections and room members.
func (h *Hub) Stats() (rooms, clients, members int) {
	rooms, members = h.registry.Stats()
	h.mutex.RLock()
	clients = len(h.clients)
	h.mutex.RUnlock()
	return rooms, clients, members
}

// Run starts the hub's main event loop, handling client registration and
// unregistration until Shutdown is called. It should run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.connections.Set(float64(clientCount))
	client.logger.Info("Client registered", zap.Int("clients", clientCount))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.close()
	if ok {
		h.metrics.connections.Set(float64(clientCount))
		client.logger.Info("Client unregistered", zap.Int("clients", clientCount))
	}
}

// unregisterClient is called from a client's read pump. Once the hub is
// shutting down Run no longer receives, so the client is released directly.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// shutdownClients closes every active connection; their read pumps then run
// the usual lifecycle cleanup.
func (h *Hub) shutdownClients() {
	h.logger.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mutex.Unlock()
	h.metrics.connections.Set(0)

	for _, client := range clients {
		client.close()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				client.logger.Warn("Error closing client connection", zap.Error(err))
			}
		}
	}

	h.logger.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or context.DeadlineExceeded when the timeout is reached first.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown...")

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached before event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
