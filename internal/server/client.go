// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type connState int32

const (
	stateOpen connState = iota
	stateClosing
	stateClosed
)

// Client represents one WebSocket connection in the chat system. The read
// pump owns identity; the write pump is the only writer to conn.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	state  atomic.Int32
	hub    *Hub
	addr   string
	logger *zap.Logger

	identity Identity

	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	rateLimit      RateLimitConfig
	limiter        *rate.Limiter
}

// NewClient creates a Client for conn using the hub's configuration. The
// send queue is buffered so fan-out never waits on the network.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		done:           make(chan struct{}),
		hub:            hub,
		addr:           addr,
		logger:         hub.logger.With(zap.String("client_id", id), zap.String("addr", addr)),
		maxMessageSize: cfg.MaxMessageSize,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		rateLimit:      cfg.RateLimit,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst),
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// Addr returns the remote address the connection was accepted from.
func (c *Client) Addr() string { return c.addr }

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// IsOpen reports whether the connection still accepts deliveries.
func (c *Client) IsOpen() bool {
	return connState(c.state.Load()) == stateOpen
}

// Deliver queues payload for the write pump without blocking.
func (c *Client) Deliver(payload []byte) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// beginClose stops further deliveries while cleanup runs.
func (c *Client) beginClose() {
	c.state.CompareAndSwap(int32(stateOpen), int32(stateClosing))
}

// close marks the client closed and releases the write pump. It is safe to
// call more than once and from any goroutine.
func (c *Client) close() {
	c.once.Do(func() {
		c.state.Store(int32(stateClosed))
		close(c.done)
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.logger.Warn("Error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.logger.Warn("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs the read error at a level that matches its cause.
// Every read error ends the read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("Message exceeded maximum size", zap.Int64("max_bytes", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.logger.Info("Client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("Client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Warn("Unexpected WebSocket close", zap.Error(err))
	default:
		c.logger.Warn("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter.Allow() {
		return true
	}
	c.hub.metrics.frameDropped(dropRateLimited)
	c.logger.Warn("Rate limit exceeded; discarding message",
		zap.Int("burst", c.rateLimit.Burst),
		zap.Duration("interval", c.rateLimit.RefillInterval))
	return false
}

// processMessage hands a raw frame to the router. Decode failures are only
// logged; the sender never gets an error frame.
func (c *Client) processMessage(raw []byte) {
	if err := c.hub.router.Route(c, &c.identity, raw); err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.beginClose()
		c.hub.lifecycle.HandleClose(c, &c.identity)
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("Error closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.writeCloseMessage()
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("Error closing connection in writePump", zap.Error(err))
	}
}

// writeCloseMessage sends a close frame to the client
func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error writing close message", zap.Error(err))
	}
}

// writeTextMessage writes one frame per payload; clients parse every frame
// as a single JSON object.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.logger.Warn("Error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("Error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.logger.Warn("Error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("Error writing ping message", zap.Error(err))
		return false
	}
	return true
}
