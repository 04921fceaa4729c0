// Package testhelpers provides common utilities for testing the chat relay
// over real WebSocket connections.
//
// It wraps dialing, sending join and chat envelopes, and reading relayed
// frames with deadlines so tests stay short and never hang.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultOrigin is an origin allowed by the default configuration.
const DefaultOrigin = "http://localhost:8080"

// Frame is a decoded outbound frame. Notices set IsSystemMessage; chat
// relays carry SenderID, which is nil when the sender supplied none.
type Frame struct {
	Message         string  `json:"message"`
	Username        string  `json:"username"`
	IsSystemMessage bool    `json:"isSystemMessage"`
	SenderID        *string `json:"senderId"`
}

// WebSocketURL converts an httptest server URL into a ws:// URL for path.
func WebSocketURL(s *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// ConnectWebSocket dials url with an allowed Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, DefaultOrigin)
}

// ConnectWebSocketWithOrigin dials url sending origin, or no Origin header
// when origin is empty.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and closes the connection when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendJoin sends a join envelope. An empty username is omitted.
func SendJoin(conn *websocket.Conn, roomID, username string) error {
	payload := map[string]string{"roomId": roomID}
	if username != "" {
		payload["username"] = username
	}
	return conn.WriteJSON(map[string]any{"type": "join", "payload": payload})
}

// SendChat sends a chat envelope. Empty username and senderID are omitted.
func SendChat(conn *websocket.Conn, roomID, message, username, senderID string) error {
	payload := map[string]string{"roomId": roomID, "message": message}
	if username != "" {
		payload["username"] = username
	}
	if senderID != "" {
		payload["senderId"] = senderID
	}
	return conn.WriteJSON(map[string]any{"type": "chat", "payload": payload})
}

// SendRawMessage sends a raw text frame.
func SendRawMessage(conn *websocket.Conn, data []byte) error {
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReadFrame reads and decodes the next frame, failing if none arrives
// within timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a frame within %v: %v", timeout, err)
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not valid JSON %q: %v", data, err)
	}
	return frame
}

// ReadRawFrame reads the next frame as a generic JSON object.
func ReadRawFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Expected a frame within %v: %v", timeout, err)
	}
	return frame
}

// ExpectNoFrame fails if a frame arrives within timeout. A read that times
// out leaves the connection unusable, so call it last on conn.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Errorf("Expected no frame, got %s", data)
	}
}

// WaitFor polls cond until it holds or timeout passes.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v", timeout)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
