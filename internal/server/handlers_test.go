package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

func TestWebSocketHandlerMethodValidation(t *testing.T) {
	hub := server.NewHub(nil, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/ws", nil)
			w := httptest.NewRecorder()

			server.WebSocketHandler(hub)(w, req)

			resp := w.Result()
			defer func() { _ = resp.Body.Close() }()

			testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
			assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
			assert.Equal(t, "Method not allowed. WebSocket endpoint only accepts GET requests.", strings.TrimSpace(w.Body.String()))
		})
	}
}

func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	hub := server.NewHub(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	server.WebSocketHandler(hub)(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRootServesHealthText(t *testing.T) {
	hub := server.NewHub(nil, nil)
	mux := server.SetupRoutes(hub)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/", http.NoBody)
			rr := httptest.NewRecorder()

			mux.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			assert.Equal(t, "GoChat server is running!", rr.Body.String())
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	hub := server.NewHub(nil, nil)
	rr := httptest.NewRecorder()

	server.SetupRoutes(hub).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	hub, ts := startHub(t, nil)
	url := testhelpers.WebSocketURL(ts, "/ws")

	a := testhelpers.MustConnect(t, url)
	b := testhelpers.MustConnect(t, url)
	testhelpers.MustConnect(t, url)
	joinAndWait(t, hub, a, "lobby", "alice", 1)
	joinAndWait(t, hub, b, "kitchen", "bob", 1)
	testhelpers.WaitFor(t, time.Second, func() bool {
		_, clients, _ := hub.Stats()
		return clients == 3
	})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var stats map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, map[string]int{"rooms": 2, "clients": 3, "members": 2}, stats)
}

func TestMetricsEndpoint(t *testing.T) {
	hub, ts := startHub(t, nil)
	conn := testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts, "/ws"))
	joinAndWait(t, hub, conn, "lobby", "alice", 1)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Contains(t, string(body), "chat_connections 1")
	assert.Contains(t, string(body), "chat_rooms 1")
	assert.Contains(t, string(body), `chat_frames_total{type="join"} 1`)
}

func TestDisallowedOriginRejected(t *testing.T) {
	_, ts := startHub(t, nil)
	url := testhelpers.WebSocketURL(ts, "/ws")

	for _, origin := range []string{"http://evil.example", ""} {
		conn, err := testhelpers.ConnectWebSocketWithOrigin(url, origin)
		if conn != nil {
			_ = conn.Close()
		}
		assert.ErrorIs(t, err, websocket.ErrBadHandshake, "origin %q", origin)
	}
}

func TestWildcardOriginAccepted(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	_, ts := startHub(t, cfg)

	conn, err := testhelpers.ConnectWebSocketWithOrigin(testhelpers.WebSocketURL(ts, "/ws"), "http://anywhere.example")
	require.NoError(t, err)
	_ = conn.Close()
}

func TestCreateServer(t *testing.T) {
	mux := server.SetupRoutes(server.NewHub(nil, nil))

	srv := server.CreateServer(":8080", mux)

	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, mux, srv.Handler)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
}
