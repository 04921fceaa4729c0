package server_test

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

// startHub runs a hub behind an httptest server and stops both when the
// test ends.
func startHub(t *testing.T, cfg *server.Config) (*server.Hub, *httptest.Server) {
	t.Helper()
	hub := server.NewHub(cfg, zaptest.NewLogger(t))
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub, ts
}

func TestNewHub(t *testing.T) {
	hub := server.NewHub(nil, nil)

	require.NotNil(t, hub)
	assert.NotNil(t, hub.GetRegisterChan())
	assert.NotNil(t, hub.GetUnregisterChan())
	assert.NotNil(t, hub.Registry())
	assert.Equal(t, ":8080", hub.Config().Port)

	rooms, clients, members := hub.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, clients)
	assert.Zero(t, members)
}

func TestHubIgnoresNilRegistration(t *testing.T) {
	hub := server.NewHub(nil, zaptest.NewLogger(t))
	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	select {
	case hub.GetRegisterChan() <- nil:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept registration")
	}

	_, clients, _ := hub.Stats()
	assert.Zero(t, clients)
}

func TestHubShutdownContext(t *testing.T) {
	hub := server.NewHub(nil, zaptest.NewLogger(t))

	hubStopped := make(chan struct{})
	go func() {
		hub.Run()
		close(hubStopped)
	}()

	require.NoError(t, hub.Shutdown(2*time.Second))

	select {
	case <-hubStopped:
	case <-time.After(3 * time.Second):
		t.Error("Hub did not stop after shutdown")
	}
}

func TestHubShutdownWithoutRunTimesOut(t *testing.T) {
	hub := server.NewHub(nil, nil)

	start := time.Now()
	err := hub.Shutdown(50 * time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, ts := startHub(t, nil)
	url := testhelpers.WebSocketURL(ts, "/ws")

	a := testhelpers.MustConnect(t, url)
	b := testhelpers.MustConnect(t, url)
	require.NoError(t, testhelpers.SendJoin(a, "lobby", "alice"))
	require.NoError(t, testhelpers.SendJoin(b, "lobby", "bob"))
	testhelpers.WaitFor(t, time.Second, func() bool {
		_, _, members := hub.Stats()
		return members == 2
	})

	require.NoError(t, hub.Shutdown(2*time.Second))

	_, clients, members := hub.Stats()
	assert.Zero(t, clients)
	assert.Zero(t, members)

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Errorf("connection was not closed by shutdown: %v", err)
		}
	}
}
