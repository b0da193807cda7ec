package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix-server-go/internal/domain/eventbus"
	platformtesting "matrix-server-go/internal/platform/testing"
)

func startServer(t *testing.T) (*Hub, *Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := platformtesting.SetupTestLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger)
	srv := NewServer(ctx, ServerConfig{PingInterval: time.Second}, hub, logger)
	engine := gin.New()
	srv.Register(engine)

	httpSrv := httptest.NewServer(engine)
	t.Cleanup(httpSrv.Close)
	return hub, srv, "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/events"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsTransmissionEvents(t *testing.T) {
	hub, _, url := startServer(t)
	bus := eventbus.NewAsyncEventBus(1, 8, platformtesting.SetupTestLogger(t))
	bus.Start()
	t.Cleanup(bus.Stop)
	require.NoError(t, hub.Attach(bus))

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.PublishAsync(eventbus.EventTransmissionCompleted, eventbus.TransmissionEvent{
		ID:       "run-1",
		Mode:     eventbus.ModeURL,
		Endpoint: "http://device",
		Success:  true,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string                     `json:"type"`
		Event   string                     `json:"event"`
		Payload eventbus.TransmissionEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, eventbus.EventTransmissionCompleted, msg.Event)
	assert.Equal(t, "run-1", msg.Payload.ID)
	assert.True(t, msg.Payload.Success)
}

func TestHub_FansOutToEverySession(t *testing.T) {
	hub, _, url := startServer(t)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, hub.Broadcast("system:info", map[string]string{"hello": "world"}))

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(data), `"hello":"world"`)
	}
}

func TestServer_StopClosesSessions(t *testing.T) {
	hub, srv, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return srv.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Count())
}

func TestHub_UnregistersOnClientDisconnect(t *testing.T) {
	hub, _, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
