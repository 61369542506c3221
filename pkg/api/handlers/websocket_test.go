package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/logger"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testEvent(t framebus.EventType, tick uint64) *framebus.Event {
	return &framebus.Event{
		Type:         t,
		Intersection: "main",
		Session:      "s-1",
		Tick:         tick,
		Lifecycle:    intersection.Running,
		Round:        intersection.RoundFair,
		Frame: intersection.Frame{
			{Road: "Road 1", Color: intersection.Green, Remaining: 3},
			{Road: "Road 2", Color: intersection.Red},
		},
		Timestamp: time.Now().UTC(),
	}
}

func dialStream(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestWebSocketHandler_RejectsNonUpgrade(t *testing.T) {
	h := NewWebSocketHandler(framebus.NewLocalBus(4, nil), logger.Nop(), WebSocketConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/frames", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketHandler_StreamsBusEvents(t *testing.T) {
	bus := framebus.NewLocalBus(16, nil)
	defer bus.Close()
	h := NewWebSocketHandler(bus, logger.Nop(), WebSocketConfig{})
	defer h.Close()

	conn := dialStream(t, h)
	require.NoError(t, bus.Publish(context.Background(), testEvent(framebus.EventFrame, 7)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string         `json:"type"`
		Payload framebus.Event `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, uint64(7), msg.Payload.Tick)
	require.Len(t, msg.Payload.Frame, 2)
	assert.Equal(t, intersection.Green, msg.Payload.Frame[0].Color)
}

func TestWebSocketHandler_SubscribeFiltersEventTypes(t *testing.T) {
	bus := framebus.NewLocalBus(16, nil)
	defer bus.Close()
	h := NewWebSocketHandler(bus, logger.Nop(), WebSocketConfig{})
	defer h.Close()

	conn := dialStream(t, h)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "events": []string{"lifecycle"}}))

	require.Eventually(t, func() bool {
		h.manager.mu.RLock()
		defer h.manager.mu.RUnlock()
		for c := range h.manager.clients {
			return !c.wants(framebus.EventFrame)
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), testEvent(framebus.EventFrame, 1)))
	require.NoError(t, bus.Publish(context.Background(), testEvent(framebus.EventLifecycle, 2)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "lifecycle", msg.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "unsubscribe"}))
	require.Eventually(t, func() bool {
		h.manager.mu.RLock()
		defer h.manager.mu.RUnlock()
		for c := range h.manager.clients {
			return c.wants(framebus.EventFrame)
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_ConnectionLimit(t *testing.T) {
	bus := framebus.NewLocalBus(4, nil)
	defer bus.Close()
	h := NewWebSocketHandler(bus, logger.Nop(), WebSocketConfig{MaxConnections: 1})
	defer h.Close()

	server := httptest.NewServer(h)
	defer server.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketHandler_DisconnectUnsubscribes(t *testing.T) {
	bus := framebus.NewLocalBus(4, nil)
	defer bus.Close()
	h := NewWebSocketHandler(bus, logger.Nop(), WebSocketConfig{})

	conn := dialStream(t, h)
	assert.Equal(t, 1, bus.Subscribers())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return h.Clients() == 0 && bus.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_BusCloseDisconnects(t *testing.T) {
	bus := framebus.NewLocalBus(4, nil)
	h := NewWebSocketHandler(bus, logger.Nop(), WebSocketConfig{})

	conn := dialStream(t, h)
	require.NoError(t, bus.Close())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIsWebSocketOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://signals.local/ws/frames", nil)

	assert.True(t, isWebSocketOriginAllowed(req, nil), "no origin header")

	req.Header.Set("Origin", "http://signals.local")
	assert.True(t, isWebSocketOriginAllowed(req, nil), "same host")

	req.Header.Set("Origin", "https://ops.example.com")
	assert.False(t, isWebSocketOriginAllowed(req, nil))
	assert.True(t, isWebSocketOriginAllowed(req, []string{"https://ops.example.com"}))
	assert.True(t, isWebSocketOriginAllowed(req, []string{"*"}))
}
