package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goclaw/intersection/pkg/framebus"
	"github.com/goclaw/intersection/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultMaxMessageSize   = 4096
	defaultSendBuffer       = 64
)

// ErrConnectionLimit is returned when the stream has no room for a client.
var ErrConnectionLimit = errors.New("websocket connection limit reached")

// WebSocketConfig configures the frame stream.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// EventMessage is the websocket message format.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// incomingMessage selects which event types a client receives, for
// example {"type":"subscribe","events":["lifecycle"]}.
type incomingMessage struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	events map[string]struct{}
	mu     sync.RWMutex
	once   sync.Once
}

func newWSClient(conn *websocket.Conn, buffer int) *wsClient {
	return &wsClient{
		id:     "ws-" + uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		events: make(map[string]struct{}),
	}
}

// close signals the pumps to stop. The write pump owns the connection and
// closes it on exit, after sending a close frame when it can.
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) subscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			c.events[e] = struct{}{}
		}
	}
}

func (c *wsClient) unsubscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(events) == 0 {
		clear(c.events)
		return
	}
	for _, e := range events {
		delete(c.events, strings.ToLower(strings.TrimSpace(e)))
	}
}

// wants reports whether the client receives events of type t. A client
// without subscriptions receives everything.
func (c *wsClient) wants(t framebus.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.events) == 0 {
		return true
	}
	_, ok := c.events[string(t)]
	return ok
}

// ConnectionManager tracks connected stream clients.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
	bus            framebus.Bus
}

// NewConnectionManager creates a manager for at most maxConnections clients.
func NewConnectionManager(bus framebus.Bus, maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
		bus:            bus,
	}
}

func (m *ConnectionManager) register(ctx context.Context, client *wsClient) (<-chan *framebus.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return nil, ErrConnectionLimit
	}
	events, err := m.bus.Subscribe(ctx, client.id)
	if err != nil {
		return nil, err
	}
	m.clients[client] = struct{}{}
	return events, nil
}

func (m *ConnectionManager) unregister(client *wsClient) {
	m.mu.Lock()
	_, ok := m.clients[client]
	delete(m.clients, client)
	m.mu.Unlock()

	client.close()
	if ok {
		_ = m.bus.Unsubscribe(client.id)
	}
}

// Count returns the number of connected clients.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether one more client fits.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Close disconnects every client.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.Unlock()

	for _, client := range clients {
		m.unregister(client)
	}
}

// WebSocketHandler streams frame bus events on /ws/frames.
type WebSocketHandler struct {
	log      logger.Logger
	manager  *ConnectionManager
	upgrader websocket.Upgrader
	cfg      WebSocketConfig
}

// NewWebSocketHandler creates a stream handler fed by bus.
func NewWebSocketHandler(bus framebus.Bus, log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if log == nil {
		log = logger.Nop()
	}

	h := &WebSocketHandler{
		log:     log,
		manager: NewConnectionManager(bus, cfg.MaxConnections),
		cfg:     cfg,
	}
	allowed := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowed)
		},
	}
	return h
}

// Clients returns the number of connected stream clients.
func (h *WebSocketHandler) Clients() int {
	return h.manager.Count()
}

// ServeHTTP upgrades the connection and streams events until either side
// closes it.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.manager.CanAccept() {
		http.Error(w, ErrConnectionLimit.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn, h.cfg.SendBuffer)
	events, err := h.manager.register(r.Context(), client)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrConnectionLimit) {
			code = websocket.CloseTryAgainLater
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}
	h.log.Debug("Frame stream client connected", "client", client.id)

	go h.forward(client, events)
	go h.writePump(client)
	h.readPump(client)
	h.log.Debug("Frame stream client disconnected", "client", client.id)
}

// forward moves bus events to the client queue. A client that cannot keep
// up is disconnected.
func (h *WebSocketHandler) forward(client *wsClient, events <-chan *framebus.Event) {
	defer h.manager.unregister(client)

	for {
		select {
		case <-client.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !client.wants(ev.Type) {
				continue
			}
			payload, err := json.Marshal(EventMessage{
				Type:      string(ev.Type),
				Timestamp: ev.Timestamp,
				Payload:   ev,
			})
			if err != nil {
				h.log.Warn("Failed to encode stream event", "error", err)
				continue
			}
			select {
			case client.send <- payload:
			default:
				h.log.Warn("Frame stream client too slow, disconnecting", "client", client.id)
				return
			}
		}
	}
}

func (h *WebSocketHandler) readPump(client *wsClient) {
	defer h.manager.unregister(client)

	readDeadline := h.cfg.PingInterval + h.cfg.PongTimeout
	client.conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "client", client.id, "error", err)
			}
			return
		}
		h.handleIncomingMessage(client, data)
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ping.Stop()
		h.manager.unregister(client)
		_ = client.conn.Close()
	}()

	for {
		select {
		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ping.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleIncomingMessage(client *wsClient, raw []byte) {
	var msg incomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		client.subscribe(msg.Events)
	case "unsubscribe":
		client.unsubscribe(msg.Events)
	}
}

// Close disconnects every stream client.
func (h *WebSocketHandler) Close() {
	h.manager.Close()
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
