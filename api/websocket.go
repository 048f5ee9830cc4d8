package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openboard/openboard/internal/config"
	"github.com/openboard/openboard/internal/slogging"
)

// Topic names. Draw events share one global topic with the room id carried
// in the payload; presence, chat and cursor events are room-scoped.
const TopicDraw = "draw"

// TopicRoomUsers is the presence topic for a room
func TopicRoomUsers(roomID string) string { return "room/" + roomID + "/users" }

// TopicRoomChat is the chat topic for a room
func TopicRoomChat(roomID string) string { return "room/" + roomID + "/chat" }

// TopicRoomCursor is the cursor topic for a room
func TopicRoomCursor(roomID string) string { return "room/" + roomID + "/cursor" }

// Hub is the broadcast router: it tracks connected clients and their topic
// subscriptions and fans out published payloads to every subscriber of a
// topic. Delivery is best-effort to currently subscribed connections only;
// durability for drawing operations comes from the sequenced operation log.
type Hub struct {
	cfg config.WebSocketConfig

	mu      sync.RWMutex
	clients map[*WebSocketClient]bool
	topics  map[string]map[*WebSocketClient]bool
}

// NewHub creates an empty hub
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		cfg:     cfg,
		clients: make(map[*WebSocketClient]bool),
		topics:  make(map[string]map[*WebSocketClient]bool),
	}
}

// RegisterClient adds a connection to the hub
func (h *Hub) RegisterClient(c *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	metricConnections.Inc()
}

// UnregisterClient removes a connection and all its subscriptions. The send
// channel is closed exactly once; the write pump exits when it drains.
func (h *Hub) UnregisterClient(c *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropClientLocked(c)
}

func (h *Hub) dropClientLocked(c *WebSocketClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for topic, subscribers := range h.topics {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	close(c.send)
	metricConnections.Dec()
}

// Subscribe attaches the connection to a topic
func (h *Hub) Subscribe(c *WebSocketClient, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	subscribers, ok := h.topics[topic]
	if !ok {
		subscribers = make(map[*WebSocketClient]bool)
		h.topics[topic] = subscribers
	}
	subscribers[c] = true
}

// Unsubscribe detaches the connection from a topic
func (h *Hub) Unsubscribe(c *WebSocketClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, ok := h.topics[topic]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish delivers a payload to every subscriber of the topic. Subscribers
// whose send buffer is full are dropped rather than allowed to stall the
// broadcast.
func (h *Hub) Publish(topic string, body any) {
	frame, err := MarshalMessageFrame(topic, body)
	if err != nil {
		slogging.Get().Error("Failed to marshal broadcast for topic %s: %v", topic, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[topic] {
		select {
		case c.send <- frame:
			metricBroadcasts.Inc()
		default:
			slogging.Get().Warn("Dropping slow websocket client %s on topic %s", c.ID, topic)
			h.dropClientLocked(c)
		}
	}
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of subscribers on a topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ConnSession is the per-connection identity cache. It is owned exclusively
// by the connection's frame-handling path, so no locking is needed: only the
// read pump mutates it, and only for the lifetime of the connection. The
// transition is one-way; a resolved identity is never cleared.
type ConnSession struct {
	// Attributes carries values stashed during the HTTP-upgrade handshake
	Attributes map[string]string
	// Username is the resolved identity; empty while unauthenticated
	Username string
	// Token is the cached credential reused across frames
	Token string
}

// Authenticated reports whether an identity has been resolved
func (s *ConnSession) Authenticated() bool {
	return s.Username != ""
}

// WebSocketClient represents one connected client
type WebSocketClient struct {
	// ID is the connection identifier
	ID string

	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	dispatcher *FrameDispatcher

	// Session is private to this connection's frame-handling path
	Session *ConnSession
}

// Send queues an outbound frame; it reports false if the buffer is full
func (c *WebSocketClient) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandlers owns the websocket endpoint
type WebSocketHandlers struct {
	hub           *Hub
	dispatcher    *FrameDispatcher
	authenticator *ConnectionAuthenticator
	cfg           config.WebSocketConfig
}

// NewWebSocketHandlers creates the websocket endpoint handler
func NewWebSocketHandlers(hub *Hub, dispatcher *FrameDispatcher, authenticator *ConnectionAuthenticator, cfg config.WebSocketConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		hub:           hub,
		dispatcher:    dispatcher,
		authenticator: authenticator,
		cfg:           cfg,
	}
}

// HandleWS upgrades the HTTP request and runs the connection. A handshake
// check peeks at the request's token before the channel exists; whatever it
// finds seeds the connection's session attributes, and the upgrade proceeds
// either way.
func (h *WebSocketHandlers) HandleWS(c *gin.Context) {
	attrs := h.authenticator.HandshakeCheck(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slogging.Get().Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		ID:         uuid.New().String(),
		hub:        h.hub,
		conn:       conn,
		send:       make(chan []byte, h.cfg.SendBufferSize),
		dispatcher: h.dispatcher,
		Session:    &ConnSession{Attributes: attrs},
	}

	h.hub.RegisterClient(client)

	go client.writePump(h.cfg)
	client.readPump(h.cfg)
}

// readPump pumps frames from the websocket into the dispatcher. It runs on
// the connection's goroutine; the session cache is only touched here.
func (c *WebSocketClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(cfg.ReadLimitBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slogging.Get().Warn("Websocket read error on %s: %v", c.ID, err)
			}
			return
		}

		if done := c.dispatcher.Dispatch(c, message); done {
			return
		}
	}
}

// writePump pumps frames from the send channel to the websocket and keeps
// the connection alive with pings.
func (c *WebSocketClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
