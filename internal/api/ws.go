package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spyglass-home/spyglass-core/internal/bridge"
	"github.com/spyglass-home/spyglass-core/internal/infrastructure/logging"
)

// Frame types on the websocket feed.
const (
	FrameState   = "state"
	FrameEvent   = "event"
	FrameTrigger = "trigger"
)

// Frame is one websocket message: a typed envelope around the same
// payloads the MQTT topics carry.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientBacklog  = 64
	maxInboundSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is same-deployment tooling, not a public browser surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans bridge traffic out to websocket subscribers. It implements
// bridge.EventSink; a subscriber that cannot keep up is dropped rather
// than allowed to stall the bridge.
type Hub struct {
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// StateChanged implements bridge.EventSink.
func (h *Hub) StateChanged(msg bridge.StateMessage) {
	h.broadcast(FrameState, msg)
}

// EventReceived implements bridge.EventSink.
func (h *Hub) EventReceived(msg bridge.EventMessage) {
	h.broadcast(FrameEvent, msg)
}

// TriggerFired implements bridge.EventSink.
func (h *Hub) TriggerFired(msg bridge.TriggerMessage) {
	h.broadcast(FrameTrigger, msg)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientBacklog)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) broadcast(frameType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("frame encoding failed", "type", frameType, "error", err)
		return
	}
	payload, err := json.Marshal(Frame{Type: frameType, Data: raw})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Subscriber backlog full; cut it loose.
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) detach(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// writePump drains the client's send queue and keeps the connection
// alive with pings. It owns all writes to the connection.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound traffic; the feed is one-way. Its real job
// is noticing the peer closing.
func (h *Hub) readPump(client *wsClient) {
	defer h.detach(client)

	client.conn.SetReadLimit(maxInboundSize)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
