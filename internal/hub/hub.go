package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub maintains the set of active clients and broadcasts replay output to them
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan ServerMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger

	totalConnections atomic.Int64
	totalMessages    atomic.Int64
	droppedMessages  atomic.Int64
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan ServerMessage, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

// ServeWS upgrades the request and attaches a new client. Pumps live until ctx ends
// or the peer disconnects.
func (h *Hub) ServeWS(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		c := newClient(uuid.New().String(), conn, h)
		if gameID := r.URL.Query().Get("game_id"); gameID != "" {
			c.SetFilter(SubscriptionFilter{Games: []string{gameID}})
		}

		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}

		go c.writePump(ctx)
		go c.readPump(ctx)
	}
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		h.logger.Info("client disconnected", "client_id", c.ID, "total", len(h.clients))
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.clients[c] = true
	h.totalConnections.Add(1)
	h.logger.Info("client connected", "client_id", c.ID, "total", len(h.clients))
}

// leave is called by a client's read pump; it must not block after Run returns
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues a message for every matching client. A full buffer drops it.
func (h *Hub) Broadcast(msg ServerMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.droppedMessages.Add(1)
		h.logger.Warn("broadcast buffer full, dropping message", "type", msg.Type, "game_id", msg.GameID)
	}
}

// PublishAtBat implements contracts.AtBatSink
func (h *Hub) PublishAtBat(ctx context.Context, delta *models.AtBatDelta) error {
	h.Broadcast(ServerMessage{
		Type:      MessageTypeAtBat,
		GameID:    delta.GameID,
		Payload:   delta,
		Timestamp: time.Now(),
	})
	return nil
}

// PublishHighlight implements contracts.HighlightSink
func (h *Hub) PublishHighlight(ctx context.Context, match *models.EventMatch) error {
	if !match.Found {
		return nil
	}
	h.Broadcast(ServerMessage{
		Type:      MessageTypeHighlight,
		GameID:    match.GameID,
		Payload:   match,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *Hub) broadcastMessage(msg ServerMessage) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	sent := 0
	for _, c := range clients {
		if !c.Accepts(msg) {
			continue
		}

		if c.trySend(msg) {
			sent++
			continue
		}

		// too slow: disconnect
		h.logger.Warn("client buffer full, disconnecting", "client_id", c.ID)
		h.droppedMessages.Add(1)
		h.unregisterClient(c)
	}

	if sent > 0 {
		h.totalMessages.Add(1)
	}
}

// Metrics returns hub metrics
func (h *Hub) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"active_clients":     h.ClientCount(),
		"total_connections":  h.totalConnections.Load(),
		"total_messages":     h.totalMessages.Load(),
		"dropped_messages":   h.droppedMessages.Load(),
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.logger.Info("shutting down hub", "active_clients", len(h.clients))
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
