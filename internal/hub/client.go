package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client is one WebSocket subscriber
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan ServerMessage
	closed chan struct{}
	once   sync.Once
	hub    *Hub
	logger *slog.Logger

	filterMu sync.RWMutex
	filter   SubscriptionFilter

	mu               sync.Mutex
	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
}

func newClient(id string, conn *websocket.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		send:        make(chan ServerMessage, sendBufferSize),
		closed:      make(chan struct{}),
		hub:         h,
		logger:      h.logger.With("client_id", id),
		connectedAt: time.Now(),
	}
}

// readPump reads subscription changes until the connection drops
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", "error", err)
			}
			return
		}

		c.mu.Lock()
		c.messagesReceived++
		c.mu.Unlock()

		c.handleClientMessage(msg)
	}
}

// writePump drains the send buffer to the connection and keeps it alive with pings
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("write failed", "error", err)
				return
			}

			c.mu.Lock()
			c.messagesSent++
			c.mu.Unlock()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tells writePump to hang up. The send channel is never closed so
// readPump can still queue replies without racing the hub.
func (c *Client) close() {
	c.once.Do(func() { close(c.closed) })
}

// trySend queues a message without blocking. False means the client is too slow.
func (c *Client) trySend(msg ServerMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SetFilter replaces the subscription filter
func (c *Client) SetFilter(filter SubscriptionFilter) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = filter
}

// Accepts reports whether msg passes the client's filter
func (c *Client) Accepts(msg ServerMessage) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter.Matches(msg)
}

// Stats returns connection statistics
func (c *Client) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ConnectionStats{
		ClientID:         c.ID,
		ConnectedAt:      c.connectedAt,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
		BufferSize:       sendBufferSize,
		BufferUsed:       len(c.send),
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.SetFilter(msg.Payload)
		c.logger.Info("client subscribed", "games", msg.Payload.Games, "types", msg.Payload.Types)
	case MessageTypeUnsubscribe:
		c.SetFilter(SubscriptionFilter{})
		c.logger.Info("client unsubscribed")
	case MessageTypeHeartbeat:
		c.trySend(ServerMessage{Type: MessageTypeHeartbeat, Payload: c.Stats(), Timestamp: time.Now()})
	default:
		c.trySend(ServerMessage{
			Type:      MessageTypeError,
			Payload:   ErrorMessage{Code: "unknown_message_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)},
			Timestamp: time.Now(),
		})
	}
}
