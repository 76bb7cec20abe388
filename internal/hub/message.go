package hub

import "time"

// Message types for WebSocket communication
const (
	MessageTypeAtBat       = "at_bat"
	MessageTypeHighlight   = "highlight"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeError       = "error"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    string             `json:"type"`
	Payload SubscriptionFilter `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      string      `json:"type"`
	GameID    string      `json:"game_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SubscriptionFilter narrows what a client receives. Empty lists accept everything.
type SubscriptionFilter struct {
	Games []string `json:"games,omitempty"`
	Types []string `json:"types,omitempty"`
}

// Matches reports whether a message passes the filter
func (f SubscriptionFilter) Matches(msg ServerMessage) bool {
	if len(f.Games) > 0 && !contains(f.Games, msg.GameID) {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, msg.Type) {
		return false
	}
	return true
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	ClientID         string    `json:"client_id"`
	ConnectedAt      time.Time `json:"connected_at"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	BufferSize       int       `json:"buffer_size"`
	BufferUsed       int       `json:"buffer_used"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
