package gateway

import "context"

// Message is one inbound chat event from the bridge.
type Message struct {
	Room   string `json:"room"`
	Msg    string `json:"msg"`
	Sender string `json:"sender,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// From returns the best available identity for the sender.
func (m *Message) From() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.Sender
}

// Config is the bridge's advertised runtime configuration.
type Config struct {
	Port        int    `json:"port"`
	MessageRate int    `json:"message_rate"`
	Endpoint    string `json:"endpoint"`
}

// ReplyRequest posts a reply into a room.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

// DirectRequest sends a private message to a single user.
type DirectRequest struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Data   string `json:"data"`
}

// LookupRequest resolves a handle (name#discriminator) to a platform id.
type LookupRequest struct {
	Query string `json:"query"`
}

type LookupResponse struct {
	UserID string `json:"user_id"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// Ingress is the inbound side of the bridge connection. Callbacks are set
// once, before Connect.
type Ingress interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback)
	OnStateChange(cb StateCallback)
	Close(ctx context.Context) error
}
