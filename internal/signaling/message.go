package signaling

import (
	"encoding/json"
	"log/slog"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`

	// From is set by the server on relayed signals.
	From string `json:"from,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Message type constants.
const (
	MessageTypeJoinQueue = "join_queue"
	MessageTypeSignal    = "signal"

	MessageTypeConnected  = "connected"
	MessageTypeUserCount  = "user_count"
	MessageTypeMatchFound = "match_found"
	MessageTypePeerLeft   = "peer_left"
)

// ConnectedPayload tells a freshly connected client its own identifier.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// UserCountPayload carries the presence count.
type UserCountPayload struct {
	Count int `json:"count"`
}

// MatchFoundPayload is delivered to each member of a new room with
// recipient-specific values.
type MatchFoundPayload struct {
	Initiator      bool   `json:"initiator"`
	PartnerID      string `json:"partner_id"`
	PartnerCountry string `json:"partner_country"`
}

// newMessage builds an outbound message, encoding payload when non-nil.
func newMessage(msgType, roomID string, payload any) *Message {
	msg := &Message{Type: msgType, RoomID: roomID}
	if payload == nil {
		return msg
	}

	b, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs owned by this package.
		slog.Error("failed to encode payload", "type", msgType, "err", err)
		return msg
	}
	msg.Payload = b
	return msg
}
