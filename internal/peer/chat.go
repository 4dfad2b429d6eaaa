package peer

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel message types.
const (
	ChatTypeText = "text"
	ChatTypeBye  = "bye"
)

// ChatEnvelope wraps every data channel message.
type ChatEnvelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// ChatText is a line typed by a user.
type ChatText struct {
	Body   string `msgpack:"body"`
	SentAt int64  `msgpack:"sentAt"`
}

// ChatEvent is a decoded data channel message.
type ChatEvent struct {
	Type string
	Text ChatText
}

// EncodeText builds a text message sent at the given time.
func EncodeText(body string, at time.Time) ([]byte, error) {
	payload, err := msgpack.Marshal(ChatText{Body: body, SentAt: at.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}
	return msgpack.Marshal(ChatEnvelope{Type: ChatTypeText, Payload: payload})
}

// EncodeBye builds the message announcing that the sender is leaving.
func EncodeBye() ([]byte, error) {
	return msgpack.Marshal(ChatEnvelope{Type: ChatTypeBye})
}

// DecodeChat parses a data channel message.
func DecodeChat(data []byte) (ChatEvent, error) {
	var env ChatEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return ChatEvent{}, fmt.Errorf("decode envelope: %w", err)
	}

	ev := ChatEvent{Type: env.Type}
	switch env.Type {
	case ChatTypeText:
		if err := msgpack.Unmarshal(env.Payload, &ev.Text); err != nil {
			return ChatEvent{}, fmt.Errorf("decode text: %w", err)
		}
	case ChatTypeBye:
	default:
		return ChatEvent{}, WrapError("decode chat", ErrUnexpectedSignal, env.Type)
	}
	return ev, nil
}
