package signaling

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// outbox records deliveries per client id.
type outbox map[string][]*Message

func (o outbox) deliver(c *Client, msg *Message) bool {
	o[c.ID] = append(o[c.ID], msg)
	return true
}

func bareClient(id string) *Client {
	return &Client{ID: id, Send: make(chan *Message, 8)}
}

func newTestRelay(t *testing.T, ids ...string) (*Relay, *Registry, outbox, *metrics.Metrics) {
	t.Helper()

	reg := NewRegistry()
	for _, id := range ids {
		require.True(t, reg.Register(bareClient(id)))
	}
	box := outbox{}
	m := metrics.New()
	return NewRelay(reg, box.deliver, testLogger(), m), reg, box, m
}

func decodeMatch(t *testing.T, msg *Message) MatchFoundPayload {
	t.Helper()
	require.Equal(t, MessageTypeMatchFound, msg.Type)

	var p MatchFoundPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func TestRelay_OpenRoom(t *testing.T) {
	relay, reg, box, m := newTestRelay(t, "a", "b")
	a, _ := reg.Lookup("a")
	a.setCountry("France")

	roomID, ok := relay.OpenRoom("b", "a")
	require.True(t, ok)
	assert.Equal(t, "b#a", roomID)

	require.Len(t, box["b"], 1)
	toInitiator := decodeMatch(t, box["b"][0])
	assert.True(t, toInitiator.Initiator)
	assert.Equal(t, "a", toInitiator.PartnerID)
	assert.Equal(t, "France", toInitiator.PartnerCountry)
	assert.Equal(t, roomID, box["b"][0].RoomID)

	require.Len(t, box["a"], 1)
	toPartner := decodeMatch(t, box["a"][0])
	assert.False(t, toPartner.Initiator)
	assert.Equal(t, "b", toPartner.PartnerID)
	assert.Equal(t, UnknownCountry, toPartner.PartnerCountry)

	assert.Equal(t, 1, relay.Len())
	assert.Equal(t, uint64(1), m.Get(metrics.Matches))
}

func TestRelay_OpenRoomRefusals(t *testing.T) {
	t.Run("member not live", func(t *testing.T) {
		relay, _, box, _ := newTestRelay(t, "a")

		_, ok := relay.OpenRoom("a", "ghost")

		assert.False(t, ok)
		assert.Empty(t, box)
		assert.Zero(t, relay.Len())
	})

	t.Run("member already paired", func(t *testing.T) {
		relay, _, _, _ := newTestRelay(t, "a", "b", "c")
		_, ok := relay.OpenRoom("a", "b")
		require.True(t, ok)

		_, ok = relay.OpenRoom("c", "b")

		assert.False(t, ok)
		assert.Equal(t, 1, relay.Len())
	})
}

func TestRelay_Relay(t *testing.T) {
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1"}`)

	t.Run("forwards verbatim to the other member only", func(t *testing.T) {
		relay, _, box, m := newTestRelay(t, "a", "b")
		roomID, _ := relay.OpenRoom("a", "b")
		delete(box, "a")
		delete(box, "b")

		require.True(t, relay.Relay("a", roomID, payload))

		assert.Empty(t, box["a"])
		require.Len(t, box["b"], 1)
		got := box["b"][0]
		assert.Equal(t, MessageTypeSignal, got.Type)
		assert.Equal(t, "a", got.From)
		assert.Equal(t, roomID, got.RoomID)
		assert.Equal(t, []byte(payload), []byte(got.Payload))
		assert.Equal(t, uint64(1), m.Get(metrics.SignalsRelayed))
	})

	tests := []struct {
		name   string
		sender string
		room   func(roomID string) string
	}{
		{name: "unknown room", sender: "a", room: func(string) string { return "nope#nope" }},
		{name: "non-member sender", sender: "c", room: func(id string) string { return id }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, _, box, m := newTestRelay(t, "a", "b", "c")
			roomID, _ := relay.OpenRoom("a", "b")
			delete(box, "a")
			delete(box, "b")

			assert.False(t, relay.Relay(tt.sender, tt.room(roomID), payload))
			assert.Empty(t, box)
			assert.Equal(t, uint64(1), m.Get(metrics.SignalsDropped))
		})
	}

	t.Run("recipient gone", func(t *testing.T) {
		relay, reg, box, _ := newTestRelay(t, "a", "b")
		roomID, _ := relay.OpenRoom("a", "b")
		delete(box, "b")
		reg.Unregister("b")

		assert.False(t, relay.Relay("a", roomID, payload))
		assert.Empty(t, box["b"])
	})
}

func TestRelay_Close(t *testing.T) {
	relay, _, _, _ := newTestRelay(t, "a", "b")
	roomID, _ := relay.OpenRoom("a", "b")

	room, ok := relay.Close("b")
	require.True(t, ok)
	assert.Equal(t, roomID, room.ID)
	other, _ := room.Other("b")
	assert.Equal(t, "a", other)

	_, ok = relay.RoomOf("a")
	assert.False(t, ok)
	_, ok = relay.Close("a")
	assert.False(t, ok)
	assert.False(t, relay.Relay("a", roomID, json.RawMessage(`{}`)))
}

func TestPresence_BroadcastCount(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		reg.Register(bareClient(id))
	}
	box := outbox{}
	p := NewPresence(reg, box.deliver, testLogger())

	assert.Equal(t, 3, p.BroadcastCount())

	for _, id := range []string{"a", "b", "c"} {
		require.Len(t, box[id], 1)
		var count UserCountPayload
		require.NoError(t, json.Unmarshal(box[id][0].Payload, &count))
		assert.Equal(t, 3, count.Count)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := bareClient("a")

	assert.True(t, reg.Register(a))
	assert.False(t, reg.Register(bareClient("a")))
	assert.True(t, reg.IsLive("a"))
	got, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, reg.Unregister("a"))
	assert.False(t, reg.Unregister("a"))
	assert.False(t, reg.IsLive("a"))
	assert.Zero(t, reg.Count())
}
