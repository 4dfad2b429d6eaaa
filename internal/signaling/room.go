package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

// Room represents a matched pair of peers.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Initiator is the peer whose join request confirmed the match.
	Initiator string

	// Partner is the peer that was waiting in the queue.
	Partner string

	OpenedAt time.Time
}

// Has reports whether id is a member of the room.
func (r *Room) Has(id string) bool {
	return id == r.Initiator || id == r.Partner
}

// Other returns the member that is not id.
func (r *Room) Other(id string) (string, bool) {
	switch id {
	case r.Initiator:
		return r.Partner, true
	case r.Partner:
		return r.Initiator, true
	default:
		return "", false
	}
}

// deliverFunc queues msg for c without blocking.
type deliverFunc func(c *Client, msg *Message) bool

// Relay binds matched peers into rooms and forwards signaling payloads
// between the two members of a room. Like Queue it is owned by the Hub's
// event loop.
type Relay struct {
	registry *Registry
	deliver  deliverFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// rooms maps room IDs to open rooms.
	rooms map[string]*Room

	// members maps a peer ID to the room it belongs to.
	members map[string]string
}

// NewRelay creates a Relay that resolves peers through registry.
func NewRelay(registry *Registry, deliver deliverFunc, logger *slog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		registry: registry,
		deliver:  deliver,
		logger:   logger,
		metrics:  m,
		rooms:    make(map[string]*Room),
		members:  make(map[string]string),
	}
}

// OpenRoom binds initiatorID and partnerID into a room and sends each of them
// a match_found event describing the other. It fails if either peer is gone
// or already in a room.
func (r *Relay) OpenRoom(initiatorID, partnerID string) (string, bool) {
	initiator, ok := r.registry.Lookup(initiatorID)
	if !ok {
		return "", false
	}
	partner, ok := r.registry.Lookup(partnerID)
	if !ok {
		return "", false
	}

	if _, busy := r.members[initiatorID]; busy {
		r.logger.Error("refusing to open room: peer already paired", "client_id", initiatorID)
		return "", false
	}
	if _, busy := r.members[partnerID]; busy {
		r.logger.Error("refusing to open room: peer already paired", "client_id", partnerID)
		return "", false
	}

	room := &Room{
		ID:        RoomID(initiatorID, partnerID),
		Initiator: initiatorID,
		Partner:   partnerID,
		OpenedAt:  time.Now(),
	}
	r.rooms[room.ID] = room
	r.members[initiatorID] = room.ID
	r.members[partnerID] = room.ID

	// Country is snapshotted now; later resolution is not pushed to the partner.
	initiatorCountry := initiator.Country()
	partnerCountry := partner.Country()

	r.deliver(initiator, newMessage(MessageTypeMatchFound, room.ID, MatchFoundPayload{
		Initiator:      true,
		PartnerID:      partnerID,
		PartnerCountry: partnerCountry,
	}))
	r.deliver(partner, newMessage(MessageTypeMatchFound, room.ID, MatchFoundPayload{
		Initiator:      false,
		PartnerID:      initiatorID,
		PartnerCountry: initiatorCountry,
	}))

	r.metrics.Inc(metrics.Matches)
	r.logger.Info("matched",
		"room_id", room.ID,
		"initiator", initiatorID,
		"initiator_country", initiatorCountry,
		"partner", partnerID,
		"partner_country", partnerCountry)

	return room.ID, true
}

// Relay forwards payload verbatim to the member of roomID that is not
// senderID. Signals for unknown rooms, from non-members, or towards a peer
// that has gone are dropped without error.
func (r *Relay) Relay(senderID, roomID string, payload json.RawMessage) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return r.drop("unknown room", senderID, roomID)
	}

	targetID, ok := room.Other(senderID)
	if !ok {
		return r.drop("sender not in room", senderID, roomID)
	}

	target, ok := r.registry.Lookup(targetID)
	if !ok {
		return r.drop("recipient gone", senderID, roomID)
	}

	if !r.deliver(target, &Message{
		Type:    MessageTypeSignal,
		RoomID:  roomID,
		From:    senderID,
		Payload: payload,
	}) {
		return r.drop("recipient send buffer full", senderID, roomID)
	}

	r.metrics.Inc(metrics.SignalsRelayed)
	r.logger.Debug("relayed signal",
		"room_id", roomID,
		"from", senderID,
		"to", targetID,
		"bytes", len(payload))
	return true
}

// Close removes the room that memberID belongs to and returns it.
func (r *Relay) Close(memberID string) (*Room, bool) {
	roomID, ok := r.members[memberID]
	if !ok {
		return nil, false
	}
	room := r.rooms[roomID]

	delete(r.rooms, roomID)
	delete(r.members, room.Initiator)
	delete(r.members, room.Partner)

	r.logger.Info("room closed",
		"room_id", roomID,
		"by", memberID,
		"duration", time.Since(room.OpenedAt))

	return room, true
}

// RoomOf returns the room memberID belongs to.
func (r *Relay) RoomOf(memberID string) (*Room, bool) {
	roomID, ok := r.members[memberID]
	if !ok {
		return nil, false
	}
	return r.rooms[roomID], true
}

// Len returns the number of open rooms.
func (r *Relay) Len() int {
	return len(r.rooms)
}

func (r *Relay) drop(reason, senderID, roomID string) bool {
	r.metrics.Inc(metrics.SignalsDropped)
	r.logger.Debug("signal dropped",
		"reason", reason,
		"from", senderID,
		"room_id", roomID)
	return false
}
