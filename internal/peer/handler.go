package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shobhitrajxyz/anonymate-app/internal/signaling"
)

// Handler routes incoming broker messages to typed channels.
type Handler struct {
	client *Client

	Connected  chan string
	UserCount  chan int
	MatchFound chan *Match
	Signal     chan *Signal
	PeerLeft   chan string

	// done is closed when the server connection ends.
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		Connected:  make(chan string, 1),
		UserCount:  make(chan int, 1),
		MatchFound: make(chan *Match, 1),
		Signal:     make(chan *Signal, 32),
		PeerLeft:   make(chan string, 1),
		done:       make(chan struct{}),
	}
}

// Done is closed once the server connection has ended.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection closes.
func (h *Handler) Start() {
	defer h.closeOnce.Do(func() { close(h.done) })

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case signaling.MessageTypeConnected:
			h.handleConnected(msg)

		case signaling.MessageTypeUserCount:
			h.handleUserCount(msg)

		case signaling.MessageTypeMatchFound:
			h.handleMatchFound(msg)

		case signaling.MessageTypeSignal:
			h.handleSignal(msg)

		case signaling.MessageTypePeerLeft:
			tryPush(h.PeerLeft, msg.RoomID)

		default:
			slog.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (h *Handler) handleConnected(msg *signaling.Message) {
	var p signaling.ConnectedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Debug("bad connected payload", "err", err)
		return
	}
	tryPush(h.Connected, p.ID)
}

// handleUserCount keeps only the newest count when the reader lags.
func (h *Handler) handleUserCount(msg *signaling.Message) {
	var p signaling.UserCountPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Debug("bad user_count payload", "err", err)
		return
	}

	select {
	case <-h.UserCount:
	default:
	}
	select {
	case h.UserCount <- p.Count:
	default:
	}
}

func (h *Handler) handleMatchFound(msg *signaling.Message) {
	var p signaling.MatchFoundPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Debug("bad match_found payload", "err", err)
		return
	}

	tryPush(h.MatchFound, &Match{
		RoomID:         msg.RoomID,
		Initiator:      p.Initiator,
		PartnerID:      p.PartnerID,
		PartnerCountry: p.PartnerCountry,
	})
}

func (h *Handler) handleSignal(msg *signaling.Message) {
	var p SignalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Debug("bad signal payload", "from", msg.From, "err", err)
		return
	}

	h.Signal <- &Signal{RoomID: msg.RoomID, From: msg.From, Payload: p}
}

// tryPush delivers v unless the buffer is full, in which case it is dropped.
func tryPush[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		slog.Debug("handler channel full, dropping event")
	}
}
