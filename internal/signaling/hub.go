package signaling

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

// Resolver maps a client address to a human-readable country. It must not
// fail; unresolvable addresses yield a placeholder.
type Resolver interface {
	Resolve(ctx context.Context, addr string) string
}

// Options configures a Hub. Zero values take defaults.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Resolver Resolver

	GeoTimeout time.Duration

	// SignalRate and SignalBurst bound inbound frames per connection.
	SignalRate  float64
	SignalBurst int

	// SendBuffer is the capacity of each client's outbound queue.
	SendBuffer int
}

const (
	defaultGeoTimeout  = 3 * time.Second
	defaultSignalRate  = 50
	defaultSignalBurst = 100
	defaultSendBuffer  = 256
)

// Stats is a point-in-time view of the hub.
type Stats struct {
	Users  int `json:"users"`
	Queued int `json:"queued"`
	Rooms  int `json:"rooms"`
}

// Hub is the central brain of the signaling server.
// It owns the queue and the rooms and drives every connection through its
// lifecycle from a single goroutine.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries decoded client messages to the hub.
	Inbound chan *Message

	registry *Registry
	queue    *Queue
	relay    *Relay
	presence *Presence

	resolver   Resolver
	logger     *slog.Logger
	metrics    *metrics.Metrics
	geoTimeout time.Duration

	signalRate  rate.Limit
	signalBurst int
	sendBuffer  int

	// Mirrors of loop-owned state for readers on other goroutines.
	queued atomic.Int64
	rooms  atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub instance.
func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = defaultGeoTimeout
	}
	if opts.SignalRate <= 0 {
		opts.SignalRate = defaultSignalRate
	}
	if opts.SignalBurst <= 0 {
		opts.SignalBurst = defaultSignalBurst
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}

	h := &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Inbound:     make(chan *Message),
		registry:    NewRegistry(),
		resolver:    opts.Resolver,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		geoTimeout:  opts.GeoTimeout,
		signalRate:  rate.Limit(opts.SignalRate),
		signalBurst: opts.SignalBurst,
		sendBuffer:  opts.SendBuffer,
		done:        make(chan struct{}),
	}
	h.queue = NewQueue(h.registry)
	h.relay = NewRelay(h.registry, h.deliver, h.logger, h.metrics)
	h.presence = NewPresence(h.registry, h.deliver, h.logger)
	return h
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (queue, rooms,
// connection states). It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case message := <-h.Inbound:
			h.handleMessage(message)

		case <-h.done:
			h.shutdown()
			return
		}

		h.queued.Store(int64(h.queue.Len()))
		h.rooms.Store(int64(h.relay.Len()))
	}
}

// Stop ends the event loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Done is closed once Stop has been called.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connect hands c to the event loop. It reports false if the hub has stopped.
func (h *Hub) Connect(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Disconnect hands c to the event loop for teardown. Repeated calls are no-ops.
func (h *Hub) Disconnect(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Submit hands an inbound message to the event loop. It reports false if the
// hub has stopped.
func (h *Hub) Submit(msg *Message) bool {
	select {
	case h.Inbound <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Stats returns the current user, queue, and room counts.
func (h *Hub) Stats() Stats {
	return Stats{
		Users:  h.registry.Count(),
		Queued: int(h.queued.Load()),
		Rooms:  int(h.rooms.Load()),
	}
}

func (h *Hub) handleRegister(c *Client) {
	if !h.registry.Register(c) {
		h.logger.Error("rejecting client with duplicate id", "client_id", c.ID)
		c.closeTransport()
		return
	}
	c.setState(StateConnected)
	h.metrics.Inc(metrics.ConnectionsOpened)

	h.logger.Info("client connected", "client_id", c.ID, "remote_addr", c.RemoteAddr)

	h.deliver(c, newMessage(MessageTypeConnected, "", ConnectedPayload{ID: c.ID}))
	h.presence.BroadcastCount()
	h.startGeolocation(c)
}

// startGeolocation resolves the client's country in the background. Matching
// never waits for it.
func (h *Hub) startGeolocation(c *Client) {
	if h.resolver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.geoTimeout)
	c.cancelGeo = cancel

	go func() {
		defer cancel()
		country := h.resolver.Resolve(ctx, c.RemoteAddr)
		c.setCountry(country)
		h.logger.Debug("location resolved", "client_id", c.ID, "country", country)
	}()
}

func (h *Hub) handleUnregister(c *Client) {
	// Anything but the registered handle for this id is a repeat or a
	// rejected duplicate.
	if current, ok := h.registry.Lookup(c.ID); !ok || current != c {
		c.closeSend()
		return
	}

	h.registry.Unregister(c.ID)
	c.setState(StateDisconnected)
	if c.cancelGeo != nil {
		c.cancelGeo()
	}

	h.queue.Remove(c.ID)

	if room, ok := h.relay.Close(c.ID); ok {
		partnerID, _ := room.Other(c.ID)
		if partner, ok := h.registry.Lookup(partnerID); ok {
			partner.setState(StateConnected)
			h.deliver(partner, &Message{Type: MessageTypePeerLeft, RoomID: room.ID})
		}
	}

	c.closeSend()
	h.metrics.Inc(metrics.ConnectionsClosed)

	h.logger.Info("client disconnected", "client_id", c.ID, "remote_addr", c.RemoteAddr)

	h.presence.BroadcastCount()
}

func (h *Hub) handleMessage(msg *Message) {
	c := msg.client
	if c == nil || !h.registry.IsLive(c.ID) {
		return
	}

	switch msg.Type {
	case MessageTypeJoinQueue:
		h.handleJoinQueue(c)

	case MessageTypeSignal:
		if msg.RoomID == "" {
			h.metrics.Inc(metrics.SignalsDropped)
			h.logger.Debug("signal dropped", "reason", "missing room id", "from", c.ID)
			return
		}
		h.relay.Relay(c.ID, msg.RoomID, msg.Payload)

	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "client_id", c.ID)
	}
}

func (h *Hub) handleJoinQueue(c *Client) {
	if c.State() == StatePaired {
		h.logger.Debug("join ignored while paired", "client_id", c.ID)
		return
	}

	result := h.queue.EnqueueOrMatch(c.ID)
	switch {
	case result.Duplicate:
		h.logger.Debug("already queued", "client_id", c.ID)

	case result.Race:
		c.setState(StateQueued)
		h.metrics.Inc(metrics.MatchRaces)
		h.logger.Info("partner vanished before match, requeued",
			"client_id", c.ID,
			"queue_len", h.queue.Len())

	case !result.Matched:
		c.setState(StateQueued)
		h.logger.Debug("queued", "client_id", c.ID, "queue_len", h.queue.Len())

	default:
		if _, ok := h.relay.OpenRoom(c.ID, result.PartnerID); !ok {
			h.queue.Requeue(c.ID)
			c.setState(StateQueued)
			return
		}
		c.setState(StatePaired)
		if partner, ok := h.registry.Lookup(result.PartnerID); ok {
			partner.setState(StatePaired)
		}
	}
}

// deliver queues msg for c without blocking. A client whose buffer is full is
// a slow consumer: its transport is closed and it leaves through the normal
// disconnect path.
func (h *Hub) deliver(c *Client, msg *Message) bool {
	if c.State() == StateDisconnected {
		return false
	}

	select {
	case c.Send <- msg:
		return true
	default:
		h.metrics.Inc(metrics.SlowConsumers)
		h.logger.Warn("send buffer full, closing connection", "client_id", c.ID)
		c.closeTransport()
		return false
	}
}

func (h *Hub) shutdown() {
	h.registry.Each(func(c *Client) {
		c.closeTransport()
	})
	h.logger.Info("hub stopped", "clients", h.registry.Count())
}
