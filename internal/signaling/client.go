package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shobhitrajxyz/anonymate-app/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for WebRTC SDP messages
)

// UnknownCountry is reported for a client whose location has not resolved.
const UnknownCountry = "Unknown"

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateQueued
	StatePaired
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateQueued:
		return "queued"
	case StatePaired:
		return "paired"
	case StateDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// Client is a wrapper for a single websocket connection (a peer)
type Client struct {
	// ID identifies the connection for its whole lifetime.
	ID string

	// Hub is a pointer to the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection. Nil for transport-less clients.
	Conn *websocket.Conn

	// RemoteAddr is the client IP used for geolocation.
	RemoteAddr string

	// Send is a buffered channel for all outbound messages.
	// We write to this channel, and a separate goroutine (WritePump)
	// reads from it and writes to the websocket.
	Send chan *Message

	// state is written only by the Hub goroutine.
	state atomic.Int32

	limiter *rate.Limiter

	mu      sync.RWMutex
	country string

	// cancelGeo aborts a pending location lookup.
	cancelGeo context.CancelFunc

	sendOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a client for conn using the hub's buffer and rate settings.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		ID:         uuid.NewString(),
		Hub:        hub,
		Conn:       conn,
		RemoteAddr: remoteAddr,
		Send:       make(chan *Message, hub.sendBuffer),
		limiter:    rate.NewLimiter(hub.signalRate, hub.signalBurst),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Country returns the resolved country, or UnknownCountry.
func (c *Client) Country() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.country == "" {
		return UnknownCountry
	}
	return c.country
}

func (c *Client) setCountry(country string) {
	c.mu.Lock()
	c.country = country
	c.mu.Unlock()
}

// closeSend stops the write pump. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.Send)
	})
}

// closeTransport closes the underlying connection, which ends ReadPump and
// routes the client through the normal disconnect path.
func (c *Client) closeTransport() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	logger := c.Hub.logger.With("client_id", c.ID)

	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.Hub.Disconnect(c)
		c.closeTransport()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("read failed", "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Hub.metrics.Inc(metrics.MalformedFrames)
			logger.Debug("skipping undecodable frame", "err", err, "bytes", len(data))
			continue
		}

		if !c.limiter.Allow() {
			c.Hub.metrics.Inc(metrics.RateLimited)
			logger.Debug("rate limited", "type", msg.Type)
			continue
		}

		// Attach the client pointer to the message
		msg.client = c

		if !c.Hub.Submit(&msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	// When this function exits, stop the ticker and close the connection
	defer func() {
		ticker.Stop()
		c.closeTransport()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Debug("write failed", "client_id", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
