package signaling

import "log/slog"

// Presence publishes the live connection count to every connected client.
type Presence struct {
	registry *Registry
	deliver  deliverFunc
	logger   *slog.Logger
}

// NewPresence creates a Presence broadcaster backed by registry.
func NewPresence(registry *Registry, deliver deliverFunc, logger *slog.Logger) *Presence {
	return &Presence{
		registry: registry,
		deliver:  deliver,
		logger:   logger,
	}
}

// BroadcastCount sends the current count to all live clients and returns it.
func (p *Presence) BroadcastCount() int {
	count := p.registry.Count()
	msg := newMessage(MessageTypeUserCount, "", UserCountPayload{Count: count})

	p.registry.Each(func(c *Client) {
		p.deliver(c, msg)
	})

	p.logger.Debug("user count broadcast", "count", count)
	return count
}
