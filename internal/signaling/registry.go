package signaling

import "sync"

// Registry tracks currently-live connections by identifier. It is the single
// source of truth for "is this peer still connected"; nothing else caches
// client handles across events.
//
// The Hub is the only writer. Readers such as the /stats handler may query it
// from other goroutines.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register records a new live connection. It reports false if the identifier
// is already registered.
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.ID]; exists {
		return false
	}
	r.clients[c.ID] = c
	return true
}

// Unregister removes a connection. It reports false when the identifier was
// not live, which makes repeated disconnects no-ops for the caller.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; !exists {
		return false
	}
	delete(r.clients, id)
	return true
}

// IsLive reports whether id refers to a connected client.
func (r *Registry) IsLive(id string) bool {
	r.mu.RLock()
	_, ok := r.clients[id]
	r.mu.RUnlock()
	return ok
}

// Lookup returns the live client for id.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	return c, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Each calls fn for every live client. fn must not call back into the
// Registry's mutating methods.
func (r *Registry) Each(fn func(c *Client)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		fn(c)
	}
}
