package websocket

import "sync"

// Registry is the set of admitted connections of one transport.
//
// Admission and removal are the only mutations; the capacity check and the
// insert happen in one critical section so concurrent upgrades cannot
// overshoot the limit.
type Registry struct {
	mu       sync.Mutex
	max      int
	clients  map[string]*Client
	draining bool
	active   sync.WaitGroup
}

// NewRegistry returns a registry admitting at most max connections.
// A max <= 0 means unlimited.
func NewRegistry(max int) *Registry {
	return &Registry{
		max:     max,
		clients: make(map[string]*Client),
	}
}

// TryAdmit adds client unless the registry is full or draining.
func (r *Registry) TryAdmit(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return false
	}
	if r.max > 0 && len(r.clients) >= r.max {
		return false
	}
	r.clients[client.ID()] = client
	r.active.Add(1)
	return true
}

// Remove deletes client. Removing an unknown client is a no-op.
func (r *Registry) Remove(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID()]; !ok {
		return
	}
	delete(r.clients, client.ID())
	r.active.Done()
}

// Len returns the number of admitted connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Get returns the client with the given ID.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Snapshot returns the admitted connections at the time of the call.
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Drain stops admissions and returns the connections still registered.
func (r *Registry) Drain() []*Client {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()
	return r.Snapshot()
}

// Draining reports whether Drain has been called.
func (r *Registry) Draining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// Wait blocks until every admitted connection has been removed.
// Call it after Drain.
func (r *Registry) Wait() {
	r.active.Wait()
}
