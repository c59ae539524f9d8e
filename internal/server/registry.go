package server

import (
	"sort"
	"sync"

	"namedchat/internal/transport"
)

// Entry is one registered client as returned by Snapshot.
type Entry struct {
	Name string
	Conn transport.Conn
}

// Registry maps client names to their connections.  It is the single source of
// truth for who is connected.
//
// Concurrency model
// -----------------
//   - Register and Unregister take the write lock, so no two sessions can ever
//     hold the same name.
//   - Lookup, Snapshot and Names take the read lock and may run in parallel.
//   - Snapshot copies the table; broadcast iterates the copy without holding
//     any lock, so a slow recipient never blocks registration.
//
// The Registry never closes or writes to a connection it holds.  Closing is
// the job of the session that registered it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]transport.Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]transport.Conn)}
}

// Register inserts name → c unless name is already present.  It reports
// whether the insert happened.
func (r *Registry) Register(name string, c transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.clients[name]; taken {
		return false
	}
	r.clients[name] = c
	return true
}

// Unregister removes name.  Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// Lookup returns the connection registered under name.
func (r *Registry) Lookup(name string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Snapshot returns a point-in-time copy of the table ordered by name.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.clients))
	for name, c := range r.clients {
		out = append(out, Entry{Name: name, Conn: c})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
