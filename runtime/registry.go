package runtime

import (
	"chat-presence/contract"
	"chat-presence/domain"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Registry holds every live connection, grouped by user.
// A user with at least one connection is online; the entry is dropped with the last one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]map[string]contract.Conn // user -> conn ID -> conn
	lastSeen map[domain.UserID]time.Time
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]map[string]contract.Conn),
		lastSeen: make(map[domain.UserID]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a connection to the user's set.
// Registering the same connection twice is a no-op.
// Returns true when the user was offline before this call.
func (r *Registry) Register(user domain.UserID, conn contract.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[user]
	if !ok {
		conns = make(map[string]contract.Conn)
		r.sessions[user] = conns
	}
	conns[conn.ID()] = conn
	return !ok
}

// Unregister removes a connection from the user's set.
// When the set becomes empty, the user entry is removed and last-seen recorded.
// Unknown users or connections are ignored.
// Returns true when this call took the user offline.
func (r *Registry) Unregister(user domain.UserID, conn contract.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.sessions[user]
	if !ok {
		return false
	}
	if _, exists := conns[conn.ID()]; !exists {
		return false
	}
	delete(conns, conn.ID())

	if len(conns) == 0 {
		delete(r.sessions, user)
		r.lastSeen[user] = r.now()
		return true
	}
	return false
}

func (r *Registry) IsOnline(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[user]
	return ok
}

// ConnectionsOf returns a snapshot of the user's connections, never nil.
func (r *Registry) ConnectionsOf(user domain.UserID) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.sessions[user]
	if !ok {
		return []contract.Conn{}
	}
	return lo.Values(conns)
}

// LastSeen returns when the user's last connection was closed.
// False if the user never went offline while this process was running.
func (r *Registry) LastSeen(user domain.UserID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.lastSeen[user]
	return at, ok
}

// Stats reports how many users are online and how many connections they hold.
func (r *Registry) Stats() (users int, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conns := range r.sessions {
		connections += len(conns)
	}
	return len(r.sessions), connections
}
