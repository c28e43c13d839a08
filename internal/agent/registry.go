// ABOUTME: Tracks which agents currently hold a live socket to this server.
// ABOUTME: The dispatcher consults it to choose between push and queue delivery.

package agent

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNotConnected indicates the agent has no live socket right now.
var ErrNotConnected = errors.New("agent not connected")

// Registry coordinates all attached agent sockets. At most one connection
// is tracked per agent id; a reconnect supersedes the previous socket.
type Registry struct {
	conns  map[string]*Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

// Register installs a connection as the live socket for its agent. If the
// agent already had a socket (a reconnect racing its own dead predecessor),
// the old one is closed and the new one wins.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	prev := r.conns[conn.ID]
	r.conns[conn.ID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
		r.logger.Info("superseded stale agent socket",
			"agent_id", conn.ID,
			"old_remote", prev.RemoteAddr,
			"new_remote", conn.RemoteAddr,
		)
	}

	r.logger.Info("=== AGENT CONNECTED ===",
		"agent_id", conn.ID,
		"remote_addr", conn.RemoteAddr,
		"total_agents", total,
	)
}

// Unregister removes a connection, but only if it is still the live one for
// its agent. A stale socket's teardown must not evict the connection that
// superseded it.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	cur, ok := r.conns[conn.ID]
	if ok && cur == conn {
		delete(r.conns, conn.ID)
	} else {
		ok = false
	}
	total := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.logger.Info("=== AGENT DISCONNECTED ===",
			"agent_id", conn.ID,
			"remote_addr", conn.RemoteAddr,
			"total_agents", total,
		)
	}
}

// Get retrieves the live connection for an agent, if any.
func (r *Registry) Get(agentID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[agentID]
	return conn, ok
}

// IsConnected reports whether the agent holds a live socket right now.
func (r *Registry) IsConnected(agentID string) bool {
	_, ok := r.Get(agentID)
	return ok
}

// Send queues a frame on the agent's live socket. Returns ErrNotConnected
// when the agent is offline; other errors come from the connection itself.
func (r *Registry) Send(agentID string, v any) error {
	conn, ok := r.Get(agentID)
	if !ok {
		return ErrNotConnected
	}
	return conn.Send(v)
}

// ConnectedIDs returns the ids of all agents with a live socket.
func (r *Registry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll tears down every tracked socket. Used during server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
