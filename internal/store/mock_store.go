// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/command"
)

// MockStore is an in-memory Store implementation for testing. It honors
// the same conditional-transition semantics as SQLiteStore.
type MockStore struct {
	mu       sync.RWMutex
	commands map[string]*Command       // keyed by command ID
	agents   map[string]*Agent         // keyed by agent ID
	keys     map[string]*EnrollmentKey // keyed by key ID
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		commands: make(map[string]*Command),
		agents:   make(map[string]*Agent),
		keys:     make(map[string]*EnrollmentKey),
	}
}

// CreateCommand stores a new command.
func (m *MockStore) CreateCommand(ctx context.Context, cmd *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.commands[cmd.ID]; ok {
		return ErrDuplicateCommand
	}

	// Make a copy to avoid external modification
	c := *cmd
	if c.Status == "" {
		c.Status = StatusPending
	}
	m.commands[c.ID] = &c
	return nil
}

// GetCommand retrieves a command by id.
func (m *MockStore) GetCommand(ctx context.Context, id string) (*Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cmd, ok := m.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cmd
	return &c, nil
}

// MarkSent conditionally moves pending -> sent.
func (m *MockStore) MarkSent(ctx context.Context, id, delivery string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[id]
	if !ok {
		return false, ErrNotFound
	}
	if cmd.Status != StatusPending {
		return false, nil
	}

	t := at.UTC()
	cmd.Status = StatusSent
	cmd.Delivery = delivery
	cmd.SentAt = &t
	return true, nil
}

// Complete conditionally applies a terminal transition.
func (m *MockStore) Complete(ctx context.Context, id string, status CommandStatus, res command.Result) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("complete requires a terminal status, got %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[id]
	if !ok {
		return false, ErrNotFound
	}
	if cmd.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	r := res
	cmd.Status = status
	cmd.Result = &r
	cmd.CompletedAt = &now
	return true, nil
}

// Cancel conditionally moves pending -> cancelled.
func (m *MockStore) Cancel(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd, ok := m.commands[id]
	if !ok {
		return false, ErrNotFound
	}
	if cmd.Status != StatusPending {
		return false, nil
	}

	now := time.Now().UTC()
	cmd.Status = StatusCancelled
	cmd.CompletedAt = &now
	return true, nil
}

// ClaimPending leases pending commands for a device.
func (m *MockStore) ClaimPending(ctx context.Context, deviceID string, limit int, leaseTTL time.Duration) ([]*Command, error) {
	if limit <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-leaseTTL)

	var candidates []*Command
	for _, cmd := range m.commands {
		if cmd.DeviceID != deviceID || cmd.Status != StatusPending {
			continue
		}
		if cmd.ClaimedAt != nil && cmd.ClaimedAt.After(cutoff) {
			continue
		}
		candidates = append(candidates, cmd)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*Command, 0, len(candidates))
	for _, cmd := range candidates {
		t := now
		cmd.ClaimedAt = &t
		c := *cmd
		out = append(out, &c)
	}
	return out, nil
}

// ListExpired returns non-terminal commands whose deadline passed.
func (m *MockStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Command, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Command
	for _, cmd := range m.commands {
		if cmd.Status != StatusPending && cmd.Status != StatusSent {
			continue
		}
		if cmd.DeadlineAt.After(now) {
			continue
		}
		c := *cmd
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].DeadlineAt.Before(out[j].DeadlineAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListCommands returns commands matching the filter, newest first.
func (m *MockStore) ListCommands(ctx context.Context, filter CommandFilter) ([]*Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Command
	for _, cmd := range m.commands {
		if filter.DeviceID != "" && cmd.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Status != "" && cmd.Status != filter.Status {
			continue
		}
		if filter.Type != "" && cmd.Type != filter.Type {
			continue
		}
		c := *cmd
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateAgent stores a new agent.
func (m *MockStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.ID]; ok {
		return ErrDuplicateAgent
	}

	a := *agent
	if a.Status == "" {
		a.Status = AgentStatusApproved
	}
	m.agents[a.ID] = &a
	return nil
}

// GetAgent retrieves an agent by id.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *agent
	return &a, nil
}

// ListAgents returns all agents ordered by enrollment time.
func (m *MockStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		a := *agent
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnrolledAt.Before(out[j].EnrolledAt)
	})
	return out, nil
}

// TouchAgent updates the agent's last-seen timestamp.
func (m *MockStore) TouchAgent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	t := at.UTC()
	agent.LastSeenAt = &t
	return nil
}

// SetAgentStatus updates the agent's enrollment status.
func (m *MockStore) SetAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.Status = status
	return nil
}

// CreateEnrollmentKey stores a new enrollment key.
func (m *MockStore) CreateEnrollmentKey(ctx context.Context, key *EnrollmentKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Name == key.Name {
			return ErrDuplicateKey
		}
	}

	k := *key
	m.keys[k.ID] = &k
	return nil
}

// GetEnrollmentKey retrieves an enrollment key by id.
func (m *MockStore) GetEnrollmentKey(ctx context.Context, id string) (*EnrollmentKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.keys[id]
	if !ok {
		return nil, ErrNotFound
	}
	k := *key
	return &k, nil
}

// GetEnrollmentKeyByName retrieves an enrollment key by name.
func (m *MockStore) GetEnrollmentKeyByName(ctx context.Context, name string) (*EnrollmentKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range m.keys {
		if key.Name == name {
			k := *key
			return &k, nil
		}
	}
	return nil, ErrNotFound
}

// ListEnrollmentKeys returns all keys ordered by creation time.
func (m *MockStore) ListEnrollmentKeys(ctx context.Context) ([]*EnrollmentKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*EnrollmentKey, 0, len(m.keys))
	for _, key := range m.keys {
		k := *key
		out = append(out, &k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RevokeEnrollmentKey marks the key revoked.
func (m *MockStore) RevokeEnrollmentKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[id]
	if !ok {
		return ErrNotFound
	}
	if key.RevokedAt == nil {
		now := time.Now().UTC()
		key.RevokedAt = &now
	}
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
