// ABOUTME: Fleet view methods for listing enrolled agents
// ABOUTME: Mirrors the agent JSON rendering served by the control API

package client

import (
	"context"
	"net/http"
)

// Agent is one fleet entry. Online means a live socket right now;
// heartbeat-only agents show online=false with a recent LastSeenAt.
type Agent struct {
	ID           string `json:"id"`
	Hostname     string `json:"hostname"`
	OSType       string `json:"os_type,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
	Status       string `json:"status"`
	Online       bool   `json:"online"`
	EnrolledAt   string `json:"enrolled_at"`
	LastSeenAt   string `json:"last_seen_at,omitempty"`
}

// ListAgents returns every enrolled agent.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}
