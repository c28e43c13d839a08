// ABOUTME: Agent-side API methods for enrollment, heartbeat and results
// ABOUTME: Used by agents on the HTTP pull path and as the socket fallback

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/droverhq/drover/internal/wire"
)

// Enroll registers a new agent. It is the one call that needs no bearer
// token; the enrollment key and secret are the credential. The returned
// AuthToken authenticates every later call for the issued AgentID.
func (c *Client) Enroll(ctx context.Context, req wire.EnrollRequest) (*wire.EnrollResponse, error) {
	var resp wire.EnrollResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/enroll", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks in as agentID and returns any queued commands claimed
// for this agent. Commands handed back here are leased; report a result
// for each or they reappear after the claim expires.
func (c *Client) Heartbeat(ctx context.Context, agentID string, req wire.HeartbeatRequest) (*wire.HeartbeatResponse, error) {
	var resp wire.HeartbeatResponse
	path := fmt.Sprintf("/api/v1/agents/%s/heartbeat", url.PathEscape(agentID))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitResult reports a command outcome over HTTP. Safe to retry: the
// server deduplicates, so a repeat after a lost response is absorbed.
func (c *Client) SubmitResult(ctx context.Context, agentID, commandID string, env wire.ResultEnvelope) error {
	path := fmt.Sprintf("/api/v1/agents/%s/commands/%s/result",
		url.PathEscape(agentID), url.PathEscape(commandID))
	return c.doJSON(ctx, http.MethodPost, path, env, nil)
}
