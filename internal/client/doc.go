// Package client implements a typed HTTP client for the drover control API.
//
// # Overview
//
// This package wraps the control server's REST surface in Go method calls.
// It is shared by the admin CLI (fleet views, dispatch, enrollment keys)
// and by agents that use the HTTP pull path (enrollment, heartbeat, result
// submission).
//
// # Admin Methods
//
// Admin methods require a token minted with the admin role:
//
//   - ListAgents: Returns every enrolled agent with live-socket status
//   - Exec: Dispatches a command and waits for its terminal result
//   - Enqueue: Queues a command for later delivery
//   - GetCommand: Fetches one command row by id
//   - ListCommands: Returns command history for a device
//   - CancelCommand: Recalls a still-pending command
//   - CreateEnrollmentKey, ListEnrollmentKeys, RevokeEnrollmentKey
//
// # Agent Methods
//
// Agent methods authenticate with the per-agent token issued at enrollment
// (Enroll itself needs no token; the enrollment key is the credential):
//
//   - Enroll: Registers the machine and returns the agent id and token
//   - Heartbeat: Checks in and collects queued commands
//   - SubmitResult: Reports a command outcome over HTTP
//
// # Errors
//
// Any non-2xx response decodes into an *APIError carrying the HTTP status
// and the server's error message:
//
//	cmd, err := c.GetCommand(ctx, id)
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
//	    // unknown command id
//	}
//
// # Usage
//
//	c := client.New("https://drover.example.com", token)
//	agents, err := c.ListAgents(ctx)
package client
