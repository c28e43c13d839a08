// Package control orchestrates the droverd server components.
//
// # Overview
//
// The control package is the composition root of the droverd control
// plane. It owns the store, the agent socket registry, the dispatcher
// with its deadline sweep, the enrollment service, and the HTTP server
// that carries the whole surface on one listener (plain TCP or a
// Tailscale tsnet node).
//
// # HTTP API
//
// Agent-facing endpoints (agent JWT; the token must match the agent id
// in the path):
//
//   - POST /api/v1/enroll - Trade an enrollment key for an identity (open)
//   - GET  /api/v1/agents/{id}/ws - Attach the command socket
//   - POST /api/v1/agents/{id}/heartbeat - Touch liveness, pull pending commands
//   - POST /api/v1/agents/{id}/commands/{cmd}/result - Submit a result over HTTP
//
// Admin endpoints (admin JWT):
//
//   - GET    /api/v1/agents - Fleet view with online flags
//   - POST   /api/v1/devices/{id}/commands - Dispatch (wait=true blocks for the result)
//   - GET    /api/v1/devices/{id}/commands - Command history with filters
//   - GET    /api/v1/commands/{id} - One command with its result
//   - DELETE /api/v1/commands/{id} - Recall a still-pending command
//   - POST   /api/v1/enrollment-keys - Mint a key (secret shown once)
//   - GET    /api/v1/enrollment-keys - List keys
//   - DELETE /api/v1/enrollment-keys/{id} - Revoke a key
//
// Plus unauthenticated /health and /health/ready checks.
//
// # Sockets
//
// The websocket handler owns the read side of each agent socket: it
// arms the pong-based read deadline, parses result frames, and feeds
// them to the dispatcher's correlator. Writes never happen here; they
// go through the connection's write pump so pushes and pings cannot
// interleave.
package control
