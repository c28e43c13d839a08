// Package agent tracks the live sockets of connected drover agents.
//
// # Overview
//
// Agents hold at most one WebSocket to the control plane. This package
// wraps each accepted socket in a Conn and indexes them by agent id in a
// Registry, which the dispatcher consults to decide between pushing a
// command immediately and parking it for the agent's next heartbeat.
//
// # Registry
//
// The Registry tracks all attached sockets:
//
//	reg := agent.NewRegistry(logger)
//
// Key operations:
//
//   - Register(conn): Install the live socket for an agent
//   - Unregister(conn): Remove a socket, ignoring stale ones
//   - Send(agentID, frame): Queue a frame for a connected agent
//   - IsConnected(agentID): Whether a live socket exists right now
//
// Registration is last-write-wins. When an agent reconnects while its old
// socket is still tracked (half-open TCP, a crashed process that never sent
// a close frame), the new socket replaces the old one and the old one is
// closed. Unregister only removes the exact connection it is handed, so the
// delayed teardown of a superseded socket cannot evict its replacement.
//
// # Conn
//
// Conn owns the write side of one socket. Every frame goes through a
// buffered queue drained by a single pump goroutine, which also pings on a
// timer. Send never blocks: when the queue is full the frame is refused
// with ErrSendBufferFull and the caller falls back to queued delivery.
// Reads stay with the socket handler that accepted the connection, which
// arms its read deadline with PongWait.
//
// # Thread Safety
//
// Registry and Conn are safe for concurrent use.
package agent
