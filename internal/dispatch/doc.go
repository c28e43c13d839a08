// Package dispatch delivers commands to agents and tracks their lifecycle.
//
// # Overview
//
// Every command starts as a durable pending row. Delivery is then a push
// over the agent's live socket when the registry has one, or a claim by the
// agent's next heartbeat when it does not. Results reach OnAgentResult
// from either the socket read loop or the HTTP result endpoint and are
// correlated back to the row by command id.
//
// # Lifecycle
//
//	pending -> sent -> completed | failed | timeout
//	pending -> cancelled
//
// A command crosses into a terminal state exactly once. Every terminal
// write is a conditional update that reports whether it applied, and every
// writer (correlator, per-call timer, sweep, cancel) treats "did not
// apply" as someone else already finished this, not as an error. Duplicate
// and late results are absorbed the same way.
//
// # Synchronous calls
//
// Execute parks the caller on a per-command slot that resolves at most
// once. The correlator and the deadline timer race for the slot; whichever
// transition wins the store also supplies the value the caller sees, so a
// caller never observes an outcome that differs from the stored row.
//
// # Sweep
//
// RunSweeper times out overdue rows in the background: queued commands
// nobody pulled within the queue TTL and sent commands whose agent never
// reported back. Execute's own timer remains the precise per-call bound.
package dispatch
