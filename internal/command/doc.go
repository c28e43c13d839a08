// Package command defines the closed catalog of command types agents can
// execute, payload field accessors, and the result normalizer.
//
// Agents report results as an opaque envelope (status, exit code, stdout,
// stderr, error text, duration). Normalize turns that envelope into a
// Result: stdout is JSON-decoded into a typed per-family payload where the
// command type has one, and preserved as opaque text where it does not or
// where decoding fails. The decoded payload is advisory; the envelope
// fields are always kept verbatim.
package command
