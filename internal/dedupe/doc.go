// Package dedupe provides result deduplication using a time-based cache so
// a command result retransmitted by an agent is only processed once.
package dedupe
