// ABOUTME: Normalized command result stored by the control plane.
// ABOUTME: Synthesized results (offline, timed out) carry exit code -1.

package command

import "github.com/droverhq/drover/internal/wire"

// Result is the normalized outcome of a command. The envelope fields are
// kept verbatim from the agent's report; Data holds the typed decode of
// Stdout when the command type has one and decoding succeeded, nil
// otherwise. After a round trip through storage Data comes back as
// map[string]any.
type Result struct {
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Data       any    `json:"data,omitempty"`
}

// Failure returns a Result for a command that never reached an agent.
// Exit code -1 marks results synthesized by the control plane rather than
// reported by an agent.
func Failure(msg string) Result {
	return Result{
		Status:   wire.ResultStatusFailed,
		ExitCode: -1,
		Error:    msg,
	}
}

// TimedOut returns a Result for a command whose deadline passed without
// the agent reporting back.
func TimedOut() Result {
	return Result{
		Status:   wire.ResultStatusTimeout,
		ExitCode: -1,
		Error:    "command timed out",
	}
}

// Cancelled returns a Result for a command recalled before any agent
// picked it up.
func Cancelled() Result {
	return Result{
		Status:   "cancelled",
		ExitCode: -1,
		Error:    "command cancelled",
	}
}
