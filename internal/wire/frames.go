// ABOUTME: Socket frame and HTTP payload types exchanged with agents.
// ABOUTME: These shapes are a compatibility contract; see frames_test.go.

package wire

import "encoding/json"

// Frame type discriminators for agent-bound and server-bound socket frames.
const (
	FrameTypeConnected = "connected"
	FrameTypeResult    = "command_result"
)

// Result envelope statuses an agent may report. The server derives the
// final command status from these plus the exit code.
const (
	ResultStatusCompleted = "completed"
	ResultStatusFailed    = "failed"
	ResultStatusTimeout   = "timeout"
)

// Command is a single instruction pushed to an agent, either over its
// socket or inside a heartbeat response. Payload is opaque to the control
// plane; its shape belongs to the command type's owner.
type Command struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is sent by the server once an agent socket is attached. Agents
// distinguish control frames from commands by the absence of an "id" field.
type Hello struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id"`
}

// ResultEnvelope is the agent-reported outcome of one command. Stdout
// conventionally carries a JSON document for structured command types; the
// server normalizes it and falls back to opaque text when it does not parse.
type ResultEnvelope struct {
	Status     string `json:"status"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ResultFrame is the socket framing of a ResultEnvelope, correlated back to
// its command by CommandID. The same envelope, without the frame fields, is
// the body of the HTTP result submission.
type ResultFrame struct {
	Type      string `json:"type"`
	CommandID string `json:"command_id"`
	ResultEnvelope
}

// HeartbeatRequest is posted by agents on their poll cycle.
type HeartbeatRequest struct {
	AgentVersion string `json:"agent_version,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
}

// HeartbeatResponse carries any pending commands claimed for the agent.
// Commands is always present, empty when there is nothing to deliver.
type HeartbeatResponse struct {
	Commands []Command `json:"commands"`
}

// EnrollRequest registers a new agent using a pre-shared enrollment key.
type EnrollRequest struct {
	EnrollmentKey    string `json:"enrollment_key"`
	EnrollmentSecret string `json:"enrollment_secret"`
	Hostname         string `json:"hostname"`
	OSType           string `json:"os_type,omitempty"`
	OSVersion        string `json:"os_version,omitempty"`
	Architecture     string `json:"architecture,omitempty"`
	AgentVersion     string `json:"agent_version,omitempty"`
}

// EnrollResponse returns the identity and credential the agent uses from
// then on.
type EnrollResponse struct {
	AgentID   string `json:"agent_id"`
	AuthToken string `json:"auth_token"`
}
