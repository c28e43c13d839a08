// ABOUTME: Store interface and data types for drover persistence
// ABOUTME: Defines Command, Agent, EnrollmentKey and the conditional lifecycle operations

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/droverhq/drover/internal/command"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateCommand is returned when creating a command whose id already exists
var ErrDuplicateCommand = errors.New("command already exists")

// ErrDuplicateAgent is returned when creating an agent whose id already exists
var ErrDuplicateAgent = errors.New("agent already exists")

// ErrDuplicateKey is returned when creating an enrollment key whose name is taken
var ErrDuplicateKey = errors.New("enrollment key already exists")

// CommandStatus is the lifecycle state of a command.
type CommandStatus string

// Command lifecycle states. pending -> sent -> one of the terminal states;
// cancelled is reachable from pending only. Exactly one terminal transition
// happens per command: every write into a terminal state goes through
// Complete or Cancel, whose conditional updates report whether they applied.
const (
	StatusPending   CommandStatus = "pending"
	StatusSent      CommandStatus = "sent"
	StatusCompleted CommandStatus = "completed"
	StatusFailed    CommandStatus = "failed"
	StatusTimeout   CommandStatus = "timeout"
	StatusCancelled CommandStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the four terminal states.
func (s CommandStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Delivery modes recorded on a command.
const (
	DeliveryPush  = "push"  // direct socket push, no heartbeat fallback
	DeliveryQueue = "queue" // durable; served over push or heartbeat pull
)

// Command is one unit of work dispatched to an agent. The id is the
// correlation key for the whole lifecycle.
type Command struct {
	ID       string
	DeviceID string
	Type     string
	Payload  json.RawMessage
	Status   CommandStatus
	Result   *command.Result // populated on terminal states only

	CreatedBy string
	Delivery  string
	TimeoutMs int64

	CreatedAt   time.Time
	SentAt      *time.Time
	CompletedAt *time.Time
	ClaimedAt   *time.Time
	DeadlineAt  time.Time
}

// AgentStatus is the enrollment state of an agent.
type AgentStatus string

// Agent enrollment states.
const (
	AgentStatusApproved AgentStatus = "approved"
	AgentStatusRevoked  AgentStatus = "revoked"
)

// Agent is one enrolled device.
type Agent struct {
	ID           string
	Hostname     string
	OSType       string
	OSVersion    string
	Architecture string
	AgentVersion string
	Status       AgentStatus
	EnrolledAt   time.Time
	LastSeenAt   *time.Time
}

// EnrollmentKey authorizes agent enrollment. The secret is stored as a
// bcrypt hash; the cleartext is shown once at creation.
type EnrollmentKey struct {
	ID         string
	Name       string
	SecretHash string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the key has been revoked.
func (k *EnrollmentKey) Revoked() bool {
	return k.RevokedAt != nil
}

// CommandFilter narrows ListCommands. Zero values mean "any".
type CommandFilter struct {
	DeviceID string
	Status   CommandStatus
	Type     string
	Limit    int
}

// Store defines the interface for drover persistence.
type Store interface {
	// Commands
	CreateCommand(ctx context.Context, cmd *Command) error
	GetCommand(ctx context.Context, id string) (*Command, error)

	// MarkSent conditionally moves pending -> sent, stamps sent_at, and
	// records which path delivered the command (push or heartbeat claim).
	// Returns false with no error when the command was not pending.
	MarkSent(ctx context.Context, id, delivery string, at time.Time) (bool, error)

	// Complete conditionally moves a non-terminal command into the given
	// terminal status, recording the result and completed_at. Returns
	// false with no error when the command was already terminal: that is
	// the duplicate/late-result case and is not a failure.
	Complete(ctx context.Context, id string, status CommandStatus, res command.Result) (bool, error)

	// Cancel conditionally moves pending -> cancelled. Returns false when
	// the command had already been sent or finished.
	Cancel(ctx context.Context, id string) (bool, error)

	// ClaimPending leases up to limit pending commands for the device.
	// Rows whose lease lapsed more than leaseTTL ago are claimable again.
	// The claim is a single conditional update, so concurrent claims for
	// the same device never hand out the same command twice within a lease.
	ClaimPending(ctx context.Context, deviceID string, limit int, leaseTTL time.Duration) ([]*Command, error)

	// ListExpired returns non-terminal commands whose deadline passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Command, error)

	ListCommands(ctx context.Context, filter CommandFilter) ([]*Command, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	TouchAgent(ctx context.Context, id string, at time.Time) error
	SetAgentStatus(ctx context.Context, id string, status AgentStatus) error

	// Enrollment keys
	CreateEnrollmentKey(ctx context.Context, key *EnrollmentKey) error
	GetEnrollmentKey(ctx context.Context, id string) (*EnrollmentKey, error)
	GetEnrollmentKeyByName(ctx context.Context, name string) (*EnrollmentKey, error)
	ListEnrollmentKeys(ctx context.Context) ([]*EnrollmentKey, error)
	RevokeEnrollmentKey(ctx context.Context, id string) error

	Close() error
}
