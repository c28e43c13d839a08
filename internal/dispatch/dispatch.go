// ABOUTME: Decides how each command reaches its agent: socket push or heartbeat pull.
// ABOUTME: Owns Enqueue (fire-and-forget), Execute (blocking), Cancel, and the pull-path claim.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/config"
	"github.com/droverhq/drover/internal/dedupe"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// ErrUnknownType indicates a command type outside the catalog.
var ErrUnknownType = errors.New("unknown command type")

// ErrBadPayload indicates a payload that is not a JSON value.
var ErrBadPayload = errors.New("payload is not valid JSON")

// ConnSender is the slice of the connection registry the dispatcher needs.
// *agent.Registry implements it.
type ConnSender interface {
	IsConnected(agentID string) bool
	Send(agentID string, frame any) error
}

// Dispatcher routes commands to agents and drives their lifecycle. Every
// command becomes a durable row first; delivery then goes over the agent's
// live socket when one exists, or waits for its next heartbeat. Results
// come back through OnAgentResult regardless of which path delivered.
type Dispatcher struct {
	store    store.Store
	registry ConnSender
	seen     *dedupe.Cache
	calls    *callTable
	cfg      config.DispatchConfig
	logger   *slog.Logger
}

// New creates a Dispatcher. The dedupe cache is shared with nothing else;
// it only ever holds command ids.
func New(st store.Store, reg ConnSender, seen *dedupe.Cache, cfg config.DispatchConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		registry: reg,
		seen:     seen,
		calls:    newCallTable(),
		cfg:      cfg,
		logger:   logger,
	}
}

// EnqueueOptions tune an asynchronous dispatch.
type EnqueueOptions struct {
	// CreatedBy is the opaque caller identity recorded for audit.
	CreatedBy string

	// PreferHeartbeat skips the socket push even when the agent is
	// connected, leaving the command for the next poll cycle.
	PreferHeartbeat bool
}

// ExecuteOptions tune a synchronous dispatch.
type ExecuteOptions struct {
	CreatedBy string

	// TimeoutMs bounds the wait. Zero means the configured default; the
	// value is clamped to the configured window either way.
	TimeoutMs int64

	// QueueIfOffline parks the command for heartbeat delivery when the
	// agent has no socket, instead of failing the call immediately.
	QueueIfOffline bool
}

// Enqueue creates a command and returns without waiting for its outcome.
// When the agent is connected (and the caller did not opt out) the command
// is pushed right away; otherwise the row waits for the agent's next
// heartbeat. Callers poll the store for the terminal result.
func (d *Dispatcher) Enqueue(ctx context.Context, deviceID, cmdType string, payload json.RawMessage, opts EnqueueOptions) (*store.Command, error) {
	cmd, err := d.newCommand(deviceID, cmdType, payload, opts.CreatedBy, 0, d.cfg.QueueTTL)
	if err != nil {
		return nil, err
	}
	if err := d.store.CreateCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("creating command: %w", err)
	}

	if !opts.PreferHeartbeat {
		d.tryPush(ctx, cmd)
	}

	d.logger.Debug("command enqueued",
		"id", cmd.ID,
		"device_id", deviceID,
		"type", cmdType,
		"status", cmd.Status,
	)
	return cmd, nil
}

// Execute creates a command and blocks until the agent reports a result,
// the per-call deadline fires, or ctx is cancelled. Agent-side failures are
// values in the returned command's Result; only storage errors and caller
// cancellation surface as errors.
func (d *Dispatcher) Execute(ctx context.Context, deviceID, cmdType string, payload json.RawMessage, opts ExecuteOptions) (*store.Command, error) {
	timeout := d.clampTimeout(opts.TimeoutMs)
	cmd, err := d.newCommand(deviceID, cmdType, payload, opts.CreatedBy, timeout, timeout)
	if err != nil {
		return nil, err
	}
	if err := d.store.CreateCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("creating command: %w", err)
	}

	if !d.registry.IsConnected(deviceID) && !opts.QueueIfOffline {
		// Push-only call with nobody to push to: fail the call now
		// rather than park the caller for the full timeout.
		res := command.Failure("agent offline")
		if _, err := d.store.Complete(ctx, cmd.ID, store.StatusFailed, res); err != nil {
			return nil, fmt.Errorf("recording offline failure: %w", err)
		}
		d.finishLocal(cmd, store.StatusFailed, res)
		d.logger.Debug("synchronous call refused, agent offline",
			"id", cmd.ID,
			"device_id", deviceID,
		)
		return cmd, nil
	}

	ch := d.calls.register(cmd.ID)
	defer d.calls.drop(cmd.ID)

	// The row went in as pending a moment ago, but a cancel can land
	// between the insert and here. Terminal already means done already.
	if got, err := d.store.GetCommand(ctx, cmd.ID); err == nil && got.Status.IsTerminal() {
		d.adoptStored(cmd, got)
		return cmd, nil
	}

	d.tryPush(ctx, cmd)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		d.finishLocal(cmd, store.CommandStatus(res.Status), res)
		return cmd, nil

	case <-timer.C:
		return d.timeoutCall(ctx, cmd, ch)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel recalls a command no agent has picked up yet. Returns whether the
// cancellation applied; a command already sent or finished cannot be
// recalled.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (bool, error) {
	applied, err := d.store.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if applied {
		d.calls.resolve(id, command.Cancelled())
		d.logger.Info("command cancelled", "id", id)
	}
	return applied, nil
}

// PullCommands claims up to the configured batch of pending commands for a
// device and marks them sent on the heartbeat path. The claim itself is a
// conditional write, so overlapping heartbeats never hand out the same
// command twice within the lease.
func (d *Dispatcher) PullCommands(ctx context.Context, deviceID string) ([]wire.Command, error) {
	claimed, err := d.store.ClaimPending(ctx, deviceID, d.cfg.PullBatch, d.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("claiming pending commands: %w", err)
	}

	frames := make([]wire.Command, 0, len(claimed))
	now := time.Now().UTC()
	for _, cmd := range claimed {
		if _, err := d.store.MarkSent(ctx, cmd.ID, store.DeliveryQueue, now); err != nil {
			d.logger.Warn("claimed but could not mark sent", "id", cmd.ID, "error", err)
		}
		frames = append(frames, wire.Command{ID: cmd.ID, Type: cmd.Type, Payload: cmd.Payload})
	}

	if len(frames) > 0 {
		d.logger.Debug("handed commands to heartbeat",
			"device_id", deviceID,
			"count", len(frames),
		)
	}
	return frames, nil
}

// newCommand validates the request and builds the pending row. timeout is
// the agent-side bound recorded on the row (zero for queued dispatch); ttl
// sets the deadline the sweep enforces.
func (d *Dispatcher) newCommand(deviceID, cmdType string, payload json.RawMessage, createdBy string, timeout, ttl time.Duration) (*store.Command, error) {
	if !command.Valid(cmdType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cmdType)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, ErrBadPayload
	}

	now := time.Now().UTC()
	return &store.Command{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Type:       cmdType,
		Payload:    payload,
		Status:     store.StatusPending,
		CreatedBy:  createdBy,
		Delivery:   store.DeliveryQueue,
		TimeoutMs:  timeout.Milliseconds(),
		CreatedAt:  now,
		DeadlineAt: now.Add(ttl),
	}, nil
}

// clampTimeout bounds a caller-supplied timeout to the configured window.
// Zero or negative means the default.
func (d *Dispatcher) clampTimeout(ms int64) time.Duration {
	if ms <= 0 {
		return d.cfg.DefaultTimeout
	}
	t := time.Duration(ms) * time.Millisecond
	if t < d.cfg.MinTimeout {
		return d.cfg.MinTimeout
	}
	if t > d.cfg.MaxTimeout {
		return d.cfg.MaxTimeout
	}
	return t
}

// tryPush attempts socket delivery. A push that does not go through is not
// an error: the row stays pending and the next heartbeat picks it up.
func (d *Dispatcher) tryPush(ctx context.Context, cmd *store.Command) bool {
	if !d.registry.IsConnected(cmd.DeviceID) {
		return false
	}

	frame := wire.Command{ID: cmd.ID, Type: cmd.Type, Payload: cmd.Payload}
	if err := d.registry.Send(cmd.DeviceID, frame); err != nil {
		d.logger.Debug("push refused, leaving command queued",
			"id", cmd.ID,
			"device_id", cmd.DeviceID,
			"error", err,
		)
		return false
	}

	now := time.Now().UTC()
	applied, err := d.store.MarkSent(ctx, cmd.ID, store.DeliveryPush, now)
	if err != nil {
		d.logger.Warn("pushed but could not mark sent", "id", cmd.ID, "error", err)
		return true
	}
	if applied {
		cmd.Status = store.StatusSent
		cmd.Delivery = store.DeliveryPush
		cmd.SentAt = &now
	}
	return true
}

// timeoutCall drives the per-call deadline. The conditional update decides
// the winner deterministically when a result lands at the same instant.
func (d *Dispatcher) timeoutCall(ctx context.Context, cmd *store.Command, ch <-chan command.Result) (*store.Command, error) {
	res := command.TimedOut()
	applied, err := d.store.Complete(ctx, cmd.ID, store.StatusTimeout, res)
	if err != nil {
		return nil, fmt.Errorf("recording timeout: %w", err)
	}
	if applied {
		d.seen.Mark(cmd.ID)
		d.logger.Info("synchronous call timed out",
			"id", cmd.ID,
			"device_id", cmd.DeviceID,
			"timeout_ms", cmd.TimeoutMs,
		)
		d.finishLocal(cmd, store.StatusTimeout, res)
		return cmd, nil
	}

	// Lost the race: a result beat the deadline by a hair. Prefer the
	// value already delivered to the slot, else read the winning row.
	select {
	case got := <-ch:
		d.finishLocal(cmd, store.CommandStatus(got.Status), got)
		return cmd, nil
	default:
	}

	stored, err := d.store.GetCommand(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("reading raced command: %w", err)
	}
	d.adoptStored(cmd, stored)
	return cmd, nil
}

// finishLocal stamps the caller's view of the command with its terminal
// outcome. The store row was already written by whoever won.
func (d *Dispatcher) finishLocal(cmd *store.Command, status store.CommandStatus, res command.Result) {
	now := time.Now().UTC()
	cmd.Status = status
	cmd.Result = &res
	cmd.CompletedAt = &now
}

// adoptStored copies a terminal row's outcome onto the caller's view.
// Cancelled rows carry no result; synthesize the standard one.
func (d *Dispatcher) adoptStored(cmd, stored *store.Command) {
	if stored.Result != nil {
		d.finishLocal(cmd, stored.Status, *stored.Result)
		return
	}
	d.finishLocal(cmd, stored.Status, command.Cancelled())
}
