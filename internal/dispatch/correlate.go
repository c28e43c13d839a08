// ABOUTME: Matches agent-reported results to stored commands by id.
// ABOUTME: The socket read loop and the HTTP result endpoint both land here.

package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// ErrDeviceMismatch indicates a result submitted for a command that belongs
// to a different device.
var ErrDeviceMismatch = errors.New("result from a different device")

// OnAgentResult ingests one result envelope reported by an agent. The
// store's conditional terminal update makes duplicates and late arrivals
// no-ops; the dedupe cache just makes the common retransmission cheap.
// Errors are reserved for submissions that never reach the lifecycle:
// unknown command id, wrong device, storage failure.
func (d *Dispatcher) OnAgentResult(ctx context.Context, deviceID, commandID string, env wire.ResultEnvelope) error {
	cmd, err := d.store.GetCommand(ctx, commandID)
	if err != nil {
		return fmt.Errorf("looking up command %s: %w", commandID, err)
	}
	if cmd.DeviceID != deviceID {
		// Ownership check comes before the dedupe mark so a stray agent
		// cannot poison the cache for someone else's command.
		return fmt.Errorf("%w: command %s belongs to %s", ErrDeviceMismatch, commandID, cmd.DeviceID)
	}

	if d.seen.CheckAndMark(commandID) {
		d.logger.Debug("duplicate result dropped",
			"id", commandID,
			"device_id", deviceID,
		)
		return nil
	}

	res := command.Normalize(cmd.Type, env)
	status := store.CommandStatus(res.Status)

	applied, err := d.store.Complete(ctx, commandID, status, res)
	if err != nil {
		return fmt.Errorf("completing command %s: %w", commandID, err)
	}
	if !applied {
		d.logger.Debug("late result absorbed",
			"id", commandID,
			"device_id", deviceID,
			"reported_status", status,
		)
		return nil
	}

	d.calls.resolve(commandID, res)
	d.logger.Info("command completed",
		"id", commandID,
		"device_id", deviceID,
		"type", cmd.Type,
		"status", status,
		"duration_ms", res.DurationMs,
	)
	return nil
}
