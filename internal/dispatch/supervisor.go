// ABOUTME: Background deadline sweep completing overdue commands as timeouts.
// ABOUTME: Execute's own timer stays the precise per-call bound; this catches the rest.

package dispatch

import (
	"context"
	"time"

	"github.com/droverhq/drover/internal/command"
	"github.com/droverhq/drover/internal/store"
)

// sweepBatch caps how many overdue rows one pass will touch.
const sweepBatch = 256

// RunSweeper periodically times out non-terminal commands whose deadline
// passed: queued commands nobody pulled within the queue TTL, pushed
// commands whose agent vanished, and synchronous calls orphaned by a
// restart. Blocks until ctx is cancelled.
func (d *Dispatcher) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	d.logger.Info("timeout sweeper started", "interval", d.cfg.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			d.sweepExpired(ctx)
		}
	}
}

// sweepExpired runs one pass. Every completion is conditional, so a result
// racing the sweep loses nothing either way.
func (d *Dispatcher) sweepExpired(ctx context.Context) {
	expired, err := d.store.ListExpired(ctx, time.Now().UTC(), sweepBatch)
	if err != nil {
		d.logger.Error("listing expired commands", "error", err)
		return
	}

	for _, cmd := range expired {
		res := command.TimedOut()
		applied, err := d.store.Complete(ctx, cmd.ID, store.StatusTimeout, res)
		if err != nil {
			d.logger.Error("timing out command", "id", cmd.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}

		// Pre-mark so a straggling result short-circuits at the cache.
		d.seen.Mark(cmd.ID)
		d.calls.resolve(cmd.ID, res)
		d.logger.Info("command timed out",
			"id", cmd.ID,
			"device_id", cmd.DeviceID,
			"type", cmd.Type,
			"deadline_at", cmd.DeadlineAt,
		)
	}
}
