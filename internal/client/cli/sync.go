package cli

import (
	"context"
	"errors"
	"fmt"

	clientsync "github.com/iudanet/pitlane/internal/client/sync"
)

func (c *Cli) runSync(ctx context.Context, _ []string) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()

	if !c.conn.IsOnline() && !c.conn.Probe(ctx) {
		if err := c.refreshCounts(ctx); err != nil {
			return err
		}
		snap := c.status.Snapshot()
		return fmt.Errorf("server is unreachable, %d write(s) stay queued", snap.PendingCount)
	}

	result, err := c.syncer.Drain(ctx)
	if errors.Is(err, clientsync.ErrDrainInProgress) {
		c.io.Println("Synchronization is already running.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Printf("Sent:     %d\n", result.Succeeded)
	if result.Retried > 0 {
		c.io.Printf("Retrying: %d\n", result.Retried)
	}
	if result.Failed > 0 {
		c.io.Printf("Failed:   %d\n", result.Failed)
	}
	if result.Skipped > 0 {
		c.io.Printf("Waiting:  %d\n", result.Skipped)
	}
	c.io.Printf("Pending:  %d\n", result.Pending)

	snap := c.status.Snapshot()
	c.io.Println()
	switch {
	case snap.FailedCount > 0:
		c.io.Printf("%d write(s) failed. Run 'pitlane queue' to inspect them.\n", snap.FailedCount)
	case result.Pending == 0:
		c.io.Println("✓ All writes are on the server")
	}

	return nil
}
