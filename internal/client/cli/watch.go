package cli

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/pitlane/internal/client/status"
)

// runWatch держит монитор соединения и фоновую синхронизацию в foreground
// до отмены ctx, печатая каждое изменение статуса.
func (c *Cli) runWatch(ctx context.Context, _ []string) error {
	c.conn.Start(ctx)
	defer c.conn.Stop()

	updates, unsubscribe := c.status.Subscribe()
	defer unsubscribe()

	c.io.Println("Watching sync status. Press Ctrl+C to stop.")
	if c.conn.UsesFallback() {
		c.logger.Info("Background sync unavailable, queue drains on reconnect only")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.conn.Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				c.printSnapshot(snap)
			}
		}
	})

	return g.Wait()
}

func (c *Cli) printSnapshot(snap status.Snapshot) {
	c.io.Printf("[%s] %-8s pending=%d failed=%d", time.Now().Format(time.TimeOnly), snap.Status, snap.PendingCount, snap.FailedCount)
	if snap.LastError != "" {
		c.io.Printf(" error=%q", snap.LastError)
	}
	c.io.Println()
}
