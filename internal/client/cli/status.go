package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runStatus(ctx context.Context, _ []string) error {
	if err := c.refreshCounts(ctx); err != nil {
		return err
	}

	loggedIn, err := c.session.IsLoggedIn(ctx)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}

	snap := c.status.Snapshot()

	c.io.Println("=== Sync Status ===")
	c.io.Println()
	c.io.Printf("Status:     %s\n", snap.Status)
	c.io.Printf("Server:     %s\n", onlineLabel(c.conn.IsOnline()))
	if loggedIn {
		c.io.Println("Session:    logged in")
	} else {
		c.io.Println("Session:    anonymous")
	}
	if snap.LastSyncAt.IsZero() {
		c.io.Println("Last sync:  never")
	} else {
		c.io.Printf("Last sync:  %s\n", snap.LastSyncAt.Local().Format(time.RFC3339))
	}
	c.io.Printf("Pending:    %d\n", snap.PendingCount)
	c.io.Printf("Failed:     %d\n", snap.FailedCount)
	if snap.LastError != "" {
		c.io.Printf("Last error: %s\n", snap.LastError)
	}

	if snap.FailedCount > 0 {
		c.io.Println()
		c.io.Println("Some writes failed. Run 'pitlane queue' to retry or discard them.")
	}

	return nil
}

func onlineLabel(online bool) string {
	if online {
		return "reachable"
	}
	return "unreachable"
}
