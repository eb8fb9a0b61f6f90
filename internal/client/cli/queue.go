package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iudanet/pitlane/internal/client/storage"
	clientsync "github.com/iudanet/pitlane/internal/client/sync"
	"github.com/iudanet/pitlane/internal/models"
)

func (c *Cli) runQueue(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.printQueue(ctx)
	}

	if len(args) < 2 {
		return fmt.Errorf("missing mutation ID. Usage: pitlane queue <retry|discard> <id>")
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid mutation ID: %s", args[1])
	}

	switch args[0] {
	case "retry":
		return c.retryMutation(ctx, id)
	case "discard":
		return c.discardMutation(ctx, id)
	default:
		return fmt.Errorf("unknown queue action: %s. Use: retry or discard", args[0])
	}
}

func (c *Cli) printQueue(ctx context.Context) error {
	mutations, err := c.queue.ListMutations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	if len(mutations) == 0 {
		c.io.Println("✓ Queue is empty, all writes are on the server")
		return nil
	}

	c.io.Printf("%d queued write(s):\n", len(mutations))
	c.io.Println()
	for _, m := range mutations {
		c.io.Printf("#%d  %-10s %-6s %s\n", m.ID, m.Status, m.Method, m.Path)
		c.io.Printf("     queued %s, attempts %d\n", m.Timestamp.Local().Format(time.RFC3339), m.RetryCount)
		if m.LastError != "" {
			c.io.Printf("     last error: %s\n", m.LastError)
		}
	}

	return nil
}

func (c *Cli) retryMutation(ctx context.Context, id uint64) error {
	if err := c.queue.Resubmit(ctx, id); err != nil {
		return queueError(id, err)
	}
	if err := c.refreshCounts(ctx); err != nil {
		return err
	}
	c.io.Printf("✓ Write #%d moved back to pending\n", id)

	if !c.conn.IsOnline() {
		c.io.Println("Server is unreachable, it will be sent later.")
		return nil
	}

	if _, err := c.syncer.Drain(ctx); err != nil && !errors.Is(err, clientsync.ErrDrainInProgress) {
		return fmt.Errorf("sync failed: %w", err)
	}

	m, err := c.queue.GetMutation(ctx, id)
	switch {
	case errors.Is(err, storage.ErrMutationNotFound):
		c.io.Println("✓ Sent to server")
	case err != nil:
		return fmt.Errorf("failed to read mutation: %w", err)
	case m.Status == models.MutationFailed:
		c.io.Printf("Write failed again: %s\n", m.LastError)
	}

	return nil
}

func (c *Cli) discardMutation(ctx context.Context, id uint64) error {
	if err := c.queue.Discard(ctx, id); err != nil {
		return queueError(id, err)
	}
	if err := c.refreshCounts(ctx); err != nil {
		return err
	}
	c.io.Printf("✓ Write #%d discarded\n", id)
	c.io.Println("The cached copy may differ from the server until the next refresh.")
	return nil
}

func queueError(id uint64, err error) error {
	switch {
	case errors.Is(err, storage.ErrMutationNotFound):
		return fmt.Errorf("write #%d not found in queue", id)
	case errors.Is(err, storage.ErrInvalidTransition):
		return fmt.Errorf("write #%d cannot be changed in its current state", id)
	default:
		return fmt.Errorf("queue update failed: %w", err)
	}
}
