package storage

import (
	"context"
	"time"

	"github.com/iudanet/pitlane/internal/models"
)

// MutationQueue defines the durable FIFO of writes awaiting replay.
// Каждый переход статуса выполняется одной транзакцией и фиксируется
// до возврата из метода.
type MutationQueue interface {
	// Enqueue appends a mutation as pending and returns the stored entry
	Enqueue(ctx context.Context, m *models.Mutation) (*models.Mutation, error)

	// GetMutation returns a queued mutation by id
	GetMutation(ctx context.Context, id uint64) (*models.Mutation, error)

	// ListMutations returns every queued mutation in creation order
	ListMutations(ctx context.Context) ([]*models.Mutation, error)

	// ListPending returns pending mutations in creation order
	ListPending(ctx context.Context) ([]*models.Mutation, error)

	// Counts returns the number of pending and failed mutations
	Counts(ctx context.Context) (pending, failed int, err error)

	// MarkProcessing moves a pending entry to processing
	MarkProcessing(ctx context.Context, id uint64) error

	// MarkSucceeded removes a processing entry
	MarkSucceeded(ctx context.Context, id uint64) error

	// MarkRetry returns a processing entry to pending and increments RetryCount
	MarkRetry(ctx context.Context, id uint64, reason string, notBefore time.Time) error

	// MarkFailed moves a processing entry to failed and increments RetryCount
	MarkFailed(ctx context.Context, id uint64, reason string) error

	// Discard removes a pending or failed entry
	Discard(ctx context.Context, id uint64) error

	// Resubmit moves a failed entry back to pending with a fresh retry budget
	Resubmit(ctx context.Context, id uint64) error

	// ResetProcessing returns entries left in processing back to pending
	ResetProcessing(ctx context.Context) (int, error)
}
