package storage

import (
	"context"

	"github.com/iudanet/pitlane/internal/models"
)

// ResourceStorage defines interface for generic REST resource persistence.
// Ресурс хранится как JSON документ в строке (table, id).
type ResourceStorage interface {
	// Upsert creates a resource or replaces the existing one.
	// Время создания существующего ресурса сохраняется.
	Upsert(ctx context.Context, rec *models.Record) error

	// Get retrieves a single resource.
	// Returns ErrResourceNotFound if resource doesn't exist
	Get(ctx context.Context, table, id string) (*models.Record, error)

	// List retrieves every resource of a table in creation order.
	// Returns empty slice if table is empty
	List(ctx context.Context, table string) ([]*models.Record, error)

	// Delete removes a resource and reports whether it existed
	Delete(ctx context.Context, table, id string) (bool, error)

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}
