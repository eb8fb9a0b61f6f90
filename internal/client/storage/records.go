package storage

import (
	"context"

	"github.com/iudanet/pitlane/internal/models"
)

// Predicate отбирает записи в Query. nil означает "все записи".
type Predicate func(rec *models.Record) bool

// LocalStore defines the persistent cache of server entities.
// Отсутствие записи не является ошибкой.
type LocalStore interface {
	// Get returns the record or nil if it is absent
	Get(ctx context.Context, table, id string) (*models.Record, error)

	// Put inserts or replaces a record
	Put(ctx context.Context, rec *models.Record) error

	// BulkPut upserts records of one table in a single transaction
	BulkPut(ctx context.Context, table string, recs []*models.Record) error

	// Delete removes a record. Deleting an absent record is a no-op
	Delete(ctx context.Context, table, id string) error

	// Query returns records of a table matching predicate, ordered by id
	Query(ctx context.Context, table string, pred Predicate) ([]*models.Record, error)

	// Clear removes every record of a table
	Clear(ctx context.Context, table string) error
}
