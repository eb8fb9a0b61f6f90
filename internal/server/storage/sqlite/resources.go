package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/pitlane/internal/models"
	"github.com/iudanet/pitlane/internal/server/storage"
)

// Upsert creates a resource or replaces the existing one
func (s *Storage) Upsert(ctx context.Context, rec *models.Record) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO resources (tbl, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tbl, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Table,
		rec.ID,
		string(rec.Data),
		updatedAt.UnixNano(),
		updatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resource %s/%s: %w", rec.Table, rec.ID, err)
	}

	return nil
}

// Get retrieves a single resource
func (s *Storage) Get(ctx context.Context, table, id string) (*models.Record, error) {
	query := `SELECT data, updated_at FROM resources WHERE tbl = ? AND id = ?`

	var (
		data      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, table, id).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %s/%s: %w", table, id, err)
	}

	return &models.Record{
		Table:     table,
		ID:        id,
		Data:      []byte(data),
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}

// List retrieves every resource of a table in creation order
func (s *Storage) List(ctx context.Context, table string) ([]*models.Record, error) {
	query := `
		SELECT id, data, updated_at FROM resources
		WHERE tbl = ?
		ORDER BY rowid
	`

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	recs := make([]*models.Record, 0)
	for rows.Next() {
		var (
			id, data  string
			updatedAt int64
		)
		if err := rows.Scan(&id, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		recs = append(recs, &models.Record{
			Table:     table,
			ID:        id,
			Data:      []byte(data),
			UpdatedAt: time.Unix(0, updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}

	return recs, nil
}

// Delete removes a resource and reports whether it existed
func (s *Storage) Delete(ctx context.Context, table, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE tbl = ? AND id = ?`, table, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete resource %s/%s: %w", table, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return n > 0, nil
}
