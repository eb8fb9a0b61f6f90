package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/pitlane/internal/client/storage"
	"github.com/iudanet/pitlane/internal/models"
)

// tableBucket возвращает bucket таблицы сущностей
func tableBucket(tx *bbolt.Tx, table string) (*bbolt.Bucket, error) {
	if err := models.ValidateTable(table); err != nil {
		return nil, err
	}
	bucket := tx.Bucket([]byte(table))
	if bucket == nil {
		return nil, fmt.Errorf("%s bucket not found", table)
	}
	return bucket, nil
}

// Get returns the cached record or nil if it is absent
func (s *Storage) Get(ctx context.Context, table, id string) (*models.Record, error) {
	var rec *models.Record

	err := s.view(func(tx *bbolt.Tx) error {
		bucket, err := tableBucket(tx, table)
		if err != nil {
			return err
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			// отсутствие записи не ошибка
			return nil
		}

		rec = &models.Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, id, err)
	}

	return rec, nil
}

// Put inserts or replaces a record
func (s *Storage) Put(ctx context.Context, rec *models.Record) error {
	return s.BulkPut(ctx, rec.Table, []*models.Record{rec})
}

// BulkPut upserts records of one table in a single transaction
func (s *Storage) BulkPut(ctx context.Context, table string, recs []*models.Record) error {
	err := s.update(func(tx *bbolt.Tx) error {
		bucket, err := tableBucket(tx, table)
		if err != nil {
			return err
		}

		for _, rec := range recs {
			if rec.Table != table {
				return fmt.Errorf("record %s belongs to %q, not %q", rec.ID, rec.Table, table)
			}
			if rec.ID == "" {
				return models.ErrMissingID
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if err := bucket.Put([]byte(rec.ID), data); err != nil {
				return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put into %s: %w", table, err)
	}
	return nil
}

// Delete removes a record. Deleting an absent record is a no-op
func (s *Storage) Delete(ctx context.Context, table, id string) error {
	err := s.update(func(tx *bbolt.Tx) error {
		bucket, err := tableBucket(tx, table)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return nil
}

// Query returns records of a table matching pred, ordered by id
func (s *Storage) Query(ctx context.Context, table string, pred storage.Predicate) ([]*models.Record, error) {
	var recs []*models.Record

	err := s.view(func(tx *bbolt.Tx) error {
		bucket, err := tableBucket(tx, table)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(k, v []byte) error {
			rec := &models.Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", string(k), err)
			}
			if pred == nil || pred(rec) {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	return recs, nil
}

// Clear removes every record of a table
func (s *Storage) Clear(ctx context.Context, table string) error {
	err := s.update(func(tx *bbolt.Tx) error {
		if err := models.ValidateTable(table); err != nil {
			return err
		}
		// Пересоздаем bucket целиком
		if err := tx.DeleteBucket([]byte(table)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(table))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}
