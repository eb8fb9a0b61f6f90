package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/pitlane/internal/client/storage"
	"github.com/iudanet/pitlane/internal/models"
)

// queueKey кодирует ID в big-endian, чтобы порядок ключей совпадал с порядком создания
func queueKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func queueBucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(bucketQueue)
	if bucket == nil {
		return nil, fmt.Errorf("queue bucket not found")
	}
	return bucket, nil
}

func putMutation(bucket *bbolt.Bucket, m *models.Mutation) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation: %w", err)
	}
	if err := bucket.Put(queueKey(m.ID), data); err != nil {
		return fmt.Errorf("failed to save mutation %d: %w", m.ID, err)
	}
	return nil
}

func getMutation(bucket *bbolt.Bucket, id uint64) (*models.Mutation, error) {
	data := bucket.Get(queueKey(id))
	if data == nil {
		return nil, storage.ErrMutationNotFound
	}
	m := &models.Mutation{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mutation %d: %w", id, err)
	}
	return m, nil
}

// Enqueue appends a mutation as pending and returns the stored entry.
// Запись зафиксирована на диске к моменту возврата.
func (s *Storage) Enqueue(ctx context.Context, m *models.Mutation) (*models.Mutation, error) {
	method, err := models.NormalizeMethod(m.Method)
	if err != nil {
		return nil, err
	}

	stored := m.Clone()
	stored.Method = method
	stored.Status = models.MutationPending
	stored.RetryCount = 0
	stored.LastError = ""
	stored.NextAttemptAt = time.Time{}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	err = s.update(func(tx *bbolt.Tx) error {
		bucket, err := queueBucket(tx)
		if err != nil {
			return err
		}

		// Последовательность bucket монотонна и не переиспользуется
		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate mutation id: %w", err)
		}
		stored.ID = id

		return putMutation(bucket, stored)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	return stored, nil
}

// GetMutation returns a queued mutation by id
func (s *Storage) GetMutation(ctx context.Context, id uint64) (*models.Mutation, error) {
	var m *models.Mutation
	err := s.view(func(tx *bbolt.Tx) error {
		bucket, err := queueBucket(tx)
		if err != nil {
			return err
		}
		m, err = getMutation(bucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// listWhere возвращает записи очереди в порядке создания
func (s *Storage) listWhere(pred func(m *models.Mutation) bool) ([]*models.Mutation, error) {
	var list []*models.Mutation

	err := s.view(func(tx *bbolt.Tx) error {
		bucket, err := queueBucket(tx)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			m := &models.Mutation{}
			if err := json.Unmarshal(v, m); err != nil {
				return fmt.Errorf("failed to unmarshal mutation: %w", err)
			}
			if pred == nil || pred(m) {
				list = append(list, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	return list, nil
}

// ListMutations returns every queued mutation in creation order
func (s *Storage) ListMutations(ctx context.Context) ([]*models.Mutation, error) {
	return s.listWhere(nil)
}

// ListPending returns pending mutations in creation order
func (s *Storage) ListPending(ctx context.Context) ([]*models.Mutation, error) {
	return s.listWhere(func(m *models.Mutation) bool {
		return m.Status == models.MutationPending
	})
}

// Counts returns the number of pending and failed mutations.
// Записи в processing считаются pending: они еще не доставлены.
func (s *Storage) Counts(ctx context.Context) (pending, failed int, err error) {
	list, err := s.listWhere(nil)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range list {
		switch m.Status {
		case models.MutationFailed:
			failed++
		default:
			pending++
		}
	}
	return pending, failed, nil
}

// transition применяет fn к записи в одной транзакции.
// fn возвращает false, если запись нужно удалить.
func (s *Storage) transition(id uint64, from []models.MutationStatus, fn func(m *models.Mutation) bool) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket, err := queueBucket(tx)
		if err != nil {
			return err
		}

		m, err := getMutation(bucket, id)
		if err != nil {
			return err
		}

		allowed := false
		for _, st := range from {
			if m.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: mutation %d is %s", storage.ErrInvalidTransition, id, m.Status)
		}

		if !fn(m) {
			return bucket.Delete(queueKey(id))
		}
		return putMutation(bucket, m)
	})
}

// MarkProcessing moves a pending entry to processing
func (s *Storage) MarkProcessing(ctx context.Context, id uint64) error {
	return s.transition(id, []models.MutationStatus{models.MutationPending}, func(m *models.Mutation) bool {
		m.Status = models.MutationProcessing
		return true
	})
}

// MarkSucceeded removes a processing entry
func (s *Storage) MarkSucceeded(ctx context.Context, id uint64) error {
	return s.transition(id, []models.MutationStatus{models.MutationProcessing}, func(m *models.Mutation) bool {
		return false
	})
}

// MarkRetry returns a processing entry to pending and increments RetryCount
func (s *Storage) MarkRetry(ctx context.Context, id uint64, reason string, notBefore time.Time) error {
	return s.transition(id, []models.MutationStatus{models.MutationProcessing}, func(m *models.Mutation) bool {
		m.Status = models.MutationPending
		m.RetryCount++
		m.LastError = reason
		m.NextAttemptAt = notBefore
		return true
	})
}

// MarkFailed moves a processing entry to failed and increments RetryCount
func (s *Storage) MarkFailed(ctx context.Context, id uint64, reason string) error {
	return s.transition(id, []models.MutationStatus{models.MutationProcessing}, func(m *models.Mutation) bool {
		m.Status = models.MutationFailed
		m.RetryCount++
		m.LastError = reason
		m.NextAttemptAt = time.Time{}
		return true
	})
}

// Discard removes a pending or failed entry
func (s *Storage) Discard(ctx context.Context, id uint64) error {
	return s.transition(id, []models.MutationStatus{models.MutationPending, models.MutationFailed}, func(m *models.Mutation) bool {
		return false
	})
}

// Resubmit moves a failed entry back to pending with a fresh retry budget
func (s *Storage) Resubmit(ctx context.Context, id uint64) error {
	return s.transition(id, []models.MutationStatus{models.MutationFailed}, func(m *models.Mutation) bool {
		m.Status = models.MutationPending
		m.RetryCount = 0
		m.NextAttemptAt = time.Time{}
		return true
	})
}

// ResetProcessing returns entries left in processing back to pending.
// Вызывается в начале каждого прохода синхронизации: processing
// вне прохода означает, что процесс был прерван во время отправки.
func (s *Storage) ResetProcessing(ctx context.Context) (int, error) {
	reset := 0

	err := s.update(func(tx *bbolt.Tx) error {
		bucket, err := queueBucket(tx)
		if err != nil {
			return err
		}

		var stuck []*models.Mutation
		err = bucket.ForEach(func(k, v []byte) error {
			m := &models.Mutation{}
			if err := json.Unmarshal(v, m); err != nil {
				return fmt.Errorf("failed to unmarshal mutation: %w", err)
			}
			if m.Status == models.MutationProcessing {
				stuck = append(stuck, m)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Изменять bucket внутри ForEach нельзя
		for _, m := range stuck {
			m.Status = models.MutationPending
			if err := putMutation(bucket, m); err != nil {
				return err
			}
		}
		reset = len(stuck)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing mutations: %w", err)
	}

	return reset, nil
}
