package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/pitlane/internal/client/storage"
	"github.com/iudanet/pitlane/internal/models"
)

var (
	// BoltDB bucket names
	bucketQueue    = []byte("syncQueue")
	bucketSession  = []byte("session")
	bucketMetadata = []byte("metadata")
)

// Storage represents BoltDB storage implementation for client.
// Один файл содержит локальный кеш сущностей, очередь мутаций,
// сессию и метаданные.
type Storage struct {
	db *bbolt.DB
}

var (
	_ storage.LocalStore      = (*Storage)(nil)
	_ storage.MutationQueue   = (*Storage)(nil)
	_ storage.SessionStorage  = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; таймаут защищает от второго процесса, держащего lock
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range bucketNames() {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// bucketNames возвращает все buckets схемы: по одному на таблицу
// сущностей и служебные
func bucketNames() [][]byte {
	names := make([][]byte, 0, len(models.Tables)+3)
	for _, table := range models.Tables {
		names = append(names, []byte(table))
	}
	return append(names, bucketQueue, bucketSession, bucketMetadata)
}

func (s *Storage) update(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.Update(fn)
}

func (s *Storage) view(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.View(fn)
}
