// Package status provides the observable sync status shared by the sync
// engine, the connectivity monitor and the CLI.
//
// Store is constructed explicitly and injected into every producer and
// consumer. Readers take immutable snapshots; subscribers receive the latest
// snapshot on a buffered channel and never block mutators.
package status

import (
	"sync"
	"time"
)

// Status is the coarse sync state shown to the user
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
	Syncing Status = "syncing"
	Error   Status = "error"
)

// Snapshot is an immutable view of the sync status
type Snapshot struct {
	LastSyncAt   time.Time // LastSyncAt время завершения последнего прохода синхронизации
	Status       Status
	LastError    string
	PendingCount int
	FailedCount  int
}

// Store is a thread-safe container for the latest sync status
type Store struct {
	subs   map[int]chan Snapshot
	snap   Snapshot
	nextID int
	mu     sync.RWMutex
}

// NewStore создает Store с начальным снимком
func NewStore(initial Snapshot) *Store {
	if initial.Status == "" {
		initial.Status = Offline
	}
	return &Store{
		snap: initial,
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot возвращает текущий снимок
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetStatus меняет статус. Переход в любой статус кроме Error очищает LastError.
func (s *Store) SetStatus(st Status) {
	s.update(func(snap *Snapshot) {
		snap.Status = st
		if st != Error {
			snap.LastError = ""
		}
	})
}

// SetCounts обновляет счетчики очереди
func (s *Store) SetCounts(pending, failed int) {
	s.update(func(snap *Snapshot) {
		snap.PendingCount = pending
		snap.FailedCount = failed
	})
}

// MarkSynced фиксирует завершение прохода синхронизации
func (s *Store) MarkSynced(at time.Time, pending, failed int) {
	s.update(func(snap *Snapshot) {
		snap.LastSyncAt = at
		snap.PendingCount = pending
		snap.FailedCount = failed
	})
}

// SetError переводит статус в Error и запоминает сообщение
func (s *Store) SetError(err error) {
	s.update(func(snap *Snapshot) {
		snap.Status = Error
		if err != nil {
			snap.LastError = err.Error()
		}
	})
}

// Subscribe возвращает канал со снимками и функцию отписки.
// В канале всегда лежит только последний снимок; медленный подписчик
// пропускает промежуточные.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan Snapshot, 1)
	ch <- s.snap
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}

	return ch, cancel
}

func (s *Store) update(fn func(snap *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.snap)

	for _, ch := range s.subs {
		// Заменяем непрочитанный снимок новым
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.snap:
		default:
		}
	}
}
