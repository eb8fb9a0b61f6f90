package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_DefaultsToOffline(t *testing.T) {
	s := NewStore(Snapshot{})
	assert.Equal(t, Offline, s.Snapshot().Status)

	s = NewStore(Snapshot{Status: Online, PendingCount: 2})
	snap := s.Snapshot()
	assert.Equal(t, Online, snap.Status)
	assert.Equal(t, 2, snap.PendingCount)
}

func TestStore_Mutators(t *testing.T) {
	s := NewStore(Snapshot{Status: Online})

	s.SetCounts(3, 1)
	snap := s.Snapshot()
	assert.Equal(t, 3, snap.PendingCount)
	assert.Equal(t, 1, snap.FailedCount)

	s.SetError(errors.New("disk full"))
	snap = s.Snapshot()
	assert.Equal(t, Error, snap.Status)
	assert.Equal(t, "disk full", snap.LastError)

	s.SetStatus(Syncing)
	snap = s.Snapshot()
	assert.Equal(t, Syncing, snap.Status)
	assert.Empty(t, snap.LastError)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.MarkSynced(at, 0, 2)
	snap = s.Snapshot()
	assert.Equal(t, at, snap.LastSyncAt)
	assert.Equal(t, 0, snap.PendingCount)
	assert.Equal(t, 2, snap.FailedCount)
}

func TestStore_SubscribeDeliversLatest(t *testing.T) {
	s := NewStore(Snapshot{Status: Offline})

	ch, cancel := s.Subscribe()
	defer cancel()

	// Начальный снимок доступен сразу
	first := <-ch
	assert.Equal(t, Offline, first.Status)

	// Несколько обновлений без чтения: подписчик видит только последнее
	s.SetStatus(Online)
	s.SetStatus(Syncing)
	s.SetCounts(5, 0)

	latest := <-ch
	assert.Equal(t, Syncing, latest.Status)
	assert.Equal(t, 5, latest.PendingCount)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", extra)
	default:
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(Snapshot{})
	ch, cancel := s.Subscribe()
	<-ch

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel is closed after cancel")

	// Мутации после отписки не паникуют
	s.SetStatus(Online)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(Snapshot{})
	ch, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetCounts(n, j)
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snap := <-ch
	require.Equal(t, s.Snapshot(), snap)
}
