package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBackgroundSyncUnavailable возвращается, если фоновая синхронизация не поддерживается
var ErrBackgroundSyncUnavailable = errors.New("background sync is unavailable")

// BackgroundSync is a platform facility that wakes the client up to sync
// even when nothing else triggers it.
type BackgroundSync interface {
	// Register schedules fn to be invoked in the background until ctx is done
	// or Unregister is called
	Register(ctx context.Context, fn func(ctx context.Context)) error

	// Unregister stops background invocations and waits for the running one
	Unregister()
}

// PeriodicSync implements BackgroundSync with a ticker
type PeriodicSync struct {
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	mu       sync.Mutex
}

// NewPeriodicSync creates a ticker based background sync.
// Интервал <= 0 означает, что фоновая синхронизация недоступна.
func NewPeriodicSync(interval time.Duration, logger *slog.Logger) *PeriodicSync {
	return &PeriodicSync{interval: interval, logger: logger}
}

// Register starts the ticker goroutine
func (p *PeriodicSync) Register(ctx context.Context, fn func(ctx context.Context)) error {
	if p.interval <= 0 {
		return ErrBackgroundSyncUnavailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New("background sync already registered")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(loopCtx, fn, p.done)

	p.logger.Info("Background sync registered", "interval", p.interval)
	return nil
}

// Unregister stops the ticker goroutine
func (p *PeriodicSync) Unregister() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.logger.Info("Background sync stopped")
}

func (p *PeriodicSync) run(ctx context.Context, fn func(ctx context.Context), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
