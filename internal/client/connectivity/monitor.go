// Package connectivity tracks whether the server is reachable and triggers
// the sync engine when connectivity returns.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/pitlane/internal/client/api"
	"github.com/iudanet/pitlane/internal/client/status"
	clientsync "github.com/iudanet/pitlane/internal/client/sync"
)

// DefaultProbeInterval период проверки доступности сервера
const DefaultProbeInterval = 15 * time.Second

// Prober проверяет доступность сервера
type Prober interface {
	Health(ctx context.Context) error
}

// Drainer запускает проход синхронизации
type Drainer interface {
	Drain(ctx context.Context) (*clientsync.Result, error)
}

// Config настройки монитора
type Config struct {
	ProbeInterval time.Duration
}

// Monitor tracks connectivity and drains the queue once per
// offline to online transition.
type Monitor struct {
	prober   Prober
	drainer  Drainer
	bg       BackgroundSync
	status   *status.Store
	logger   *slog.Logger
	interval time.Duration
	mu       sync.Mutex
	online   bool
	fallback bool
	rerun    bool // rerun триггер пришел во время чужого прохода
}

// NewMonitor creates a connectivity monitor. bg may be nil, then the
// visibility fallback is used.
func NewMonitor(prober Prober, drainer Drainer, bg BackgroundSync, st *status.Store, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	return &Monitor{
		prober:   prober,
		drainer:  drainer,
		bg:       bg,
		status:   st,
		logger:   logger,
		interval: cfg.ProbeInterval,
	}
}

// Start probes the server once and registers background sync.
// Если сервер доступен, очередь, оставшаяся с прошлого запуска, сразу
// отправляется. Возвращает true, если проход синхронизации был выполнен.
func (m *Monitor) Start(ctx context.Context) bool {
	online, drained := m.probe(ctx)
	if !online {
		m.status.SetStatus(status.Offline)
	}

	if m.bg == nil {
		m.setFallback(true)
		m.logger.Info("Background sync not configured, using visibility triggers")
		return drained
	}

	if err := m.bg.Register(ctx, m.backgroundSync); err != nil {
		m.setFallback(true)
		m.logger.Warn("Background sync registration failed, using visibility triggers", "error", err)
		return drained
	}
	m.setFallback(false)
	return drained
}

// Stop unregisters background sync
func (m *Monitor) Stop() {
	if m.bg != nil {
		m.bg.Unregister()
	}
}

// Run probes the server every ProbeInterval until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe checks the server and records the result.
// Любой HTTP ответ означает, что сервер достижим.
func (m *Monitor) Probe(ctx context.Context) bool {
	online, _ := m.probe(ctx)
	return online
}

func (m *Monitor) probe(ctx context.Context) (online, drained bool) {
	err := m.prober.Health(ctx)
	online = err == nil || api.IsApplicationError(err)
	if err != nil {
		m.logger.Debug("Health probe failed", "error", err)
	}
	return online, m.setOnline(ctx, online)
}

// SetOnline records a connectivity report. An offline to online transition
// drains the queue synchronously; repeated reports do nothing.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.setOnline(ctx, online)
}

// setOnline возвращает true, если переход запустил проход
func (m *Monitor) setOnline(ctx context.Context, online bool) bool {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if wasOnline == online {
		return false
	}

	if !online {
		m.logger.Info("Connectivity lost")
		m.status.SetStatus(status.Offline)
		return false
	}

	m.logger.Info("Connectivity restored")
	m.status.SetStatus(status.Online)
	return m.drain(ctx, "reconnect")
}

// NotifyVisible is the visibility trigger: when background sync is not
// available and the client is online, it drains the queue.
func (m *Monitor) NotifyVisible(ctx context.Context) {
	m.mu.Lock()
	trigger := m.fallback && m.online
	m.mu.Unlock()

	if trigger {
		m.drain(ctx, "visibility")
	}
}

// IsOnline reports the last known connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// UsesFallback reports whether visibility triggers replace background sync
func (m *Monitor) UsesFallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

func (m *Monitor) setFallback(v bool) {
	m.mu.Lock()
	m.fallback = v
	m.mu.Unlock()
}

func (m *Monitor) backgroundSync(ctx context.Context) {
	if !m.IsOnline() {
		// Фоновый вызов заодно проверяет, не вернулась ли сеть
		m.Probe(ctx)
		return
	}
	m.drain(ctx, "background")
}

// drain запускает проход. Если проход уже идет, триггер запоминается, и
// после текущего прохода монитора выполняется еще один: мутации, поставленные
// после снимка очереди, не ждут следующего события.
func (m *Monitor) drain(ctx context.Context, trigger string) bool {
	for {
		res, err := m.drainer.Drain(ctx)
		switch {
		case errors.Is(err, clientsync.ErrDrainInProgress):
			m.mu.Lock()
			m.rerun = true
			m.mu.Unlock()
			m.logger.Debug("Drain already running, follow-up requested", "trigger", trigger)
			return false
		case err != nil:
			m.logger.Error("Drain failed", "trigger", trigger, "error", err)
		default:
			m.logger.Debug("Drain finished", "trigger", trigger, "succeeded", res.Succeeded, "pending", res.Pending)
		}

		m.mu.Lock()
		again := m.rerun && m.online && ctx.Err() == nil
		m.rerun = false
		m.mu.Unlock()

		if !again {
			return true
		}
		trigger = "rerun"
	}
}
