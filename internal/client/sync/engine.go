package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/iudanet/pitlane/internal/client/api"
	"github.com/iudanet/pitlane/internal/client/status"
	"github.com/iudanet/pitlane/internal/client/storage"
	"github.com/iudanet/pitlane/internal/models"
)

// ErrDrainInProgress возвращается, если проход синхронизации уже выполняется
var ErrDrainInProgress = errors.New("sync drain already in progress")

const (
	// DefaultMaxRetries бюджет попыток одной мутации
	DefaultMaxRetries = 3
	// DefaultMinBackoff минимальная пауза между попытками одной мутации
	DefaultMinBackoff = 2 * time.Second
)

// Gateway отправляет запросы на сервер
type Gateway interface {
	Do(ctx context.Context, method, path string, body, result any) error
}

// OfflineReporter получает сигнал о сетевом сбое во время прохода
type OfflineReporter interface {
	SetOnline(ctx context.Context, online bool)
}

// Config настройки движка синхронизации
type Config struct {
	MaxRetries int           // MaxRetries число попыток до перевода в failed
	MinBackoff time.Duration // MinBackoff 0 отключает паузу между попытками
}

// Result contains drain pass results
type Result struct {
	Attempted int // количество отправленных мутаций
	Succeeded int // количество принятых сервером
	Retried   int // количество возвращенных в pending после сетевого сбоя
	Failed    int // количество переведенных в failed
	Skipped   int // количество пропущенных из-за паузы между попытками
	Pending   int // размер очереди pending после прохода
}

// Engine replays the mutation queue through the gateway in creation order.
// Одновременно выполняется не более одного прохода.
type Engine struct {
	queue   storage.MutationQueue
	store   storage.LocalStore
	meta    storage.MetadataStorage
	gateway Gateway
	status  *status.Store
	offline OfflineReporter
	logger  *slog.Logger
	now     func() time.Time
	cfg     Config
	running atomic.Bool
}

// NewEngine creates a new sync engine
func NewEngine(
	queue storage.MutationQueue,
	store storage.LocalStore,
	meta storage.MetadataStorage,
	gateway Gateway,
	st *status.Store,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MinBackoff < 0 {
		cfg.MinBackoff = 0
	}

	return &Engine{
		queue:   queue,
		store:   store,
		meta:    meta,
		gateway: gateway,
		status:  st,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetOfflineReporter подключает получателя сигналов о потере сети
func (e *Engine) SetOfflineReporter(r OfflineReporter) {
	e.offline = r
}

// Running сообщает, выполняется ли сейчас проход
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Drain replays every pending mutation once, in creation order.
// Ошибка одной мутации не прерывает проход. Ошибка возвращается только
// если проход не удалось начать или хранилище отказало во время прохода.
func (e *Engine) Drain(ctx context.Context) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer e.running.Store(false)

	e.logger.Info("Starting sync drain")
	e.status.SetStatus(status.Syncing)

	// Записи в processing остались от прерванного процесса
	reset, err := e.queue.ResetProcessing(ctx)
	if err != nil {
		return nil, e.fail(fmt.Errorf("failed to recover queue: %w", err))
	}
	if reset > 0 {
		e.logger.Warn("Recovered interrupted mutations", "count", reset)
	}

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return nil, e.fail(fmt.Errorf("failed to list pending mutations: %w", err))
	}

	e.logger.Info("Collected pending mutations", "count", len(pending))

	result := &Result{}
	networkDown := false
	// Записи, у которых осталась неотправленная мутация в этом проходе.
	// Более поздние мутации той же записи ждут следующего прохода.
	held := make(map[string]bool)

	for _, m := range pending {
		if ctx.Err() != nil {
			break
		}

		key := ""
		if target, ok := m.Target(); ok {
			key = target.String()
		}
		if key != "" && held[key] {
			result.Skipped++
			continue
		}

		if !m.IsDue(e.now()) {
			result.Skipped++
			if key != "" {
				held[key] = true
			}
			continue
		}

		outcome, err := e.replay(ctx, m)
		if err != nil {
			return result, e.fail(err)
		}

		switch outcome {
		case outcomeSucceeded:
			result.Attempted++
			result.Succeeded++
		case outcomeRetried:
			result.Attempted++
			result.Retried++
			networkDown = true
			if key != "" {
				held[key] = true
			}
		case outcomeFailed:
			result.Attempted++
			result.Failed++
		case outcomeFailedNetwork:
			result.Attempted++
			result.Failed++
			networkDown = true
		case outcomeInterrupted:
			// Запись останется в processing и вернется в pending в следующем проходе
		case outcomeGone:
		}
	}

	pendingCount, failedCount, err := e.queue.Counts(ctx)
	if err != nil {
		return result, e.fail(fmt.Errorf("failed to count queue: %w", err))
	}
	result.Pending = pendingCount

	syncedAt := e.now().UTC()
	e.status.MarkSynced(syncedAt, pendingCount, failedCount)
	if e.meta != nil {
		if err := e.meta.SaveLastSyncTime(ctx, syncedAt); err != nil {
			e.logger.Warn("Failed to save last sync time", "error", err)
		}
	}

	if networkDown {
		e.status.SetStatus(status.Offline)
		if e.offline != nil {
			e.offline.SetOnline(ctx, false)
		}
	} else {
		e.status.SetStatus(status.Online)
	}

	e.logger.Info("Sync drain completed",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"retried", result.Retried,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"pending", result.Pending)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("sync drain interrupted: %w", err)
	}

	return result, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRetried
	outcomeFailed
	outcomeFailedNetwork
	outcomeInterrupted
	outcomeGone
)

// replay отправляет одну мутацию и фиксирует результат в очереди.
// Возвращаемая ошибка означает отказ хранилища.
func (e *Engine) replay(ctx context.Context, m *models.Mutation) (outcome, error) {
	if err := e.queue.MarkProcessing(ctx, m.ID); err != nil {
		// Запись удалили или отправили в failed после снимка очереди
		if errors.Is(err, storage.ErrMutationNotFound) || errors.Is(err, storage.ErrInvalidTransition) {
			e.logger.Debug("Mutation changed since snapshot", "id", m.ID, "error", err)
			return outcomeGone, nil
		}
		return 0, fmt.Errorf("failed to mark mutation %d processing: %w", m.ID, err)
	}

	var resp json.RawMessage
	sendErr := e.gateway.Do(ctx, m.Method, m.Path, m.Body, &resp)

	if sendErr == nil {
		if err := e.queue.MarkSucceeded(ctx, m.ID); err != nil {
			return 0, fmt.Errorf("failed to remove mutation %d: %w", m.ID, err)
		}
		e.reconcile(ctx, m, resp)
		e.logger.Debug("Mutation replayed", "id", m.ID, "method", m.Method, "path", m.Path)
		return outcomeSucceeded, nil
	}

	if ctx.Err() != nil {
		return outcomeInterrupted, nil
	}

	reason := sendErr.Error()
	if appErr, ok := api.AsApplicationError(sendErr); ok {
		// Сервер отклонил запрос: повтор даст тот же ответ
		reason = appErr.Message
		if err := e.queue.MarkFailed(ctx, m.ID, reason); err != nil {
			return 0, fmt.Errorf("failed to mark mutation %d failed: %w", m.ID, err)
		}
		e.logger.Warn("Mutation rejected by server",
			"id", m.ID, "method", m.Method, "path", m.Path,
			"status", appErr.StatusCode, "error", reason)
		return outcomeFailed, nil
	}

	// Сетевой сбой: расходуем одну попытку из бюджета
	if m.RetryCount+1 >= e.cfg.MaxRetries {
		if err := e.queue.MarkFailed(ctx, m.ID, reason); err != nil {
			return 0, fmt.Errorf("failed to mark mutation %d failed: %w", m.ID, err)
		}
		e.logger.Warn("Mutation retries exhausted",
			"id", m.ID, "method", m.Method, "path", m.Path,
			"attempts", m.RetryCount+1, "error", reason)
		return outcomeFailedNetwork, nil
	}

	var notBefore time.Time
	if e.cfg.MinBackoff > 0 {
		notBefore = e.now().Add(e.cfg.MinBackoff).UTC()
	}
	if err := e.queue.MarkRetry(ctx, m.ID, reason, notBefore); err != nil {
		return 0, fmt.Errorf("failed to requeue mutation %d: %w", m.ID, err)
	}
	e.logger.Info("Mutation requeued",
		"id", m.ID, "method", m.Method, "path", m.Path,
		"attempts", m.RetryCount+1, "error", reason)
	return outcomeRetried, nil
}

// reconcile заменяет оптимистичную копию записи ответом сервера.
// Сбой локальной записи не отменяет успешную отправку.
func (e *Engine) reconcile(ctx context.Context, m *models.Mutation, resp json.RawMessage) {
	rp, err := models.ParsePath(m.Path)
	if err != nil {
		e.logger.Debug("Skipping reconcile for non-resource path", "path", m.Path)
		return
	}

	if m.Method == http.MethodDelete {
		if rp.ID != "" && !e.hasLaterWrites(ctx, m, rp.Table, rp.ID) {
			if err := e.store.Delete(ctx, rp.Table, rp.ID); err != nil {
				e.logger.Warn("Failed to remove deleted record", "table", rp.Table, "id", rp.ID, "error", err)
			}
		}
		return
	}

	rec, err := models.NewRecord(rp.Table, resp)
	if err != nil {
		// Сервер не вернул объект: оставляем оптимистичную копию
		return
	}

	// Сервер мог присвоить созданной записи собственный id
	optimisticID := rp.ID
	if m.Method == http.MethodPost && optimisticID == "" {
		optimisticID, _ = models.ExtractID(m.Body)
	}

	if e.hasLaterWrites(ctx, m, rp.Table, optimisticID, rec.ID) {
		return
	}
	if optimisticID != "" && optimisticID != rec.ID {
		if err := e.store.Delete(ctx, rp.Table, optimisticID); err != nil {
			e.logger.Warn("Failed to remove optimistic record", "table", rp.Table, "id", optimisticID, "error", err)
		}
	}

	if err := e.store.Put(ctx, rec); err != nil {
		e.logger.Warn("Failed to store server record", "table", rp.Table, "id", rec.ID, "error", err)
	}
}

// hasLaterWrites сообщает, есть ли в очереди более поздние неотправленные
// мутации тех же записей. Их оптимистичная копия новее ответа сервера.
// При ошибке чтения очереди локальная копия тоже сохраняется.
func (e *Engine) hasLaterWrites(ctx context.Context, m *models.Mutation, table string, ids ...string) bool {
	list, err := e.queue.ListMutations(ctx)
	if err != nil {
		e.logger.Warn("Failed to read queue, keeping local copy", "table", table, "error", err)
		return true
	}

	for _, later := range list {
		if later.ID <= m.ID || later.Status == models.MutationFailed {
			continue
		}
		target, ok := later.Target()
		if !ok || target.Table != table {
			continue
		}
		for _, id := range ids {
			if id != "" && id == target.ID {
				e.logger.Debug("Keeping optimistic copy, later writes pending",
					"table", table, "id", id, "mutation", later.ID)
				return true
			}
		}
	}
	return false
}

// fail публикует статус error и возвращает err
func (e *Engine) fail(err error) error {
	e.logger.Error("Sync drain failed", "error", err)
	e.status.SetError(err)
	return err
}
