package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/iudanet/pitlane/internal/client/api"
	"github.com/iudanet/pitlane/internal/client/status"
	"github.com/iudanet/pitlane/internal/client/storage"
	"github.com/iudanet/pitlane/internal/models"
)

// ErrBodyRequired возвращается для POST, PUT и PATCH без тела
var ErrBodyRequired = errors.New("request body is required")

// Gateway отправляет запросы на сервер
type Gateway interface {
	Do(ctx context.Context, method, path string, body, result any) error
}

// Connectivity сообщает и принимает состояние сети
type Connectivity interface {
	IsOnline() bool
	SetOnline(ctx context.Context, online bool)
}

// Service определяет интерфейс чтения и записи данных дашборда
type Service interface {
	// Read возвращает запись: с сервера, если он доступен, иначе из локального кеша.
	// Отсутствующая запись дает nil без ошибки.
	Read(ctx context.Context, table, id string) (*models.Record, error)

	// List возвращает все записи таблицы
	List(ctx context.Context, table string) ([]*models.Record, error)

	// Write отправляет запись на сервер или ставит ее в очередь
	Write(ctx context.Context, method, path string, body json.RawMessage) (*WriteResult, error)
}

// WriteResult описывает результат записи
type WriteResult struct {
	Record   *models.Record   // Record локальная версия записи после операции, nil для DELETE
	Mutation *models.Mutation // Mutation запись очереди, если запись отложена
	Queued   bool             // Queued запись будет отправлена при следующей синхронизации
}

// service реализует offline-first доступ к данным
type service struct {
	store   storage.LocalStore
	queue   storage.MutationQueue
	gateway Gateway
	conn    Connectivity
	status  *status.Store
	logger  *slog.Logger
}

// NewService creates a new data service
func NewService(
	store storage.LocalStore,
	queue storage.MutationQueue,
	gateway Gateway,
	conn Connectivity,
	st *status.Store,
	logger *slog.Logger,
) Service {
	return &service{
		store:   store,
		queue:   queue,
		gateway: gateway,
		conn:    conn,
		status:  st,
		logger:  logger,
	}
}

// Read returns a record, preferring the server when it is reachable
func (s *service) Read(ctx context.Context, table, id string) (*models.Record, error) {
	if err := models.ValidateTable(table); err != nil {
		return nil, err
	}

	if s.conn.IsOnline() {
		rec, err := s.fetchOne(ctx, table, id)
		if err == nil {
			return rec, nil
		}
		s.logger.Debug("Falling back to local store", "table", table, "id", id, "error", err)
	}

	return s.store.Get(ctx, table, id)
}

func (s *service) fetchOne(ctx context.Context, table, id string) (*models.Record, error) {
	path := models.ResourcePath{Table: table, ID: id}.String()

	var raw json.RawMessage
	if err := s.gateway.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		s.noteFailure(ctx, err)
		return nil, err
	}

	rec, err := models.NewRecord(table, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server record: %w", err)
	}

	dirty, err := s.dirtyIDs(ctx, table)
	if err != nil {
		return nil, err
	}
	if dirty[rec.ID] {
		// Локальная версия новее серверной, пока мутации не отправлены
		return s.store.Get(ctx, table, rec.ID)
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record of a table, refreshing the cache when online
func (s *service) List(ctx context.Context, table string) ([]*models.Record, error) {
	if err := models.ValidateTable(table); err != nil {
		return nil, err
	}

	if s.conn.IsOnline() {
		if err := s.refreshTable(ctx, table); err != nil {
			s.logger.Debug("Falling back to local store", "table", table, "error", err)
		}
	}

	return s.store.Query(ctx, table, nil)
}

func (s *service) refreshTable(ctx context.Context, table string) error {
	var items []json.RawMessage
	if err := s.gateway.Do(ctx, http.MethodGet, "/"+table, nil, &items); err != nil {
		s.noteFailure(ctx, err)
		return err
	}

	dirty, err := s.dirtyIDs(ctx, table)
	if err != nil {
		return err
	}

	recs := make([]*models.Record, 0, len(items))
	for _, item := range items {
		rec, err := models.NewRecord(table, item)
		if err != nil {
			s.logger.Warn("Skipping invalid server record", "table", table, "error", err)
			continue
		}
		if dirty[rec.ID] {
			continue
		}
		recs = append(recs, rec)
	}

	return s.store.BulkPut(ctx, table, recs)
}

// Write sends a write to the server or queues it when the server is unreachable.
// Ответ сервера с ошибкой возвращается вызывающему и ничего не ставит в очередь.
func (s *service) Write(ctx context.Context, method, path string, body json.RawMessage) (*WriteResult, error) {
	method, err := models.NormalizeMethod(method)
	if err != nil {
		return nil, err
	}

	rp, err := models.ParsePath(path)
	if err != nil {
		return nil, err
	}

	body, err = prepareBody(method, rp, body)
	if err != nil {
		return nil, err
	}

	m := &models.Mutation{Method: method, Path: rp.String(), Body: body}

	if !s.conn.IsOnline() {
		return s.enqueue(ctx, m, rp)
	}

	// Новые записи в ресурс с неотправленными мутациями встают за ними в очередь
	dirty, err := s.dirtyIDs(ctx, rp.Table)
	if err != nil {
		return nil, err
	}
	if id := recordID(rp, body); id != "" && dirty[id] {
		return s.enqueue(ctx, m, rp)
	}

	var resp json.RawMessage
	if err := s.gateway.Do(ctx, method, m.Path, body, &resp); err != nil {
		if api.IsNetworkError(err) {
			s.noteFailure(ctx, err)
			return s.enqueue(ctx, m, rp)
		}
		return nil, err
	}

	rec, err := s.applyConfirmed(ctx, m, rp, resp)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Record: rec}, nil
}

func (s *service) enqueue(ctx context.Context, m *models.Mutation, rp models.ResourcePath) (*WriteResult, error) {
	queued, err := s.queue.Enqueue(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to queue write: %w", err)
	}

	s.logger.Info("Write queued", "id", queued.ID, "method", queued.Method, "path", queued.Path)

	rec, err := s.applyOptimistic(ctx, m, rp)
	if err != nil {
		// Мутация уже в очереди; локальная копия обновится после синхронизации
		s.logger.Warn("Failed to apply queued write locally", "path", m.Path, "error", err)
	}

	s.refreshCounts(ctx)

	return &WriteResult{Record: rec, Mutation: queued, Queued: true}, nil
}

// applyOptimistic применяет мутацию к локальному кешу до подтверждения сервером
func (s *service) applyOptimistic(ctx context.Context, m *models.Mutation, rp models.ResourcePath) (*models.Record, error) {
	switch m.Method {
	case http.MethodDelete:
		return nil, s.store.Delete(ctx, rp.Table, rp.ID)
	case http.MethodPatch:
		rec, err := s.mergePatch(ctx, rp, m.Body)
		if err != nil {
			return nil, err
		}
		return rec, s.store.Put(ctx, rec)
	default:
		rec, err := models.NewRecord(rp.Table, m.Body)
		if err != nil {
			return nil, err
		}
		return rec, s.store.Put(ctx, rec)
	}
}

// applyConfirmed сохраняет подтвержденную сервером запись
func (s *service) applyConfirmed(ctx context.Context, m *models.Mutation, rp models.ResourcePath, resp json.RawMessage) (*models.Record, error) {
	if m.Method == http.MethodDelete {
		return nil, s.store.Delete(ctx, rp.Table, rp.ID)
	}

	rec, err := models.NewRecord(rp.Table, resp)
	if err != nil {
		// Сервер не вернул объект: сохраняем то, что отправили
		return s.applyOptimistic(ctx, m, rp)
	}

	if sentID := recordID(rp, m.Body); sentID != "" && sentID != rec.ID {
		if err := s.store.Delete(ctx, rp.Table, sentID); err != nil {
			return nil, err
		}
	}
	return rec, s.store.Put(ctx, rec)
}

// mergePatch накладывает PATCH на полную локальную версию записи.
// null удаляет поле.
func (s *service) mergePatch(ctx context.Context, rp models.ResourcePath, patch json.RawMessage) (*models.Record, error) {
	fields := map[string]any{}

	existing, err := s.store.Get(ctx, rp.Table, rp.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if fields, err = existing.Fields(); err != nil {
			return nil, err
		}
	}

	var changes map[string]any
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("patch body is not a JSON object: %w", err)
	}
	for k, v := range changes {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	fields["id"] = rp.ID

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged record: %w", err)
	}
	return models.NewRecord(rp.Table, data)
}

// dirtyIDs возвращает id записей таблицы с неотправленными мутациями
func (s *service) dirtyIDs(ctx context.Context, table string) (map[string]bool, error) {
	list, err := s.queue.ListMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	dirty := make(map[string]bool)
	for _, m := range list {
		if m.Status == models.MutationFailed {
			continue
		}
		if target, ok := m.Target(); ok && target.Table == table {
			dirty[target.ID] = true
		}
	}
	return dirty, nil
}

func (s *service) refreshCounts(ctx context.Context) {
	pending, failed, err := s.queue.Counts(ctx)
	if err != nil {
		s.logger.Warn("Failed to count queue", "error", err)
		return
	}
	s.status.SetCounts(pending, failed)
}

// noteFailure сообщает монитору о потере сети
func (s *service) noteFailure(ctx context.Context, err error) {
	if api.IsNetworkError(err) {
		s.conn.SetOnline(ctx, false)
	}
}

// recordID возвращает id записи, которую затрагивает мутация
func recordID(rp models.ResourcePath, body json.RawMessage) string {
	if rp.ID != "" {
		return rp.ID
	}
	id, _ := models.ExtractID(body)
	return id
}

// prepareBody проверяет тело запроса и при необходимости дописывает id.
// POST без id получает клиентский UUID.
func prepareBody(method string, rp models.ResourcePath, body json.RawMessage) (json.RawMessage, error) {
	if method == http.MethodDelete {
		if rp.ID == "" {
			return nil, fmt.Errorf("DELETE requires a record path, got %s", rp)
		}
		return nil, nil
	}

	if len(body) == 0 {
		return nil, ErrBodyRequired
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}

	switch method {
	case http.MethodPost:
		if rp.ID != "" {
			return nil, fmt.Errorf("POST requires a collection path, got %s", rp)
		}
		if _, err := models.ExtractID(body); err != nil {
			id, _ := json.Marshal(uuid.New().String())
			obj["id"] = id
		}
	default:
		if rp.ID == "" {
			return nil, fmt.Errorf("%s requires a record path, got %s", method, rp)
		}
		if bodyID, err := models.ExtractID(body); err == nil && bodyID != rp.ID {
			return nil, fmt.Errorf("body id %q does not match path id %q", bodyID, rp.ID)
		}
		if method == http.MethodPut {
			id, _ := json.Marshal(rp.ID)
			obj["id"] = id
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	return out, nil
}
