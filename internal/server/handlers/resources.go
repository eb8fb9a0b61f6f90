package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/iudanet/pitlane/internal/models"
	"github.com/iudanet/pitlane/internal/server/storage"
	"github.com/iudanet/pitlane/pkg/api"
)

// MaxBodySize ограничение размера тела запроса
const MaxBodySize = 1 << 20

// ResourceHandler обрабатывает CRUD запросы к таблицам
type ResourceHandler struct {
	logger *slog.Logger
	store  storage.ResourceStorage
	now    func() time.Time
}

// NewResourceHandler создает новый handler ресурсов
func NewResourceHandler(logger *slog.Logger, store storage.ResourceStorage) *ResourceHandler {
	return &ResourceHandler{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// List обрабатывает GET /{table}
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	recs, err := h.store.List(r.Context(), table)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	list := make(api.ResourceList, 0, len(recs))
	for _, rec := range recs {
		list = append(list, rec.Data)
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}

// Get обрабатывает GET /{table}/{id}
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), table, id)
	if errors.Is(err, storage.ErrResourceNotFound) {
		sendError(w, h.logger, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s/%s not found", table, id))
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, rec.Data)
}

// Create обрабатывает POST /{table}.
// id из тела используется как есть, иначе сервер выдает UUID. Повторная
// отправка с тем же id заменяет ресурс.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	fields, ok := h.decodeObject(w, r)
	if !ok {
		return
	}

	if _, err := models.ExtractID(mustMarshal(fields)); err != nil {
		fields["id"] = uuid.New().String()
	}

	rec, ok := h.save(w, r, table, fields)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, rec.Data)
}

// Replace обрабатывает PUT /{table}/{id}
func (h *ResourceHandler) Replace(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	fields, ok := h.decodeObject(w, r)
	if !ok {
		return
	}
	if !h.matchID(w, fields, id) {
		return
	}
	fields["id"] = id

	rec, ok := h.save(w, r, table, fields)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rec.Data)
}

// Patch обрабатывает PATCH /{table}/{id}.
// Поля верхнего уровня заменяются, null удаляет поле.
func (h *ResourceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	patch, ok := h.decodeObject(w, r)
	if !ok {
		return
	}
	if !h.matchID(w, patch, id) {
		return
	}

	existing, err := h.store.Get(r.Context(), table, id)
	if errors.Is(err, storage.ErrResourceNotFound) {
		sendError(w, h.logger, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s/%s not found", table, id))
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	fields, err := existing.Fields()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	for k, v := range patch {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	fields["id"] = id

	rec, ok := h.save(w, r, table, fields)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rec.Data)
}

// Delete обрабатывает DELETE /{table}/{id}.
// Удаление отсутствующего ресурса не ошибка: повторная отправка безопасна.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	existed, err := h.store.Delete(r.Context(), table, id)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "resource deleted",
		slog.String("table", table), slog.String("id", id), slog.Bool("existed", existed))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ResourceHandler) table(w http.ResponseWriter, r *http.Request) (string, bool) {
	table := chi.URLParam(r, "table")
	if err := models.ValidateTable(table); err != nil {
		sendError(w, h.logger, http.StatusNotFound, CodeNotFound, err.Error())
		return "", false
	}
	return table, true
}

// decodeObject читает тело запроса как JSON объект
func (h *ResourceHandler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		sendError(w, h.logger, http.StatusBadRequest, CodeBadRequest, "failed to read request body")
		return nil, false
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		sendError(w, h.logger, http.StatusBadRequest, CodeBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return fields, true
}

func (h *ResourceHandler) matchID(w http.ResponseWriter, fields map[string]any, id string) bool {
	raw, ok := fields["id"]
	if !ok || raw == nil {
		return true
	}
	if fmt.Sprint(raw) != id {
		sendError(w, h.logger, http.StatusBadRequest, CodeBadRequest, "body id does not match path")
		return false
	}
	return true
}

func (h *ResourceHandler) save(w http.ResponseWriter, r *http.Request, table string, fields map[string]any) (*models.Record, bool) {
	rec, err := models.NewRecord(table, mustMarshal(fields))
	if err != nil {
		sendError(w, h.logger, http.StatusBadRequest, CodeBadRequest, err.Error())
		return nil, false
	}
	rec.UpdatedAt = h.now()

	if err := h.store.Upsert(r.Context(), rec); err != nil {
		h.internalError(w, r, err)
		return nil, false
	}
	return rec, true
}

func (h *ResourceHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "resource storage failed",
		slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	sendError(w, h.logger, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// mustMarshal кодирует map, полученную из JSON; ошибка невозможна
func mustMarshal(v map[string]any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
