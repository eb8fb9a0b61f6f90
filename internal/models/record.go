package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingID возвращается, когда JSON объект записи не содержит поле "id"
var ErrMissingID = errors.New("record has no id")

// Record представляет закешированную копию серверной сущности (CachedRecord).
// Каждая запись хранится целиком: частичных обновлений нет, любая запись
// заменяет локальную версию полностью.
type Record struct {
	UpdatedAt time.Time       `json:"updated_at"` // UpdatedAt время последней локальной записи
	Table     string          `json:"table"`      // Table таблица (тип сущности), например "pilots"
	ID        string          `json:"id"`         // ID глобально уникальный идентификатор (серверный или клиентский UUID)
	Data      json.RawMessage `json:"data"`       // Data полное JSON представление сущности, всегда содержит "id"
}

// NewRecord создает запись из JSON объекта сущности.
// Идентификатор берется из поля "id" объекта.
func NewRecord(table string, data []byte) (*Record, error) {
	id, err := ExtractID(data)
	if err != nil {
		return nil, err
	}

	return &Record{
		Table:     table,
		ID:        id,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// ExtractID достает значение поля "id" из JSON объекта.
// Числовые идентификаторы приводятся к строке.
func ExtractID(data []byte) (string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("record is not a JSON object: %w", err)
	}

	raw, ok := obj["id"]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return "", ErrMissingID
	}

	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return "", ErrMissingID
		}
		return id, nil
	}

	// Сервер может отдавать числовые ID
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", fmt.Errorf("unsupported id value %s: %w", string(raw), err)
	}
	return num.String(), nil
}

// Fields декодирует данные записи в map для слияния (PATCH) и вывода
func (r *Record) Fields() (map[string]any, error) {
	fields := make(map[string]any)
	if len(r.Data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(r.Data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s: %w", r.Table, r.ID, err)
	}
	return fields, nil
}

// Clone создает глубокую копию записи
func (r *Record) Clone() *Record {
	data := make(json.RawMessage, len(r.Data))
	copy(data, r.Data)

	return &Record{
		Table:     r.Table,
		ID:        r.ID,
		Data:      data,
		UpdatedAt: r.UpdatedAt,
	}
}

// Decode декодирует данные записи в типизированную сущность.
func Decode[T any](r *Record) (T, error) {
	var v T
	if r == nil {
		return v, fmt.Errorf("decode nil record")
	}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s/%s: %w", r.Table, r.ID, err)
	}
	return v, nil
}
