package models

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidMethod возвращается для HTTP методов, которые нельзя поставить в очередь
var ErrInvalidMethod = errors.New("method is not a queueable write")

// MutationStatus статус отложенной записи в очереди синхронизации
type MutationStatus string

const (
	MutationPending    MutationStatus = "pending"    // ожидает отправки
	MutationProcessing MutationStatus = "processing" // отправляется прямо сейчас
	MutationFailed     MutationStatus = "failed"     // попытки исчерпаны или сервер отклонил запрос
)

// Mutation представляет одну отложенную операцию записи (QueuedMutation).
// Записи упорядочены по ID (последовательность bbolt), который совпадает
// с порядком создания.
type Mutation struct {
	Timestamp     time.Time       `json:"timestamp"`                 // Timestamp время постановки в очередь
	NextAttemptAt time.Time       `json:"next_attempt_at,omitempty"` // NextAttemptAt раньше этого времени повтор не выполняется
	Method        string          `json:"method"`                    // Method POST, PUT, PATCH или DELETE
	Path          string          `json:"path"`                      // Path путь ресурса, например "/pilots/42"
	Status        MutationStatus  `json:"status"`                    // Status текущий статус
	LastError     string          `json:"last_error,omitempty"`      // LastError сообщение последней ошибки
	Body          json.RawMessage `json:"body,omitempty"`            // Body тело запроса
	ID            uint64          `json:"id"`                        // ID порядковый номер в очереди
	RetryCount    int             `json:"retry_count"`               // RetryCount количество неудачных попыток
}

// NormalizeMethod приводит метод к верхнему регистру и проверяет,
// что это операция записи.
func NormalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// IsDue сообщает, можно ли отправлять запись в момент now
func (m *Mutation) IsDue(now time.Time) bool {
	return m.NextAttemptAt.IsZero() || !now.Before(m.NextAttemptAt)
}

// Clone создает глубокую копию записи очереди
func (m *Mutation) Clone() *Mutation {
	c := *m
	if m.Body != nil {
		c.Body = append(json.RawMessage(nil), m.Body...)
	}
	return &c
}

// Target возвращает путь записи, которую затрагивает мутация. Для POST в
// коллекцию id берется из тела. ok false, если запись определить нельзя.
func (m *Mutation) Target() (ResourcePath, bool) {
	rp, err := ParsePath(m.Path)
	if err != nil {
		return ResourcePath{}, false
	}
	if rp.ID == "" {
		id, err := ExtractID(m.Body)
		if err != nil {
			return ResourcePath{}, false
		}
		rp.ID = id
	}
	return rp, true
}
