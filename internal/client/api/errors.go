package api

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen возвращается (внутри NetworkError), когда circuit breaker
// не пропускает запросы к серверу
var ErrCircuitOpen = errors.New("circuit breaker is open")

// NetworkError описывает сбой транспорта: таймаут, отказ в соединении,
// ошибку DNS или открытый circuit breaker. Такие запросы можно повторять.
type NetworkError struct {
	Err    error
	Method string
	Path   string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ApplicationError описывает ответ сервера со статусом вне 2xx.
// Повтор такого запроса дает тот же результат.
type ApplicationError struct {
	Message    string
	StatusCode int
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsServerError сообщает, что ошибка на стороне сервера (5xx)
func (e *ApplicationError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsNetworkError reports whether err is a transport-level failure
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsApplicationError reports whether err is a non-2xx server response
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// AsApplicationError извлекает ApplicationError из цепочки ошибок
func AsApplicationError(err error) (*ApplicationError, bool) {
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
