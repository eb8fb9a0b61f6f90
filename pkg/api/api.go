// Package api содержит DTO, общие для клиента и сервера.
package api

import (
	"encoding/json"
	"time"
)

// ErrorResponse представляет ответ сервера с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // Error короткий код ошибки
	Message string `json:"message,omitempty"` // Message человекочитаемое описание
}

// HealthResponse представляет ответ GET /health
type HealthResponse struct {
	Time   time.Time `json:"time"`
	Status string    `json:"status"`
}

// ResourceList представляет ответ GET /{resource}
type ResourceList []json.RawMessage

// TokenResponse представляет выпущенный сервером bearer токен
type TokenResponse struct {
	ExpiresAt   time.Time `json:"expires_at"`
	AccessToken string    `json:"access_token"`
	Subject     string    `json:"subject"`
}
