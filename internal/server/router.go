// Package server собирает HTTP маршруты dev сервера
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/pitlane/internal/server/handlers"
	"github.com/iudanet/pitlane/internal/server/middleware"
	"github.com/iudanet/pitlane/internal/server/storage"
)

// Служебные пути, не требующие токена
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Deps зависимости роутера
type Deps struct {
	Logger  *slog.Logger
	Store   storage.ResourceStorage
	Metrics *middleware.Metrics
	Limiter *middleware.RateLimiter   // Limiter nil отключает ограничение частоты
	Tokens  middleware.TokenValidator // Tokens nil отключает аутентификацию
}

// NewRouter создает chi роутер с middleware и маршрутами ресурсов
func NewRouter(d Deps) http.Handler {
	health := handlers.NewHealthHandler(d.Logger, d.Store)
	resources := handlers.NewResourceHandler(d.Logger, d.Store)

	r := chi.NewRouter()

	// Порядок важен: recovery снаружи, чтобы перехватить панику любого слоя
	r.Use(middleware.RecoveryMiddleware(d.Logger))
	r.Use(middleware.LoggingWithSkip(d.Logger, []string{HealthPath, MetricsPath}))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}
	if d.Tokens != nil {
		r.Use(middleware.AuthMiddleware(d.Logger, d.Tokens, HealthPath, MetricsPath))
	}

	r.Get(HealthPath, health.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, MetricsPath, d.Metrics.Handler())
	}

	r.Get("/{table}", resources.List)
	r.Post("/{table}", resources.Create)
	r.Get("/{table}/{id}", resources.Get)
	r.Put("/{table}/{id}", resources.Replace)
	r.Patch("/{table}/{id}", resources.Patch)
	r.Delete("/{table}/{id}", resources.Delete)

	return r
}
