package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/iudanet/pitlane/pkg/api"
)

// DefaultTimeout ограничивает каждый запрос к серверу
const DefaultTimeout = 10 * time.Second

// TokenSource возвращает bearer токен текущей сессии.
// Пустая строка означает, что заголовок Authorization не нужен.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	tokens     TokenSource
	logger     *slog.Logger
	baseURL    string
}

// Option настраивает Client
type Option func(*options)

type options struct {
	logger           *slog.Logger
	timeout          time.Duration
	openTimeout      time.Duration
	failureThreshold uint32
}

// WithTimeout задает таймаут запроса
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger задает логгер клиента
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBreaker настраивает circuit breaker: число подряд идущих сетевых
// сбоев до размыкания и время до пробного запроса
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) Option {
	return func(o *options) {
		o.failureThreshold = failureThreshold
		o.openTimeout = openTimeout
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	o := options{
		timeout:          DefaultTimeout,
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		logger:  o.logger,
		httpClient: &http.Client{
			Timeout: o.timeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}

	logger := o.logger
	threshold := o.failureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "pitlane-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     o.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// 4xx не говорит о доступности сервера
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if appErr, ok := AsApplicationError(err); ok {
				return !appErr.IsServerError()
			}
			return false
		},
	})

	return c
}

// Timeout возвращает таймаут запроса
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Do выполняет запрос к ресурсу. body сериализуется в JSON (json.RawMessage
// передается как есть), успешный ответ декодируется в result, если он не nil.
// Ошибки: *NetworkError для сбоев транспорта, *ApplicationError для ответов вне 2xx.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if raw, ok := body.(json.RawMessage); ok && len(raw) == 0 {
		body = nil
	}
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var token string
	if c.tokens != nil {
		var err error
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get session token: %w", err)
		}
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doRequest(ctx, method, path, token, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &NetworkError{Method: method, Path: path, Err: fmt.Errorf("%w: %w", ErrCircuitOpen, err)}
		}
		return err
	}

	// Декодируем успешный ответ
	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.Do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return &ApplicationError{StatusCode: http.StatusServiceUnavailable, Message: "server status " + resp.Status}
	}
	return nil
}

// doRequest выполняет HTTP запрос и классифицирует ошибки
func (c *Client) doRequest(ctx context.Context, method, path, token string, payload []byte) ([]byte, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Request failed", "method", method, "path", path, "error", err)
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа; обрыв соединения на этом этапе тоже сетевой сбой
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("Request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ApplicationError{StatusCode: resp.StatusCode, Message: errorMessage(resp, respBody)}
	}

	return respBody, nil
}

// errorMessage достает сообщение об ошибке из тела ответа
func errorMessage(resp *http.Response, body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
