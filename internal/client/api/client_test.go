package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pitlane/pkg/api"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) {
	return "", errors.New("session storage unavailable")
}

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	client := NewClient(baseURL, nil)

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 10*time.Second, client.Timeout())
}

func TestClient_Do_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверяем метод, путь и заголовки
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pilots", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ana", body["fullName"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv-1","fullName":"Ana"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticToken("secret"))

	var result json.RawMessage
	err := client.Do(context.Background(), http.MethodPost, "/pilots", json.RawMessage(`{"fullName":"Ana"}`), &result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"srv-1","fullName":"Ana"}`, string(result))
}

func TestClient_Do_NoTokenNoHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, staticToken(""))

	var result json.RawMessage
	err := client.Do(context.Background(), http.MethodDelete, "/pilots/1", json.RawMessage(nil), &result)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestClient_Do_TokenSourceError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, failingToken{})
	err := client.Do(context.Background(), http.MethodGet, "/pilots", nil, nil)
	require.Error(t, err)
	assert.False(t, IsNetworkError(err))
	assert.False(t, IsApplicationError(err))
	assert.Zero(t, calls.Load(), "request must not be sent")
}

func TestClient_Do_ApplicationErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		expectedMsg  string
		serverFailed bool
	}{
		{
			name:        "error response with message",
			status:      http.StatusUnprocessableEntity,
			body:        `{"error":"validation_failed","message":"fullName is required"}`,
			expectedMsg: "fullName is required",
		},
		{
			name:        "error response without message",
			status:      http.StatusConflict,
			body:        `{"error":"conflict"}`,
			expectedMsg: "conflict",
		},
		{
			name:        "plain text body",
			status:      http.StatusForbidden,
			body:        "forbidden\n",
			expectedMsg: "forbidden",
		},
		{
			name:         "empty body",
			status:       http.StatusInternalServerError,
			expectedMsg:  "Internal Server Error",
			serverFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, nil)
			err := client.Do(context.Background(), http.MethodPut, "/pilots/42", map[string]string{"id": "42"}, nil)
			require.Error(t, err)

			assert.True(t, IsApplicationError(err))
			assert.False(t, IsNetworkError(err))

			appErr, ok := AsApplicationError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.expectedMsg, appErr.Message)
			assert.Equal(t, tt.serverFailed, appErr.IsServerError())
		})
	}
}

func TestClient_Do_NetworkErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		// Занимаем порт и сразу освобождаем его
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		client := NewClient("http://"+addr, nil)
		err = client.Do(context.Background(), http.MethodGet, "/pilots", nil, nil)
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
		assert.False(t, IsApplicationError(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(server.URL, nil, WithTimeout(50*time.Millisecond))
		err := client.Do(context.Background(), http.MethodGet, "/pilots", nil, nil)
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
	})
}

func TestClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithBreaker(2, time.Hour))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := client.Do(ctx, http.MethodGet, "/pilots", nil, nil)
		assert.True(t, IsApplicationError(err))
	}

	// Breaker разомкнут: запрос не уходит и классифицируется как сетевой
	err := client.Do(ctx, http.MethodGet, "/pilots", nil, nil)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CircuitBreakerIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, WithBreaker(2, time.Hour))
	for i := 0; i < 5; i++ {
		err := client.Do(context.Background(), http.MethodPost, "/pilots", map[string]string{}, nil)
		assert.True(t, IsApplicationError(err), "attempt %d", i)
	}
}

func TestClient_RedirectKeepsAuthorization(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, staticToken("secret"))
	var result map[string]string
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/old", nil, &result))
	assert.Equal(t, "1", result["id"])
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", Time: time.Now()})
			},
		},
		{
			name: "degraded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "degraded"})
			},
			wantErr: true,
		},
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			err := NewClient(server.URL, nil).Health(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
