// Package config loads client and server configuration.
//
// Sources are layered, later ones win:
//
//  1. built-in defaults
//  2. optional YAML file
//  3. environment variables with the PITLANE_ prefix
//
// Command line flags are applied by the binaries on top of the result.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "PITLANE_"

// sections вложенные секции: PITLANE_SYNC_MAX_RETRIES -> sync.max_retries
var sections = []string{"sync", "log", "rate_limit"}

// LogConfig настройки логирования
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	File   string `koanf:"file"` // File пустое значение означает stderr
}

// SyncConfig настройки синхронизации
type SyncConfig struct {
	MaxRetries         int           `koanf:"max_retries" validate:"min=1"`
	MinBackoff         time.Duration `koanf:"min_backoff" validate:"min=0"`
	ProbeInterval      time.Duration `koanf:"probe_interval" validate:"gt=0"`
	BackgroundInterval time.Duration `koanf:"background_interval" validate:"min=0"` // 0 отключает фоновую синхронизацию
}

// ClientConfig конфигурация клиента
type ClientConfig struct {
	Log            LogConfig     `koanf:"log"`
	ServerURL      string        `koanf:"server_url" validate:"required,url"`
	DBPath         string        `koanf:"db_path" validate:"required"`
	Sync           SyncConfig    `koanf:"sync"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// RateLimitConfig настройки ограничения частоты запросов
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" validate:"min=0"` // RPS 0 отключает ограничение
	Burst int     `koanf:"burst" validate:"min=0"`
}

// ServerConfig конфигурация dev сервера
type ServerConfig struct {
	Log        LogConfig       `koanf:"log"`
	ListenAddr string          `koanf:"listen_addr" validate:"required"`
	DBPath     string          `koanf:"db_path" validate:"required"`
	JWTSecret  string          `koanf:"jwt_secret"` // JWTSecret пустое значение отключает аутентификацию
	RateLimit  RateLimitConfig `koanf:"rate_limit"`
	TokenTTL   time.Duration   `koanf:"token_ttl" validate:"gt=0"`
}

// DefaultClient возвращает конфигурацию клиента по умолчанию.
// Уровень warn: вывод логов не смешивается с выводом команд.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		ServerURL:      "http://localhost:8080",
		DBPath:         "pitlane-client.db",
		RequestTimeout: 10 * time.Second,
		Sync: SyncConfig{
			MaxRetries:         3,
			MinBackoff:         2 * time.Second,
			ProbeInterval:      15 * time.Second,
			BackgroundInterval: time.Minute,
		},
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

// DefaultServer возвращает конфигурацию сервера по умолчанию
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		ListenAddr: ":8080",
		DBPath:     "pitlane-server.db",
		TokenTTL:   24 * time.Hour,
		RateLimit:  RateLimitConfig{RPS: 50, Burst: 100},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// LoadClient загружает конфигурацию клиента. path может быть пустым.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := load(DefaultClient(), path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServer загружает конфигурацию сервера. path может быть пустым.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := load(DefaultServer(), path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(defaults any, path string, out any) error {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(out); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// envTransformFunc maps PITLANE_SERVER_URL to server_url and
// PITLANE_SYNC_MAX_RETRIES to sync.max_retries.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate проверяет struct теги validate
func Validate(cfg any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(cfg)
}
