package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/pitlane/internal/config"
	"github.com/iudanet/pitlane/internal/logging"
	"github.com/iudanet/pitlane/internal/server"
	"github.com/iudanet/pitlane/internal/server/jwt"
	"github.com/iudanet/pitlane/internal/server/middleware"
	"github.com/iudanet/pitlane/internal/server/storage/sqlite"
	"github.com/iudanet/pitlane/pkg/api"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// shutdownTimeout время на завершение активных запросов
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [serve | token <subject>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return nil
	}

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		return err
	}
	// Флаги командной строки важнее файла и окружения
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "token":
		if len(args) != 2 {
			return errors.New("usage: token <subject>")
		}
		return mintToken(cfg, args[1])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func serve(cfg *config.ServerConfig) error {
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	deps := server.Deps{
		Logger:  logger,
		Store:   store,
		Metrics: middleware.NewMetrics(),
	}
	if cfg.RateLimit.RPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		defer limiter.Stop()
		deps.Limiter = limiter
	}
	if cfg.JWTSecret != "" {
		deps.Tokens = jwt.NewService(cfg.JWTSecret, cfg.TokenTTL)
	} else {
		logger.Warn("jwt_secret is empty, authentication disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Pitlane server starting", "addr", cfg.ListenAddr, "db", cfg.DBPath, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// mintToken выпускает токен для клиента и печатает его в JSON
func mintToken(cfg *config.ServerConfig, subject string) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is not configured, authentication is disabled")
	}

	token, expiresAt, err := jwt.NewService(cfg.JWTSecret, cfg.TokenTTL).Issue(subject)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(api.TokenResponse{
		AccessToken: token,
		Subject:     subject,
		ExpiresAt:   expiresAt,
	})
}

func printVersion() {
	fmt.Printf("Pitlane Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
