package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/pitlane/internal/client/api"
	"github.com/iudanet/pitlane/internal/client/cli"
	"github.com/iudanet/pitlane/internal/client/connectivity"
	"github.com/iudanet/pitlane/internal/client/data"
	"github.com/iudanet/pitlane/internal/client/iocli"
	"github.com/iudanet/pitlane/internal/client/session"
	"github.com/iudanet/pitlane/internal/client/status"
	"github.com/iudanet/pitlane/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/pitlane/internal/client/sync"
	"github.com/iudanet/pitlane/internal/config"
	"github.com/iudanet/pitlane/internal/logging"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// errUsage команда не указана
var errUsage = errors.New("missing command")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errUsage) {
			cli.PrintUsage(iocli.NewStdio())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML config file")
	serverURL := flag.String("server", "", "Server URL (overrides config)")
	dbPath := flag.String("db", "", "Path to local database (overrides config)")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		return errUsage
	}
	command := args[0]

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}
	// Флаги командной строки важнее файла и окружения
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	st, err := initialStatus(ctx, boltStorage)
	if err != nil {
		return err
	}

	sessionStore := session.NewStore(boltStorage)

	apiClient := api.NewClient(cfg.ServerURL, sessionStore,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger),
	)

	engine := clientsync.NewEngine(boltStorage, boltStorage, boltStorage, apiClient, st, clientsync.Config{
		MaxRetries: cfg.Sync.MaxRetries,
		MinBackoff: cfg.Sync.MinBackoff,
	}, logger)

	monitor := connectivity.NewMonitor(
		apiClient,
		engine,
		connectivity.NewPeriodicSync(cfg.Sync.BackgroundInterval, logger),
		st,
		connectivity.Config{ProbeInterval: cfg.Sync.ProbeInterval},
		logger,
	)
	engine.SetOfflineReporter(monitor)

	dataService := data.NewService(boltStorage, boltStorage, apiClient, monitor, st, logger)

	c := cli.New(cli.Deps{
		IO:      iocli.NewStdio(),
		Data:    dataService,
		Records: boltStorage,
		Queue:   boltStorage,
		Syncer:  engine,
		Conn:    monitor,
		Session: sessionStore,
		Status:  st,
		Logger:  logger,
	})

	return c.Run(ctx, command, args[1:])
}

// initialStatus восстанавливает статус из локальной базы
func initialStatus(ctx context.Context, s *boltdb.Storage) (*status.Store, error) {
	lastSync, err := s.GetLastSyncTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync time: %w", err)
	}
	pending, failed, err := s.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}

	return status.NewStore(status.Snapshot{
		Status:       status.Offline,
		LastSyncAt:   lastSync,
		PendingCount: pending,
		FailedCount:  failed,
	}), nil
}

func printVersion() {
	fmt.Printf("Pitlane Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

