// Package cli implements the pitlane client commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iudanet/pitlane/internal/client/data"
	"github.com/iudanet/pitlane/internal/client/iocli"
	"github.com/iudanet/pitlane/internal/client/status"
	"github.com/iudanet/pitlane/internal/client/storage"
	clientsync "github.com/iudanet/pitlane/internal/client/sync"
)

// Syncer запускает проход синхронизации
type Syncer interface {
	Drain(ctx context.Context) (*clientsync.Result, error)
}

// Connectivity управляет состоянием сети
type Connectivity interface {
	Start(ctx context.Context) bool
	Stop()
	Run(ctx context.Context) error
	Probe(ctx context.Context) bool
	IsOnline() bool
	NotifyVisible(ctx context.Context)
	UsesFallback() bool
}

// SessionManager хранит bearer токен
type SessionManager interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	IsLoggedIn(ctx context.Context) (bool, error)
}

// Deps зависимости CLI
type Deps struct {
	IO      iocli.IO
	Data    data.Service
	Records storage.LocalStore
	Queue   storage.MutationQueue
	Syncer  Syncer
	Conn    Connectivity
	Session SessionManager
	Status  *status.Store
	Logger  *slog.Logger
}

type Cli struct {
	io      iocli.IO
	data    data.Service
	records storage.LocalStore
	queue   storage.MutationQueue
	syncer  Syncer
	conn    Connectivity
	session SessionManager
	status  *status.Store
	logger  *slog.Logger
}

func New(d Deps) *Cli {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cli{
		io:      d.IO,
		data:    d.Data,
		records: d.Records,
		queue:   d.Queue,
		syncer:  d.Syncer,
		conn:    d.Conn,
		session: d.Session,
		status:  d.Status,
		logger:  logger,
	}
}

// command описывает команду CLI. Командам с online запускается монитор
// соединения.
type command struct {
	run    func(c *Cli, ctx context.Context, args []string) error
	online bool
}

var commands = map[string]command{
	"status": {run: (*Cli).runStatus, online: true},
	"list":   {run: (*Cli).runList, online: true},
	"get":    {run: (*Cli).runGet, online: true},
	"write":  {run: (*Cli).runWrite, online: true},
	"queue":  {run: (*Cli).runQueue, online: true},
	"sync":   {run: (*Cli).runSync, online: true},
	"watch":  {run: (*Cli).runWatch},
	"login":  {run: (*Cli).runLogin},
	"logout": {run: (*Cli).runLogout},
	"tables": {run: (*Cli).runTables},
	"clear":  {run: (*Cli).runClear},
}

// Run выполняет команду. args не включают имя команды.
func (c *Cli) Run(ctx context.Context, name string, args []string) error {
	if name == "help" {
		PrintUsage(c.io)
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", name)
	}

	if cmd.online {
		// Интерактивная команда равносильна возвращению пользователя.
		// Если очередь уже отправлена при старте, второй проход не нужен.
		drained := c.conn.Start(ctx)
		defer c.conn.Stop()
		if !drained {
			c.conn.NotifyVisible(ctx)
		}
	}

	return cmd.run(c, ctx, args)
}

func PrintUsage(out iocli.IO) {
	lines := []string{
		"Pitlane Client",
		"",
		"Usage:",
		"  pitlane [OPTIONS] COMMAND [ARGS]",
		"",
		"Options:",
		"  --version                    Show version information",
		"  --config PATH                Path to YAML config file",
		"  --server URL                 Server URL (default: http://localhost:8080)",
		"  --db PATH                    Path to local database (default: pitlane-client.db)",
		"",
		"Commands:",
		"  status                       Show sync status",
		"  tables                       List known tables",
		"  list <table>                 List records of a table",
		"  get <table> <id>             Show one record",
		"  write <METHOD> <path> [body] Send a write (POST, PUT, PATCH, DELETE)",
		"                               body is inline JSON or @file",
		"  queue                        Show queued writes",
		"  queue retry <id>             Requeue a failed write",
		"  queue discard <id>           Drop a queued write",
		"  sync                         Replay queued writes now",
		"  watch                        Keep syncing in the foreground",
		"  clear <table>                Drop cached records of a table",
		"  login [token]                Save bearer token",
		"  logout                       Remove bearer token",
		"",
		"Examples:",
		"  pitlane list pilots",
		`  pitlane write POST /pilots '{"fullName":"Ana"}'`,
		"  pitlane write PATCH /pilots/42 @pilot.json",
		"  pitlane write DELETE /races/r1",
		"  PITLANE_SERVER_URL=https://dash.example.com pitlane watch",
	}
	out.Println(strings.Join(lines, "\n"))
}

// refreshCounts обновляет счетчики очереди в статусе
func (c *Cli) refreshCounts(ctx context.Context) error {
	pending, failed, err := c.queue.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queue: %w", err)
	}
	c.status.SetCounts(pending, failed)
	return nil
}
