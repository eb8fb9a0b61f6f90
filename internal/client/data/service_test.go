package data

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/pitlane/internal/client/api"
	"github.com/iudanet/pitlane/internal/client/connectivity"
	"github.com/iudanet/pitlane/internal/client/status"
	"github.com/iudanet/pitlane/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/pitlane/internal/client/sync"
	"github.com/iudanet/pitlane/internal/models"
)

// harness собирает клиент целиком поверх in-memory сервера
type harness struct {
	server  *fakeServer
	store   *boltdb.Storage
	status  *status.Store
	engine  *clientsync.Engine
	monitor *connectivity.Monitor
	svc     Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fs := newFakeServer()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := status.NewStore(status.Snapshot{})
	client := api.NewClient(srv.URL, nil, api.WithBreaker(0, time.Second), api.WithLogger(logger))
	engine := clientsync.NewEngine(store, store, store, client, st, clientsync.Config{MaxRetries: 3}, logger)
	monitor := connectivity.NewMonitor(client, engine, nil, st, connectivity.Config{}, logger)
	engine.SetOfflineReporter(monitor)

	return &harness{
		server:  fs,
		store:   store,
		status:  st,
		engine:  engine,
		monitor: monitor,
		svc:     NewService(store, store, client, monitor, st, logger),
	}
}

func (h *harness) goOffline(t *testing.T) {
	t.Helper()
	h.monitor.SetOnline(context.Background(), false)
}

func (h *harness) goOnline(t *testing.T) {
	t.Helper()
	h.monitor.SetOnline(context.Background(), true)
}

func (h *harness) queueLen(t *testing.T) int {
	t.Helper()
	list, err := h.store.ListMutations(context.Background())
	require.NoError(t, err)
	return len(list)
}

func TestWrite_OnlineSendsDirectly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.server.assignIDs = true
	h.goOnline(t)

	res, err := h.svc.Write(ctx, "POST", "/pilots", json.RawMessage(`{"fullName":"Ana"}`))
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Nil(t, res.Mutation)
	require.NotNil(t, res.Record)
	assert.Equal(t, "srv-1", res.Record.ID)

	assert.Zero(t, h.queueLen(t))

	local, err := h.store.Get(ctx, models.TablePilots, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, local)

	// Оптимистичный клиентский id заменен серверным
	all, err := h.store.Query(ctx, models.TablePilots, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWrite_OfflineQueuesAndAppliesOptimistically(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOffline(t)

	res, err := h.svc.Write(ctx, "POST", "/pilots", json.RawMessage(`{"fullName":"Ana"}`))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.NotNil(t, res.Mutation)
	require.NotNil(t, res.Record)

	// Клиентский UUID
	assert.Len(t, res.Record.ID, 36)
	assert.Empty(t, h.server.writes())

	local, err := h.store.Get(ctx, models.TablePilots, res.Record.ID)
	require.NoError(t, err)
	require.NotNil(t, local)
	pilot, err := models.Decode[models.Pilot](local)
	require.NoError(t, err)
	assert.Equal(t, "Ana", pilot.FullName)

	snap := h.status.Snapshot()
	assert.Equal(t, status.Offline, snap.Status)
	assert.Equal(t, 1, snap.PendingCount)
}

func TestWrite_OfflineCreateIsReplayedOnReconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOffline(t)

	res, err := h.svc.Write(ctx, "POST", "/pilots", json.RawMessage(`{"fullName":"Ana"}`))
	require.NoError(t, err)
	clientID := res.Record.ID

	h.goOnline(t)

	writes := h.server.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "POST", writes[0].Method)
	assert.Equal(t, "/pilots", writes[0].Path)
	assert.Equal(t, clientID, writes[0].Body["id"])
	assert.Equal(t, "Ana", writes[0].Body["fullName"])

	assert.Zero(t, h.queueLen(t))
	snap := h.status.Snapshot()
	assert.Equal(t, status.Online, snap.Status)
	assert.Equal(t, 0, snap.PendingCount)
	assert.False(t, snap.LastSyncAt.IsZero())

	local, err := h.store.Get(ctx, models.TablePilots, clientID)
	require.NoError(t, err)
	assert.NotNil(t, local)
}

func TestWrite_ThreeOfflineWritesReplayInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.server.seed("pilots", map[string]any{"id": "42", "fullName": "Ana", "number": float64(3)})
	h.goOffline(t)

	_, err := h.svc.Write(ctx, "POST", "/races", json.RawMessage(`{"id":"r1","name":"Monza"}`))
	require.NoError(t, err)
	_, err = h.svc.Write(ctx, "PATCH", "/pilots/42", json.RawMessage(`{"number":7}`))
	require.NoError(t, err)
	_, err = h.svc.Write(ctx, "DELETE", "/races/r1", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, h.queueLen(t))
	assert.Equal(t, 3, h.status.Snapshot().PendingCount)

	h.goOnline(t)

	writes := h.server.writes()
	require.Len(t, writes, 3)
	assert.Equal(t, []string{"POST /races", "PATCH /pilots/42", "DELETE /races/r1"}, []string{
		writes[0].Method + " " + writes[0].Path,
		writes[1].Method + " " + writes[1].Path,
		writes[2].Method + " " + writes[2].Path,
	})
	assert.Zero(t, h.queueLen(t))

	// Ответ сервера на PATCH заменил локальную копию полной записью
	local, err := h.store.Get(ctx, models.TablePilots, "42")
	require.NoError(t, err)
	require.NotNil(t, local)
	pilot, err := models.Decode[models.Pilot](local)
	require.NoError(t, err)
	assert.Equal(t, "Ana", pilot.FullName)
	assert.Equal(t, 7, pilot.Number)

	race, err := h.store.Get(ctx, models.TableRaces, "r1")
	require.NoError(t, err)
	assert.Nil(t, race)
}

func TestWrite_NetworkFailureQueuesAndGoesOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOnline(t)
	h.server.down.Store(true)

	res, err := h.svc.Write(ctx, "PUT", "/pilots/42", json.RawMessage(`{"fullName":"Ana"}`))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, h.monitor.IsOnline())
	assert.Equal(t, status.Offline, h.status.Snapshot().Status)

	local, err := h.store.Get(ctx, models.TablePilots, "42")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.JSONEq(t, `{"id":"42","fullName":"Ana"}`, string(local.Data))

	// Сервер вернулся: проход отправляет отложенную запись
	h.server.down.Store(false)
	h.goOnline(t)
	assert.Zero(t, h.queueLen(t))
	require.Len(t, h.server.writes(), 1)
}

func TestWrite_ApplicationErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOnline(t)

	res, err := h.svc.Write(ctx, "POST", "/transactions", json.RawMessage(`{"id":"t1","invalid":true}`))
	require.Error(t, err)
	assert.Nil(t, res)

	appErr, ok := api.AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.StatusCode)
	assert.Equal(t, "record is invalid", appErr.Message)

	assert.Zero(t, h.queueLen(t))
	local, err := h.store.Get(ctx, models.TableTransactions, "t1")
	require.NoError(t, err)
	assert.Nil(t, local)
	assert.True(t, h.monitor.IsOnline())
}

func TestWrite_OfflinePatchMergesIntoLocalRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := models.NewRecord(models.TablePilots, []byte(`{"id":"42","fullName":"Ana","number":3,"nationality":"ES"}`))
	require.NoError(t, err)
	require.NoError(t, h.store.Put(ctx, rec))
	h.goOffline(t)

	res, err := h.svc.Write(ctx, "PATCH", "/pilots/42", json.RawMessage(`{"number":7,"nationality":null}`))
	require.NoError(t, err)
	require.True(t, res.Queued)
	assert.JSONEq(t, `{"id":"42","fullName":"Ana","number":7}`, string(res.Record.Data))

	// В очереди лежит исходный PATCH, а не слитая запись
	assert.JSONEq(t, `{"number":7,"nationality":null}`, string(res.Mutation.Body))
}

func TestWrite_DirtyResourceIsQueuedBehindPendingWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOffline(t)

	_, err := h.svc.Write(ctx, "PUT", "/pilots/42", json.RawMessage(`{"fullName":"Ana"}`))
	require.NoError(t, err)

	// Сеть вернулась, но проход еще не запускался
	svc := h.svc.(*service)
	svc.conn = alwaysOnline{}

	res, err := h.svc.Write(ctx, "PATCH", "/pilots/42", json.RawMessage(`{"number":7}`))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Empty(t, h.server.writes())

	// Другая запись идет напрямую
	res, err = h.svc.Write(ctx, "PUT", "/pilots/43", json.RawMessage(`{"fullName":"Bo"}`))
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Len(t, h.server.writes(), 1)
}

type alwaysOnline struct{}

func (alwaysOnline) IsOnline() bool { return true }
func (alwaysOnline) SetOnline(context.Context, bool) {}

func TestWrite_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOffline(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		target error
	}{
		{name: "read method", method: "GET", path: "/pilots/1", target: models.ErrInvalidMethod},
		{name: "unknown table", method: "POST", path: "/chat", body: `{"text":"hi"}`, target: models.ErrUnknownTable},
		{name: "missing body", method: "PUT", path: "/pilots/1", target: ErrBodyRequired},
		{name: "delete collection", method: "DELETE", path: "/pilots"},
		{name: "post to record", method: "POST", path: "/pilots/1", body: `{"fullName":"Ana"}`},
		{name: "put to collection", method: "PUT", path: "/pilots", body: `{"id":"1"}`},
		{name: "id mismatch", method: "PUT", path: "/pilots/1", body: `{"id":"2"}`},
		{name: "not an object", method: "POST", path: "/pilots", body: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body json.RawMessage
			if tt.body != "" {
				body = json.RawMessage(tt.body)
			}
			_, err := h.svc.Write(ctx, tt.method, tt.path, body)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	assert.Zero(t, h.queueLen(t))
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.server.seed("pilots", map[string]any{"id": "42", "fullName": "Ana"})

	// Офлайн и кеш пуст: nil без ошибки
	h.goOffline(t)
	rec, err := h.svc.Read(ctx, models.TablePilots, "42")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Онлайн: запись берется с сервера и кешируется
	h.goOnline(t)
	rec, err = h.svc.Read(ctx, models.TablePilots, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"id":"42","fullName":"Ana"}`, string(rec.Data))

	// Сервер недоступен: ошибка шлюза не возвращается, отдается кеш
	h.server.down.Store(true)
	rec, err = h.svc.Read(ctx, models.TablePilots, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "42", rec.ID)
	assert.False(t, h.monitor.IsOnline())

	_, err = h.svc.Read(ctx, "chat", "1")
	assert.ErrorIs(t, err, models.ErrUnknownTable)
}

func TestRead_MissingOnServerFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.goOnline(t)

	rec, err := h.svc.Read(ctx, models.TablePilots, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, h.monitor.IsOnline())
}

func TestList_RefreshesCacheAndKeepsOptimisticCopies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.server.seed("pilots", map[string]any{"id": "1", "fullName": "Ana"})
	h.server.seed("pilots", map[string]any{"id": "2", "fullName": "Bo"})

	// Офлайн правка записи 2 еще не отправлена
	h.goOffline(t)
	_, err := h.svc.Write(ctx, "PUT", "/pilots/2", json.RawMessage(`{"fullName":"Bo (edited)"}`))
	require.NoError(t, err)

	svc := h.svc.(*service)
	svc.conn = alwaysOnline{}

	list, err := h.svc.List(ctx, models.TablePilots)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"id":"1","fullName":"Ana"}`, string(list[0].Data))
	assert.JSONEq(t, `{"id":"2","fullName":"Bo (edited)"}`, string(list[1].Data))

	// Офлайн: тот же список из кеша
	svc.conn = h.monitor
	list, err = h.svc.List(ctx, models.TablePilots)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
