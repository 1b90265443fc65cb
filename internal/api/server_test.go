package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/clock/system"
	"github.com/JakeFAU/catalog-alerts/internal/dispatcher"
	"github.com/JakeFAU/catalog-alerts/internal/id/uuid"
	queueMemory "github.com/JakeFAU/catalog-alerts/internal/queue/memory"
	storeMemory "github.com/JakeFAU/catalog-alerts/internal/storage/memory"
)

type testEnv struct {
	server *Server
	queue  *queueMemory.Queue
	cycles *storeMemory.CycleStore
	cache  *storeMemory.LinkCacheStore
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	q := queueMemory.NewQueue(1)
	cycles := storeMemory.NewCycleStore()
	cache := storeMemory.NewLinkCacheStore(alert.LinkCache{
		"L1": {"https://x/b/thread/1", "https://x/b/thread/2", "https://x/b/thread/3"},
		"L0": {},
	})
	d := dispatcher.New(q, cycles, uuid.New(), system.NewManual(time.Unix(100, 0)), nil, dispatcher.Config{}, nil)
	return &testEnv{
		server: NewServer(cycles, d, cache, opts, zap.NewNop()),
		queue:  q,
		cycles: cycles,
		cache:  cache,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SubmitCycle_Succeeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "queued", body["status"])
	require.True(t, uuid.Valid(body["cycle_id"]))

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, body["cycle_id"], item.CycleID)
}

func TestServer_SubmitCycle_QueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusAccepted, env.do(httptest.NewRequest(http.MethodPost, "/v1/cycles", nil)).Code)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_GetCycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	submit := env.do(httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))
	var created map[string]string
	require.NoError(t, json.Unmarshal(submit.Body.Bytes(), &created))
	id := created["cycle_id"]

	report := &alert.CycleReport{CycleID: id, WebhooksNotified: []string{"w1"}}
	require.NoError(t, env.cycles.UpdateCycleStatus(context.Background(), id, alert.CycleStatusSucceeded, "", report))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cycles/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Cycle alert.Cycle `json:"cycle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, alert.CycleStatusSucceeded, body.Cycle.Status)
	require.Equal(t, []string{"w1"}, body.Cycle.Report.WebhooksNotified)
}

func TestServer_GetCycle_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/cycles/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/cycles/01890a5d-ac96-774b-bcce-b302099a8057", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{APIKey: "secret"})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/cycles", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/cycles", nil)
	req.Header.Set("X-API-Key", "secret")
	require.Equal(t, http.StatusAccepted, env.do(req).Code)

	// Probes stay open.
	require.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	require.Equal(t, http.StatusOK, env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	failing := newTestEnv(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	require.Equal(t, http.StatusServiceUnavailable, failing.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
}

func TestServer_MetricsAndRequestID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
