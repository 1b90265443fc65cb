package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/labels/{label}/links", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/cycles", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	busyBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "503"))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/labels/rust/links", nil),
		httptest.NewRequest(http.MethodGet, "/v1/labels/go/links", nil),
		httptest.NewRequest(http.MethodPost, "/v1/cycles", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.InDelta(t, 2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))-okBefore, 0)
	require.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "503"))-busyBefore, 0)

	// Both label requests share one route series.
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
	hist, err := httpRequestDurationSeconds.GetMetricWithLabelValues(http.MethodGet, "/v1/labels/{label}/links")
	require.NoError(t, err)
	require.NotNil(t, hist)
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	Init()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodHead, "200"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodHead, "200"))-before, 0)
}
