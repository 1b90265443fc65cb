package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

const catalogJSON = `[
  {"page": 1, "threads": [
    {"no": 111, "sub": "foobar", "com": "first <br> post"},
    {"no": 222, "com": "no subject"}
  ]},
  {"page": 2, "threads": [
    {"no": 333}
  ]}
]`

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/boards.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"boards":[{"board":"g"},{"board":"ck"},{"board":"g"},{"board":""}]}`))
	})
	mux.HandleFunc("/g/catalog.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			http.Error(w, "bad accept", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogJSON))
	})
	mux.HandleFunc("/broken/catalog.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})
	mux.HandleFunc("/busy/catalog.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	mux.HandleFunc("/down/catalog.json", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBoards(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	f := New(Config{APIBase: srv.URL + "/", UserAgent: "alerts-test"}, nil, zap.NewNop())

	boards, err := f.FetchBoards(context.Background())
	require.NoError(t, err)
	require.Equal(t, alert.BoardList{"g", "ck"}, boards)
}

func TestFetchCatalogDecodesPages(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	f := New(Config{APIBase: srv.URL}, nil, zap.NewNop())

	catalog, err := f.FetchCatalog(context.Background(), "g")
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	require.Len(t, catalog[0].Threads, 2)
	require.Equal(t, int64(111), catalog[0].Threads[0].No)
	require.Equal(t, "foobar", *catalog[0].Threads[0].Subject)
	require.Nil(t, catalog[0].Threads[1].Subject)
	require.Nil(t, catalog[1].Threads[0].Comment)

	// Revisiting the same URL in a later cycle must work.
	again, err := f.FetchCatalog(context.Background(), "g")
	require.NoError(t, err)
	require.Equal(t, catalog, again)
}

func TestFetchCatalogErrors(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	f := New(Config{APIBase: srv.URL, Timeout: time.Second}, nil, zap.NewNop())

	for _, board := range []string{"down", "broken", "missing"} {
		_, err := f.FetchCatalog(context.Background(), board)
		require.Error(t, err, board)
		require.ErrorIs(t, err, alert.ErrFetch)

		var boardErr *alert.BoardFetchError
		require.True(t, errors.As(err, &boardErr))
		require.Equal(t, board, boardErr.Board)
	}
}

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return w.err
}

func TestFetcherUsesLimiter(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	waiter := &countingWaiter{}
	f := New(Config{APIBase: srv.URL}, waiter, zap.NewNop())

	_, err := f.FetchBoards(context.Background())
	require.NoError(t, err)
	_, err = f.FetchCatalog(context.Background(), "g")
	require.NoError(t, err)
	require.EqualValues(t, 2, waiter.calls.Load())

	waiter.err = errors.New("limited")
	_, err = f.FetchBoards(context.Background())
	require.ErrorIs(t, err, alert.ErrFetch)
}

type throttlingWaiter struct {
	countingWaiter
	mu        sync.Mutex
	throttled map[string]time.Duration
}

func (w *throttlingWaiter) Throttle(url string, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.throttled[url] = d
}

func TestFetcherThrottlesOnTooManyRequests(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	waiter := &throttlingWaiter{throttled: map[string]time.Duration{}}
	f := New(Config{APIBase: srv.URL}, waiter, zap.NewNop())

	_, err := f.FetchCatalog(context.Background(), "busy")
	require.ErrorIs(t, err, alert.ErrFetch)

	waiter.mu.Lock()
	defer waiter.mu.Unlock()
	require.Equal(t, map[string]time.Duration{srv.URL + "/busy/catalog.json": 7 * time.Second}, waiter.throttled)
}

func TestFetcherDoesNotThrottleOnServerError(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	waiter := &throttlingWaiter{throttled: map[string]time.Duration{}}
	f := New(Config{APIBase: srv.URL}, waiter, zap.NewNop())

	_, err := f.FetchCatalog(context.Background(), "down")
	require.Error(t, err)

	waiter.mu.Lock()
	defer waiter.mu.Unlock()
	require.Empty(t, waiter.throttled)
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3*time.Second, retryAfter(" 3 "))
	require.Zero(t, retryAfter(""))
	require.Zero(t, retryAfter("-1"))
	require.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t)
	f := New(Config{APIBase: srv.URL}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchBoards(ctx)
	require.Error(t, err)
}

func TestFetchCatalogAbandonedOnCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(catalogJSON))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	f := New(Config{APIBase: srv.URL, Timeout: 5 * time.Second}, nil, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.FetchCatalog(ctx, "g")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, alert.ErrFetch)
	require.Less(t, time.Since(start), time.Second)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	var body []byte
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "application/json", collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("[]")})
	require.Equal(t, []byte("[]"), body)

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.EqualError(t, fetchErr, "status 404: Not Found")

	hooks.onError(nil, errors.New("dial"))
	require.EqualError(t, fetchErr, "dial")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "ua"}, nil, nil)
	require.Equal(t, DefaultAPIBase, f.cfg.APIBase)
	require.Equal(t, 15*time.Second, f.cfg.Timeout)
	require.Equal(t, "ua", f.buildCollector().UserAgent)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
