// Package collyfetcher implements the board list and catalog collaborators
// on top of a gocolly collector talking to the board JSON API.
package collyfetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// DefaultAPIBase is the read-only JSON API serving board lists and catalogs.
const DefaultAPIBase = "https://a.4cdn.org"

// Config controls collector behavior.
type Config struct {
	APIBase   string
	UserAgent string
	Timeout   time.Duration
}

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements alert.BoardLister and alert.CatalogFetcher using a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
	logger        *zap.Logger
}

// Throttler is implemented by limiters that can back off a host that
// answered 429 or 503.
type Throttler interface {
	Throttle(url string, d time.Duration)
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type boardsResponse struct {
	Boards []struct {
		Board string `json:"board"`
	} `json:"boards"`
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Every cycle requests the same URLs again.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		logger:        logger,
	}
}

// FetchBoards returns the live board identifiers in the order the API lists them.
func (f *Fetcher) FetchBoards(ctx context.Context) (alert.BoardList, error) {
	body, err := f.get(ctx, f.cfg.APIBase+"/boards.json")
	if err != nil {
		return nil, fmt.Errorf("%w: board list: %w", alert.ErrFetch, err)
	}
	var resp boardsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode board list: %w", alert.ErrFetch, err)
	}
	boards := make(alert.BoardList, 0, len(resp.Boards))
	seen := make(map[string]struct{}, len(resp.Boards))
	for _, b := range resp.Boards {
		if b.Board == "" {
			continue
		}
		if _, dup := seen[b.Board]; dup {
			continue
		}
		seen[b.Board] = struct{}{}
		boards = append(boards, b.Board)
	}
	f.logger.Debug("board list fetched", zap.Int("boards", len(boards)))
	return boards, nil
}

// FetchCatalog returns the paginated catalog of board.
func (f *Fetcher) FetchCatalog(ctx context.Context, board string) (alert.Catalog, error) {
	target := fmt.Sprintf("%s/%s/catalog.json", f.cfg.APIBase, url.PathEscape(board))
	body, err := f.get(ctx, target)
	if err != nil {
		return nil, &alert.BoardFetchError{Board: board, Err: err}
	}
	var catalog alert.Catalog
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, &alert.BoardFetchError{Board: board, Err: fmt.Errorf("decode catalog: %w", err)}
	}
	f.logger.Debug("catalog fetched", zap.String("board", board), zap.Int("pages", len(catalog)))
	return catalog, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("colly fetch canceled: %w", err)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	return f.runCollector(ctx, f.buildCollector(), target)
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && (r.StatusCode == http.StatusTooManyRequests || r.StatusCode == http.StatusServiceUnavailable) {
			f.throttle(r)
		}
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) throttle(r *colly.Response) {
	t, ok := f.limiter.(Throttler)
	if !ok || r.Request == nil || r.Request.URL == nil {
		return
	}
	var hint time.Duration
	if r.Headers != nil {
		hint = retryAfter(r.Headers.Get("Retry-After"))
	}
	f.logger.Warn("remote asked to slow down",
		zap.Int("status", r.StatusCode),
		zap.String("url", r.Request.URL.String()),
		zap.Duration("retry_after", hint),
	)
	t.Throttle(r.Request.URL.String(), hint)
}

// retryAfter parses a delay-seconds Retry-After value; HTTP dates yield zero.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type visitResult struct {
	body []byte
	err  error
}

// runCollector visits url on its own goroutine. The goroutine owns the
// response buffers; an abandoned visit only ever writes to the buffered channel.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) ([]byte, error) {
	done := make(chan visitResult, 1)
	go func() {
		var (
			body     []byte
			fetchErr error
		)
		f.configureCollectorHooks(collector, &body, &fetchErr)
		err := collector.Visit(url)
		switch {
		case fetchErr != nil:
			done <- visitResult{err: fmt.Errorf("colly response failed: %w", fetchErr)}
		case err != nil:
			done <- visitResult{err: fmt.Errorf("colly visit failed: %w", err)}
		default:
			done <- visitResult{body: body}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		return res.body, res.err
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
