// Package poller runs one catalog-alerts cycle: fetch subscriptions and
// boards, route, scan catalogs, aggregate, diff against the link cache, then
// dispatch and persist.
package poller

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/clock/system"
	"github.com/JakeFAU/catalog-alerts/internal/matcher"
	"github.com/JakeFAU/catalog-alerts/internal/metrics"
	"github.com/JakeFAU/catalog-alerts/internal/pipeline"
)

const tracerName = "github.com/JakeFAU/catalog-alerts/internal/poller"

// PartialFetchPolicy decides what a failed catalog fetch does to the cycle.
type PartialFetchPolicy string

const (
	// PartialFetchAbort fails the cycle before anything is dispatched or persisted.
	PartialFetchAbort PartialFetchPolicy = "abort"
	// PartialFetchSkip drops the failed board and carries its labels' cached links forward.
	PartialFetchSkip PartialFetchPolicy = "skip"
)

// Config tunes a Runner.
type Config struct {
	SiteBase           string
	CatalogConcurrency int
	PartialFetch       PartialFetchPolicy
	CycleTimeout       time.Duration
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Subscriptions alert.SubscriptionSource
	Boards        alert.BoardLister
	Catalogs      alert.CatalogFetcher
	Cache         alert.LinkCacheStore
	Dispatcher    alert.Dispatcher
	Compiler      *matcher.Compiler
	Clock         alert.Clock
	Logger        *zap.Logger
}

// Runner executes poll cycles. It holds no per-cycle state; callers
// serialise cycles themselves.
type Runner struct {
	cfg  Config
	deps Deps
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Subscriptions == nil:
		return nil, fmt.Errorf("subscription source is required")
	case deps.Boards == nil:
		return nil, fmt.Errorf("board lister is required")
	case deps.Catalogs == nil:
		return nil, fmt.Errorf("catalog fetcher is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("link cache store is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	}
	switch cfg.PartialFetch {
	case "":
		cfg.PartialFetch = PartialFetchAbort
	case PartialFetchAbort, PartialFetchSkip:
	default:
		return nil, fmt.Errorf("unknown partial fetch policy %q", cfg.PartialFetch)
	}
	if cfg.SiteBase == "" {
		cfg.SiteBase = alert.DefaultSiteBase
	}
	if cfg.CatalogConcurrency <= 0 {
		cfg.CatalogConcurrency = 4
	}
	if deps.Compiler == nil {
		deps.Compiler = matcher.NewCompiler(0)
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps}, nil
}

// RunCycle executes one full cycle. The returned report is populated as far
// as the cycle got, even when an error is returned.
func (r *Runner) RunCycle(ctx context.Context, cycleID string) (alert.CycleReport, error) {
	if r.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CycleTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "poller.RunCycle")
	span.SetAttributes(attribute.String("cycle_id", cycleID))
	defer span.End()

	logger := r.deps.Logger.With(zap.String("cycle_id", cycleID))
	report := alert.CycleReport{
		CycleID:   cycleID,
		StartedAt: r.deps.Clock.Now(),
		Labels:    map[string]alert.LabelStats{},
	}

	err := r.run(ctx, logger, &report)
	report.FinishedAt = r.deps.Clock.Now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	if err != nil {
		metrics.ObserveCycle("failed", duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		logger.Error("cycle failed", zap.Error(err), zap.Duration("duration", duration))
		return report, err
	}
	metrics.ObserveCycle("succeeded", duration)
	logger.Info("cycle finished",
		zap.Int("boards", len(report.BoardsRouted)),
		zap.Int("skipped", len(report.BoardsSkipped)),
		zap.Strings("webhooks", report.WebhooksNotified),
		zap.Duration("duration", duration),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, report *alert.CycleReport) error {
	doc, boards, err := r.fetchInputs(ctx)
	if err != nil {
		return err
	}

	table := pipeline.Route(doc, boards)
	report.BoardsRouted = pipeline.Boards(table)
	logger.Debug("routing table built",
		zap.Int("labels", len(doc)),
		zap.Int("live_boards", len(boards)),
		zap.Int("routed_boards", len(report.BoardsRouted)),
	)

	termMatcher := matcher.New(r.deps.Compiler, logger)
	perBoard, skipped, err := r.scanBoards(ctx, logger, table, report.BoardsRouted, termMatcher)
	if n := len(termMatcher.Disabled()); n > 0 {
		metrics.ObserveDisabledTerms(n)
	}
	if err != nil {
		return err
	}
	report.BoardsSkipped = skipped

	agg := pipeline.Aggregate(perBoard, doc)
	cached, err := r.deps.Cache.ReadLinkCache(ctx)
	if err != nil {
		return fmt.Errorf("%w: read link cache: %w", alert.ErrPersistence, err)
	}
	newLinks := pipeline.Diff(agg.LinksByLabel, cached)
	outgoing := pipeline.FilterByNovelty(agg.ResultsByWebhook, newLinks)
	toPersist := pipeline.MergeDegraded(agg.LinksByLabel, cached, table, skipped)

	for _, label := range slices.Sorted(maps.Keys(agg.LinksByLabel)) {
		stats := alert.LabelStats{
			Matches:  len(agg.ResultsByLabel[label]),
			NewLinks: len(newLinks[label]),
		}
		report.Labels[label] = stats
		metrics.ObserveLabel(label, stats.Matches, stats.NewLinks)
	}

	var (
		g        errgroup.Group
		notified []string
	)
	g.Go(func() error {
		var dispatchErr error
		notified, dispatchErr = r.dispatch(ctx, logger, report.CycleID, outgoing)
		return dispatchErr
	})
	g.Go(func() error {
		return pipeline.Persist(ctx, r.deps.Cache, toPersist)
	})
	err = g.Wait()
	report.WebhooksNotified = notified
	return err
}

func (r *Runner) fetchInputs(ctx context.Context) (alert.SubscriptionDocument, alert.BoardList, error) {
	var (
		doc    alert.SubscriptionDocument
		boards alert.BoardList
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = r.deps.Subscriptions.FetchSubscriptions(gctx)
		return asFetchError("subscriptions", err)
	})
	g.Go(func() error {
		var err error
		boards, err = r.deps.Boards.FetchBoards(gctx)
		return asFetchError("board list", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return doc, boards, nil
}

func (r *Runner) scanBoards(
	ctx context.Context,
	logger *zap.Logger,
	table alert.RoutingTable,
	boards []string,
	termMatcher alert.TermMatcher,
) (map[string][]alert.MatchResult, []string, error) {
	scanner := pipeline.NewScanner(r.cfg.SiteBase, termMatcher)
	var (
		mu       sync.Mutex
		perBoard = make(map[string][]alert.MatchResult, len(boards))
		skipped  []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.CatalogConcurrency)
	for _, board := range boards {
		g.Go(func() error {
			catalog, err := r.deps.Catalogs.FetchCatalog(gctx, board)
			if err != nil {
				metrics.ObserveCatalogFetch(board, "error")
				err = asBoardFetchError(board, err)
				if r.cfg.PartialFetch == PartialFetchAbort {
					return err
				}
				// A canceled or timed-out cycle is not a skipped board.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return fmt.Errorf("%w: board %q: %w", alert.ErrFetch, board, ctxErr)
				}
				logger.Warn("board skipped for this cycle", zap.String("board", board), zap.Error(err))
				mu.Lock()
				skipped = append(skipped, board)
				mu.Unlock()
				return nil
			}
			metrics.ObserveCatalogFetch(board, "ok")
			results := scanner.Scan(catalog, table[board], board)
			mu.Lock()
			perBoard[board] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	slices.Sort(skipped)
	return perBoard, skipped, nil
}

// dispatch sends every webhook's payload in webhook order. A rejection does
// not stop the remaining webhooks.
func (r *Runner) dispatch(
	ctx context.Context,
	logger *zap.Logger,
	cycleID string,
	outgoing map[string][]alert.MatchResult,
) ([]string, error) {
	var (
		notified []string
		errs     []error
	)
	for _, webhook := range slices.Sorted(maps.Keys(outgoing)) {
		payload := alert.WebhookPayload{
			CycleID: cycleID,
			Webhook: webhook,
			SentAt:  r.deps.Clock.Now(),
			Results: outgoing[webhook],
		}
		if err := r.deps.Dispatcher.Dispatch(ctx, webhook, payload); err != nil {
			metrics.ObserveDispatch("error")
			logger.Warn("webhook dispatch failed", zap.String("webhook", webhook), zap.Error(err))
			errs = append(errs, fmt.Errorf("%w: webhook %q: %w", alert.ErrDispatch, webhook, err))
			continue
		}
		metrics.ObserveDispatch("ok")
		notified = append(notified, webhook)
	}
	return notified, errors.Join(errs...)
}

func asFetchError(what string, err error) error {
	if err == nil || errors.Is(err, alert.ErrFetch) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", alert.ErrFetch, what, err)
}

func asBoardFetchError(board string, err error) error {
	var bfe *alert.BoardFetchError
	if errors.As(err, &bfe) {
		return err
	}
	return &alert.BoardFetchError{Board: board, Err: err}
}
