// Package server builds the application's dependencies from configuration and
// runs them either as a one-shot poll or as the long-running HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/api"
	"github.com/JakeFAU/catalog-alerts/internal/clock/system"
	"github.com/JakeFAU/catalog-alerts/internal/config"
	"github.com/JakeFAU/catalog-alerts/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/catalog-alerts/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-alerts/internal/id/uuid"
	"github.com/JakeFAU/catalog-alerts/internal/logging"
	"github.com/JakeFAU/catalog-alerts/internal/matcher"
	"github.com/JakeFAU/catalog-alerts/internal/metrics"
	"github.com/JakeFAU/catalog-alerts/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-alerts/internal/poller"
	memorypublisher "github.com/JakeFAU/catalog-alerts/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/catalog-alerts/internal/publisher/pubsub"
	webhookpublisher "github.com/JakeFAU/catalog-alerts/internal/publisher/webhook"
	queueMemory "github.com/JakeFAU/catalog-alerts/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/catalog-alerts/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-alerts/internal/storage/local"
	memoryStorage "github.com/JakeFAU/catalog-alerts/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-alerts/internal/storage/postgres"
	filesubscriptions "github.com/JakeFAU/catalog-alerts/internal/subscription/file"
	"github.com/JakeFAU/catalog-alerts/internal/telemetry"
	"github.com/JakeFAU/catalog-alerts/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Runner *poller.Runner
	ids    alert.IDGenerator
	clock  alert.Clock
	cache  alert.LinkCacheStore

	pool         *pgxpool.Pool
	storage      *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	logger.Info("building application dependencies",
		zap.String("subscriptions", cfg.Subscriptions.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("notify", cfg.Notify.Backend),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	var err error
	if app.tracer, err = telemetry.InitTracerProvider(ctx, logging.ServiceName); err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	if err := app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	subscriptions, err := app.setupSubscriptions()
	if err != nil {
		return nil, err
	}
	if app.cache, err = app.setupCache(ctx); err != nil {
		return nil, err
	}
	notifier, err := app.setupNotifier(ctx)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Source.RatePerSecond,
		DefaultBurst: cfg.Source.Burst,
		Cooldown:     cfg.Source.Cooldown,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		APIBase:   cfg.Source.APIBase,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout,
	}, limiter, logger.Named("fetcher"))

	app.Runner, err = poller.New(poller.Config{
		SiteBase:           cfg.Source.SiteBase,
		CatalogConcurrency: cfg.Poller.CatalogConcurrency,
		PartialFetch:       poller.PartialFetchPolicy(cfg.Poller.PartialFetch),
		CycleTimeout:       cfg.Poller.CycleTimeout,
	}, poller.Deps{
		Subscriptions: subscriptions,
		Boards:        fetcher,
		Catalogs:      fetcher,
		Cache:         app.cache,
		Dispatcher:    notifier,
		Compiler:      matcher.NewCompiler(cfg.Matcher.CacheTTL),
		Clock:         app.clock,
		Logger:        logger.Named("poller"),
	})
	if err != nil {
		return nil, fmt.Errorf("poller init failed: %w", err)
	}
	ok = true
	return app, nil
}

// PollOnce runs a single cycle with a fresh ID.
func (a *App) PollOnce(ctx context.Context) (alert.CycleReport, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return alert.CycleReport{}, fmt.Errorf("generate cycle id: %w", err)
	}
	return a.Runner.RunCycle(ctx, id)
}

// Serve starts the HTTP API and the cycle worker and blocks until a signal
// arrives or ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := queueMemory.NewQueue(a.cfg.Poller.QueueDepth)
	cycles := memoryStorage.NewCycleStore()
	w := worker.New(queue, cycles, a.Runner, a.logger.Named("worker"))
	dispatch := dispatcher.New(queue, cycles, a.ids, a.clock, w,
		dispatcher.Config{Interval: a.cfg.Poller.Interval}, a.logger.Named("dispatcher"))

	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	apiServer := api.NewServer(cycles, dispatch, a.cache, api.Options{
		APIKey:         apiKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Ready:          a.ready,
	}, a.logger.Named("api"))

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Duration("interval", a.cfg.Poller.Interval))
		dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	<-dispatchDone
	return nil
}

// Migrate applies the Postgres schema. It requires db.dsn.
func (a *App) Migrate(ctx context.Context) error {
	if a.pool == nil {
		return errors.New("db.dsn is not configured")
	}
	return pgstore.Migrate(ctx, a.pool)
}

// ImportSubscriptions replaces the Postgres subscriptions table with doc.
func (a *App) ImportSubscriptions(ctx context.Context, doc alert.SubscriptionDocument) error {
	if a.pool == nil {
		return errors.New("db.dsn is not configured")
	}
	store, err := pgstore.NewSubscriptionStore(a.pool)
	if err != nil {
		return err
	}
	return store.ReplaceSubscriptions(ctx, doc)
}

// Close releases every client the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	}
	return nil
}

func (a *App) closeInfrastructure() {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		if a.cfg.UsesPostgres() {
			return errors.New("db.dsn is required for postgres backends")
		}
		a.logger.Debug("no database configured")
		return nil
	}
	var err error
	a.pool, err = pgstore.Connect(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	if a.cfg.DB.AutoMigrate {
		if err := pgstore.Migrate(ctx, a.pool); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
		a.logger.Info("postgres schema migrated")
	}
	return nil
}

func (a *App) setupSubscriptions() (alert.SubscriptionSource, error) {
	switch a.cfg.Subscriptions.Backend {
	case config.BackendPostgres:
		a.logger.Info("using postgres subscriptions")
		return pgstore.NewSubscriptionStore(a.pool)
	default:
		a.logger.Info("using subscription file", zap.String("path", a.cfg.Subscriptions.Path))
		src, err := filesubscriptions.New(a.cfg.Subscriptions.Path)
		if err != nil {
			return nil, fmt.Errorf("subscription source init failed: %w", err)
		}
		return src, nil
	}
}

func (a *App) setupCache(ctx context.Context) (alert.LinkCacheStore, error) {
	switch a.cfg.Cache.Backend {
	case config.BackendGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Cache.Bucket,
			Object: a.cfg.Cache.Object,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs link cache init failed: %w", err)
		}
		a.logger.Info("using GCS link cache", zap.String("uri", store.URI()))
		return store, nil
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{
			BaseDir:  a.cfg.Cache.Dir,
			FileName: a.cfg.Cache.File,
		})
		if err != nil {
			return nil, fmt.Errorf("local link cache init failed: %w", err)
		}
		a.logger.Info("using local link cache", zap.String("path", store.Path()))
		return store, nil
	case config.BackendPostgres:
		a.logger.Info("using postgres link cache")
		return pgstore.NewLinkCacheStore(a.pool)
	default:
		a.logger.Warn("using in-memory link cache; delivered links are lost on exit")
		return memoryStorage.NewLinkCacheStore(nil), nil
	}
}

func (a *App) setupNotifier(ctx context.Context) (alert.Dispatcher, error) {
	switch a.cfg.Notify.Backend {
	case config.BackendPubSub:
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.gcpPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.Notify.Topic), a.logger.Named("pubsub"))
		a.logger.Info("using pubsub notifier", zap.String("topic", a.cfg.Notify.Topic))
		return a.gcpPublisher, nil
	case config.BackendWebhook:
		pub, err := webhookpublisher.New(webhookpublisher.Config{
			Endpoints:    a.cfg.Notify.Webhooks,
			RetryMax:     a.cfg.Notify.RetryMax,
			RetryWaitMin: a.cfg.Notify.RetryWaitMin,
			RetryWaitMax: a.cfg.Notify.RetryWaitMax,
			Timeout:      a.cfg.Notify.Timeout,
			UserAgent:    a.cfg.Source.UserAgent,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("webhook notifier init failed: %w", err)
		}
		a.logger.Info("using webhook notifier", zap.Int("endpoints", len(a.cfg.Notify.Webhooks)))
		return pub, nil
	default:
		a.logger.Warn("using in-memory notifier; payloads are not delivered")
		return memorypublisher.New(), nil
	}
}
