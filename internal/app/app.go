package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/matthewtrundle/PremierATX-sub004/migrations"

	"github.com/matthewtrundle/PremierATX-sub004/internal/cache"
	"github.com/matthewtrundle/PremierATX-sub004/internal/cache/snapshot"
	"github.com/matthewtrundle/PremierATX-sub004/internal/config"
	"github.com/matthewtrundle/PremierATX-sub004/internal/event"
	handler "github.com/matthewtrundle/PremierATX-sub004/internal/handler/http"
	"github.com/matthewtrundle/PremierATX-sub004/internal/loader"
	"github.com/matthewtrundle/PremierATX-sub004/internal/scheduler"
	"github.com/matthewtrundle/PremierATX-sub004/internal/search"
	"github.com/matthewtrundle/PremierATX-sub004/internal/service"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store/postgres"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store/upstream"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/database"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/health"
	pkgkafka "github.com/matthewtrundle/PremierATX-sub004/pkg/kafka"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/tracing"
)

// snapshotTTL is how long a Redis snapshot entry survives without refresh.
const snapshotTTL = time.Hour

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool         *pgxpool.Pool
	redisClient  *redis.Client
	consumers    []*pkgkafka.Consumer
	producer     *pkgkafka.Producer
	sched        *scheduler.Scheduler
	activeLoader *loader.Loader
	catalog      *service.Catalog
	httpServer   *http.Server

	shutdownTracing func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracing, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "catalog",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SampleRate:     cfg.TracingSample,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Postgres snapshot store.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, ".", logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Optional Redis snapshot tier.
	var (
		redisClient   *redis.Client
		snapshotCache *snapshot.Cache
	)
	if cfg.RedisEnabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		snapshotCache = snapshot.NewCache(redisClient, snapshotTTL)
	}

	// Store chain: upstream sync endpoint with Postgres snapshot fallback.
	upstreamClient := upstream.NewClient(cfg.SyncBaseURL, logger)
	snapshotRepo := postgres.NewSnapshotRepository(pool)
	unified := store.NewUnifiedStore(upstreamClient, snapshotRepo, cfg.SnapshotFreshFor, logger)

	// Caching and search.
	collectionCache := cache.NewCollectionCache(unified, logger, cache.WithTTL(cfg.CollectionTTL))
	resultCache := search.NewResultCache(cfg.ResultCacheSize)
	index := search.NewIndex(unified, resultCache, logger)
	stats := search.NewQueryStats(0)

	catalog := service.NewCatalog(collectionCache, index, stats, snapshotOrNil(snapshotCache), logger)

	// Active collection view, reloaded whenever its collection is invalidated.
	var snapTier loader.SnapshotCache
	if snapshotCache != nil {
		snapTier = snapshotCache
	}
	activeLoader := loader.New(collectionCache, snapTier, logger)

	// Kafka.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	eventHandler := event.NewHandler(catalog, logger)

	consumerTopics := map[string]pkgkafka.Handler{
		pkgkafka.Topic("collections", "updated"): eventHandler.HandleCollectionsUpdated,
		pkgkafka.Topic("products", "refresh"):    eventHandler.HandleProductsRefresh,
	}
	var consumers []*pkgkafka.Consumer
	for topic, h := range consumerTopics {
		consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, h, logger))
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(consumerTopics)),
	)

	// Background maintenance.
	sched := scheduler.New(index, stats, producer, logger,
		scheduler.WithIndexRefreshInterval(cfg.IndexRefreshEvery),
		scheduler.WithMetricsTrimInterval(cfg.MetricsTrimEvery),
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})

	router := handler.NewRouter(catalog, activeLoader, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		redisClient:     redisClient,
		consumers:       consumers,
		producer:        producer,
		sched:           sched,
		activeLoader:    activeLoader,
		catalog:         catalog,
		httpServer:      httpServer,
		shutdownTracing: shutdownTracing,
	}, nil
}

// snapshotOrNil avoids storing a typed-nil in the service's interface field.
func snapshotOrNil(c *snapshot.Cache) service.SnapshotStore {
	if c == nil {
		return nil
	}
	return c
}

// Run starts the HTTP server, Kafka consumers, and background maintenance,
// blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	a.sched.Start(ctx)
	a.activeLoader.StartAutoRefresh(ctx, 0)

	// Warm the configured collections and the search index without blocking
	// startup; the server answers requests while the caches fill.
	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		if len(a.cfg.PreloadHandles) > 0 {
			a.catalog.PreloadCollections(warmCtx, a.cfg.PreloadHandles)
		}
		if err := a.catalog.RefreshIndex(warmCtx); err != nil {
			a.logger.Warn("startup index warm-up failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.sched.Stop()
	a.activeLoader.Close()

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.pool.Close()

	if err := a.shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
