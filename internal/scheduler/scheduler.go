package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/matthewtrundle/PremierATX-sub004/internal/search"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/kafka"
)

// Defaults for the background maintenance intervals.
const (
	DefaultIndexRefreshInterval = 30 * time.Minute
	DefaultMetricsTrimInterval  = 5 * time.Minute
)

// Publisher publishes domain events. Satisfied by kafka.Producer; nil disables
// event publishing.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Scheduler owns the background maintenance loops: periodic search index
// refresh and query stats trimming. It is started once and stopped once;
// Start after Stop is not supported.
type Scheduler struct {
	index     *search.Index
	stats     *search.QueryStats
	publisher Publisher
	logger    *slog.Logger

	indexEvery time.Duration
	trimEvery  time.Duration

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIndexRefreshInterval overrides the index refresh interval.
func WithIndexRefreshInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.indexEvery = d }
}

// WithMetricsTrimInterval overrides the query stats trim interval.
func WithMetricsTrimInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.trimEvery = d }
}

// New creates a scheduler over the given index and stats. publisher may be nil.
func New(index *search.Index, stats *search.QueryStats, publisher Publisher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		index:      index,
		stats:      stats,
		publisher:  publisher,
		logger:     logger,
		indexEvery: DefaultIndexRefreshInterval,
		trimEvery:  DefaultMetricsTrimInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the maintenance loops. They run until Stop is called or the
// parent context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.refreshLoop(ctx)
	go s.trimLoop(ctx)

	s.logger.Info("scheduler started",
		slog.Duration("index_refresh_interval", s.indexEvery),
		slog.Duration("metrics_trim_interval", s.trimEvery),
	)
}

// Stop cancels the loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.indexEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshIndex(ctx)
		}
	}
}

func (s *Scheduler) refreshIndex(ctx context.Context) {
	if err := s.index.RefreshInBackground(ctx); err != nil {
		// Next tick retries; the stale index keeps serving meanwhile.
		s.logger.WarnContext(ctx, "scheduled index refresh failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if s.publisher == nil {
		return
	}

	event, err := kafka.NewEvent("search.reindexed", "catalog", "search_index", "catalog-service", map[string]any{
		"products":     s.index.Size(),
		"refreshed_at": time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "build reindex event failed", slog.String("error", err.Error()))
		return
	}

	if err := s.publisher.Publish(ctx, kafka.Topic("search", "reindexed"), event); err != nil {
		s.logger.WarnContext(ctx, "publish reindex event failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) trimLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.trimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.Trim()
		}
	}
}
