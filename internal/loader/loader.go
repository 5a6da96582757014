package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matthewtrundle/PremierATX-sub004/internal/cache"
	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
)

// State is the loader's observable lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// ErrSuperseded is returned when a load resolves after the loader has already
// moved on to a different collection. The result is discarded, not applied.
var ErrSuperseded = errors.New("load superseded by a newer request")

// DefaultAutoRefreshInterval is how often a started loader re-fetches its
// current collection.
const DefaultAutoRefreshInterval = 5 * time.Minute

// SnapshotCache is the ultra-fast read path consulted before the in-memory
// cache, written through after every successful store fetch. Implemented by
// the Redis snapshot tier; a nil SnapshotCache disables the tier.
type SnapshotCache interface {
	Get(ctx context.Context, handle string) ([]domain.Product, error)
	Set(ctx context.Context, handle string, products []domain.Product) error
}

// Loader orchestrates "give me the products for collection X" for a single
// storefront view: snapshot tier first, then the shared memory cache, then a
// store fetch, with stale-cache fallback on failure.
//
// Only the most recently requested handle is ever applied to the loader's
// state; when the target collection changes mid-flight, the orphaned result
// is dropped (last-request-wins).
type Loader struct {
	cache     *cache.CollectionCache
	snapshots SnapshotCache
	logger    *slog.Logger

	mu       sync.Mutex
	handle   string
	products []domain.Product
	state    State
	loadErr  error
	loadTime time.Duration
	retries  int

	closed   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a loader over the shared collection cache. snapshots may be nil.
// The loader subscribes to cache invalidation so that any part of the system
// invalidating a collection triggers a reload here without direct coupling.
func New(c *cache.CollectionCache, snapshots SnapshotCache, logger *slog.Logger) *Loader {
	l := &Loader{
		cache:     c,
		snapshots: snapshots,
		logger:    logger,
		state:     StateIdle,
		stopCh:    make(chan struct{}),
	}

	c.OnInvalidate(func(handle string) {
		if l.closed.Load() {
			return
		}
		current := l.CurrentHandle()
		if current == "" {
			return
		}
		if handle == domain.HandleAll || handle == current {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := l.Load(ctx, current, true); err != nil && !errors.Is(err, ErrSuperseded) {
					logger.Warn("reload after invalidation failed",
						slog.String("handle", current),
						slog.String("error", err.Error()),
					)
				}
			}()
		}
	})

	return l
}

// Load fetches the products for handle. With forceRefresh the snapshot tier
// and memory cache are bypassed and the store is consulted directly.
func (l *Loader) Load(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	start := time.Now()

	l.mu.Lock()
	l.handle = handle
	l.state = StateLoading
	l.loadErr = nil
	l.mu.Unlock()

	if !forceRefresh {
		// Ultra-fast path: shared snapshot tier, no store round-trip.
		if l.snapshots != nil {
			if products, err := l.snapshots.Get(ctx, handle); err == nil && len(products) > 0 {
				return l.apply(handle, products, start)
			}
		}

		if products, ok := l.cache.Get(handle); ok {
			return l.apply(handle, products, start)
		}
	}

	var (
		products []domain.Product
		err      error
	)
	if forceRefresh {
		products, err = l.cache.Refresh(ctx, handle)
	} else {
		products, err = l.cache.Preload(ctx, handle)
	}

	if err != nil {
		// Last resort: a stale entry beats an empty storefront.
		if stale, staleAt, ok := l.cache.GetAny(handle); ok {
			l.logger.WarnContext(ctx, "fetch failed, serving stale collection",
				slog.String("handle", handle),
				slog.Time("cached_at", staleAt),
				slog.String("error", err.Error()),
			)
			return l.apply(handle, stale, start)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.handle != handle {
			return nil, ErrSuperseded
		}
		l.state = StateError
		l.loadErr = err
		l.products = nil
		l.retries++
		return nil, err
	}

	// Write-through so the next process start can skip the store entirely.
	if l.snapshots != nil {
		if setErr := l.snapshots.Set(ctx, handle, products); setErr != nil {
			l.logger.WarnContext(ctx, "snapshot write-through failed",
				slog.String("handle", handle),
				slog.String("error", setErr.Error()),
			)
		}
	}

	return l.apply(handle, products, start)
}

// Refresh force-reloads the current collection and resets the retry counter.
func (l *Loader) Refresh(ctx context.Context) ([]domain.Product, error) {
	l.mu.Lock()
	handle := l.handle
	l.retries = 0
	l.mu.Unlock()

	if handle == "" {
		return nil, errors.New("no collection loaded yet")
	}
	return l.Load(ctx, handle, true)
}

// apply commits the result only if handle is still the latest request.
func (l *Loader) apply(handle string, products []domain.Product, start time.Time) ([]domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != handle {
		return nil, ErrSuperseded
	}

	l.products = products
	l.state = StateReady
	l.loadErr = nil
	l.loadTime = time.Since(start)
	l.retries = 0
	return products, nil
}

// CurrentHandle returns the most recently requested collection handle.
func (l *Loader) CurrentHandle() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// State returns the loader's current state, last error, and last load duration.
func (l *Loader) State() (State, error, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.loadErr, l.loadTime
}

// Retries reports how many consecutive loads have failed without fallback data.
func (l *Loader) Retries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

// Products returns the last applied product list.
func (l *Loader) Products() []domain.Product {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.products
}

// StartAutoRefresh re-fetches the current collection on the given interval
// until the context is canceled or Close is called. Refresh failures are
// logged; the ticker keeps running.
func (l *Loader) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutoRefreshInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				if l.CurrentHandle() == "" {
					continue
				}
				if _, err := l.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
					l.logger.Warn("auto refresh failed",
						slog.String("handle", l.CurrentHandle()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
}

// Close detaches the loader from cache invalidation and stops auto refresh.
func (l *Loader) Close() {
	l.closed.Store(true)
	l.stopOnce.Do(func() { close(l.stopCh) })
}
