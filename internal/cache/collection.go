package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store"
)

// DefaultTTL is how long a cached collection is served without a fresh fetch.
const DefaultTTL = 5 * time.Minute

// DefaultInterRequestDelay is the pause between sequential preloads, keeping
// batch warm-ups from bursting the upstream sync endpoint.
const DefaultInterRequestDelay = 100 * time.Millisecond

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_cache_hits_total",
		Help: "Collection cache lookups served from memory",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_cache_misses_total",
		Help: "Collection cache lookups that required a store fetch",
	})
	cacheFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collection_cache_fetch_errors_total",
		Help: "Store fetches that failed during collection preload",
	})
)

type entry struct {
	products    []domain.Product
	lastUpdated time.Time
}

// InvalidateFunc is called when a collection entry is invalidated. The sentinel
// handle domain.HandleAll signals that every entry was dropped.
type InvalidateFunc func(handle string)

// CollectionCache is the shared in-process cache mapping collection handle to
// its ordered product list. Entries expire after the TTL; concurrent preloads
// for the same handle are collapsed into a single store fetch.
//
// Construct one per process and hand it to every consumer; it is safe for
// concurrent use.
type CollectionCache struct {
	store store.CollectionStore
	ttl   time.Duration
	delay time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time

	obsMu     sync.RWMutex
	observers []InvalidateFunc
}

// Option configures a CollectionCache.
type Option func(*CollectionCache)

// WithTTL overrides the entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *CollectionCache) { c.ttl = ttl }
}

// WithInterRequestDelay overrides the pause between sequential preloads.
func WithInterRequestDelay(d time.Duration) Option {
	return func(c *CollectionCache) { c.delay = d }
}

// WithClock overrides the cache's clock. Tests use this to control staleness.
func WithClock(now func() time.Time) Option {
	return func(c *CollectionCache) { c.now = now }
}

// NewCollectionCache creates a collection cache over the given store.
func NewCollectionCache(st store.CollectionStore, logger *slog.Logger, opts ...Option) *CollectionCache {
	c := &CollectionCache{
		store:   st,
		ttl:     DefaultTTL,
		delay:   DefaultInterRequestDelay,
		entries: make(map[string]*entry),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Preload returns the cached products for handle if the entry is fresh,
// otherwise fetches through the store. Concurrent callers for the same handle
// share one in-flight fetch. On fetch failure the previous entry survives
// untouched and the error is returned to the caller.
func (c *CollectionCache) Preload(ctx context.Context, handle string) ([]domain.Product, error) {
	if products, ok := c.Get(handle); ok {
		cacheHits.Inc()
		return products, nil
	}
	cacheMisses.Inc()

	v, err, _ := c.group.Do(handle, func() (any, error) {
		// Re-check under the flight: a concurrent fetch may have landed
		// between the miss and this call.
		if products, ok := c.Get(handle); ok {
			return products, nil
		}

		// The flight is shared by every deduped waiter, so it must not die
		// with the first caller's context. The store's own HTTP timeout
		// still bounds the fetch.
		products, err := c.store.FetchCollection(context.WithoutCancel(ctx), handle, false)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[handle] = &entry{products: products, lastUpdated: c.now()}
		c.mu.Unlock()

		return products, nil
	})
	if err != nil {
		cacheFetchErrors.Inc()
		return nil, err
	}

	return v.([]domain.Product), nil
}

// Refresh fetches handle through the store unconditionally, bypassing any
// fresh entry, and replaces the cached entry on success. Concurrent refreshes
// for the same handle share one fetch. On failure the previous entry survives.
func (c *CollectionCache) Refresh(ctx context.Context, handle string) ([]domain.Product, error) {
	v, err, _ := c.group.Do("refresh:"+handle, func() (any, error) {
		// Shared flight, detached from the first caller (see Preload).
		products, err := c.store.FetchCollection(context.WithoutCancel(ctx), handle, true)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[handle] = &entry{products: products, lastUpdated: c.now()}
		c.mu.Unlock()

		return products, nil
	})
	if err != nil {
		cacheFetchErrors.Inc()
		return nil, err
	}

	return v.([]domain.Product), nil
}

// Get returns the cached products for handle only if the entry exists and is
// not stale. An entry aged exactly the TTL is already stale. It never
// triggers a fetch.
func (c *CollectionCache) Get(handle string) ([]domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[handle]
	if !ok || c.now().Sub(e.lastUpdated) >= c.ttl {
		return nil, false
	}
	return e.products, true
}

// GetAny returns the cached products for handle regardless of staleness,
// along with the entry's last update time. Used as the loader's last-resort
// fallback when a fetch fails.
func (c *CollectionCache) GetAny(handle string) ([]domain.Product, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[handle]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.products, e.lastUpdated, true
}

// PreloadMany preloads each handle sequentially with a small inter-request
// delay. A failing handle is logged and skipped so one bad collection cannot
// block the rest of the batch.
func (c *CollectionCache) PreloadMany(ctx context.Context, handles []string) {
	for i, handle := range handles {
		if i > 0 && c.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.delay):
			}
		}

		if _, err := c.Preload(ctx, handle); err != nil {
			c.logger.WarnContext(ctx, "preload failed, skipping collection",
				slog.String("handle", handle),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Invalidate drops the entry for handle and notifies observers.
func (c *CollectionCache) Invalidate(handle string) {
	c.mu.Lock()
	delete(c.entries, handle)
	c.mu.Unlock()

	c.notify(handle)
}

// Clear wipes all entries and notifies observers with the sentinel handle.
func (c *CollectionCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	c.notify(domain.HandleAll)
}

// OnInvalidate registers a callback invoked whenever an entry is invalidated.
// Callbacks run synchronously on the invalidating goroutine and must not call
// back into the cache's invalidation methods.
func (c *CollectionCache) OnInvalidate(fn InvalidateFunc) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Len returns the number of cached entries, fresh or stale.
func (c *CollectionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CollectionCache) notify(handle string) {
	c.obsMu.RLock()
	observers := make([]InvalidateFunc, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()

	for _, fn := range observers {
		fn(handle)
	}
}
