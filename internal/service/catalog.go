package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/matthewtrundle/PremierATX-sub004/internal/cache"
	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/search"
)

// SnapshotStore is the external snapshot tier the service clears alongside the
// in-process caches. A nil SnapshotStore disables the tier.
type SnapshotStore interface {
	DeleteAll(ctx context.Context) error
}

// CollectionData is a point-in-time view of one cached collection.
type CollectionData struct {
	Handle     string           `json:"handle"`
	Products   []domain.Product `json:"products"`
	IsLoaded   bool             `json:"is_loaded"`
	LoadTimeMs int64            `json:"load_time_ms"`
}

// SearchResult is an instant-search response, including whether it was served
// from the memoized result cache.
type SearchResult struct {
	Products   []domain.Product `json:"products"`
	TotalFound int              `json:"total_found"`
	LoadTimeMs int64            `json:"load_time_ms"`
	FromCache  bool             `json:"from_cache"`
}

// Catalog is the facade the transport layer talks to. It composes the shared
// collection cache, the in-memory search index, and the snapshot tier.
type Catalog struct {
	cache     *cache.CollectionCache
	index     *search.Index
	stats     *search.QueryStats
	snapshots SnapshotStore
	logger    *slog.Logger
}

// NewCatalog wires the catalog facade. snapshots may be nil.
func NewCatalog(c *cache.CollectionCache, idx *search.Index, stats *search.QueryStats, snapshots SnapshotStore, logger *slog.Logger) *Catalog {
	return &Catalog{
		cache:     c,
		index:     idx,
		stats:     stats,
		snapshots: snapshots,
		logger:    logger,
	}
}

// CollectionProducts returns the products for handle, fetching through the
// cache on a miss. forceRefresh bypasses the cached entry.
func (s *Catalog) CollectionProducts(ctx context.Context, handle string, forceRefresh bool) (CollectionData, error) {
	start := time.Now()

	var (
		products []domain.Product
		err      error
	)
	if forceRefresh {
		products, err = s.cache.Refresh(ctx, handle)
	} else {
		products, err = s.cache.Preload(ctx, handle)
	}
	if err != nil {
		return CollectionData{Handle: handle}, err
	}

	return CollectionData{
		Handle:     handle,
		Products:   products,
		IsLoaded:   true,
		LoadTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Collection returns the cached state for handle without triggering a fetch.
// An unloaded collection is reported as IsLoaded=false, not an error.
func (s *Catalog) Collection(handle string) CollectionData {
	products, ok := s.cache.Get(handle)
	return CollectionData{
		Handle:   handle,
		Products: products,
		IsLoaded: ok,
	}
}

// SearchInstant runs a scored search over the in-memory index, memoizing
// results per (query, category, limit). The index self-warms on first use.
func (s *Catalog) SearchInstant(ctx context.Context, query, category string, limit int) (SearchResult, error) {
	start := time.Now()

	if limit <= 0 {
		limit = search.DefaultLimit
	}

	key := search.Key(query, category, limit)
	if cached, ok := s.index.Results().Get(key); ok {
		dur := time.Since(start)
		s.stats.Record(query, dur, true)
		return SearchResult{
			Products:   cached.Products,
			TotalFound: cached.TotalFound,
			LoadTimeMs: dur.Milliseconds(),
			FromCache:  true,
		}, nil
	}

	if err := s.index.WarmUp(ctx); err != nil {
		return SearchResult{}, err
	}

	result := s.index.Search(query, category, limit)
	s.index.Results().Set(key, result)

	dur := time.Since(start)
	s.stats.Record(query, dur, false)

	return SearchResult{
		Products:   result.Products,
		TotalFound: result.TotalFound,
		LoadTimeMs: dur.Milliseconds(),
	}, nil
}

// PreloadCollections warms the cache for the given handles sequentially.
func (s *Catalog) PreloadCollections(ctx context.Context, handles []string) {
	s.cache.PreloadMany(ctx, handles)
}

// ClearCaches wipes the in-process collection cache, the memoized search
// results, and the external snapshot tier. Snapshot tier failures are logged
// but do not fail the clear; the in-process caches are already gone.
func (s *Catalog) ClearCaches(ctx context.Context) {
	s.cache.Clear()
	s.index.Results().Purge()

	if s.snapshots != nil {
		if err := s.snapshots.DeleteAll(ctx); err != nil {
			s.logger.WarnContext(ctx, "snapshot tier clear failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "caches cleared")
}

// InvalidateCollection drops one collection from the cache; observers handle
// any follow-up reloads.
func (s *Catalog) InvalidateCollection(handle string) {
	s.cache.Invalidate(handle)
}

// RefreshIndex rebuilds the search index from the full catalog.
func (s *Catalog) RefreshIndex(ctx context.Context) error {
	return s.index.RefreshInBackground(ctx)
}

// IndexSize returns the number of indexed products.
func (s *Catalog) IndexSize() int {
	return s.index.Size()
}
