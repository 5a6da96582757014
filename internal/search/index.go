package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store"
)

// Relevance scores, evaluated in precedence order; the first matching rule
// wins. Products matching no rule are excluded entirely.
const (
	ScoreExactTitle    = 1000
	ScoreTitlePrefix   = 800
	ScoreTitleContains = 600
	ScoreCategory      = 400
	ScoreVendor        = 200
	ScoreFullText      = 100
)

// DefaultRebuildTTL is how long a built index is considered current.
const DefaultRebuildTTL = 30 * time.Minute

// DefaultLimit caps result sets when the caller does not specify a limit.
const DefaultLimit = 2000

// Result is a scored, truncated search response. TotalFound counts all
// matches before truncation so callers can render "showing N of M".
type Result struct {
	Products   []domain.Product `json:"products"`
	TotalFound int              `json:"total_found"`
}

// indexed is a product augmented with precomputed lower-cased search fields.
// pos is the product's position in catalog order, used as the tie-break for
// equal scores.
type indexed struct {
	product        domain.Product
	titleLower     string
	categoryLower  string
	vendorLower    string
	searchableText string
	pos            int
}

// Index is the in-memory full-catalog search index. It self-populates from
// the collection store's "all" view on first use and supports linear-scan
// scored search without any network round-trip.
//
// The catalog is small (low thousands of products), so a scan with
// short-circuit scoring beats network latency by orders of magnitude without
// the upkeep of an inverted index.
type Index struct {
	store      store.CollectionStore
	results    *ResultCache
	rebuildTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	products []indexed
	builtAt  time.Time

	warmGroup singleflight.Group
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithRebuildTTL overrides how long a built index is considered current.
func WithRebuildTTL(ttl time.Duration) IndexOption {
	return func(i *Index) { i.rebuildTTL = ttl }
}

// WithClock overrides the index clock; tests use this to control aging.
func WithClock(now func() time.Time) IndexOption {
	return func(i *Index) { i.now = now }
}

// NewIndex creates an empty search index over the given store. The result
// cache is owned by the index so rebuilds can purge it.
func NewIndex(st store.CollectionStore, results *ResultCache, logger *slog.Logger, opts ...IndexOption) *Index {
	idx := &Index{
		store:      st,
		results:    results,
		rebuildTTL: DefaultRebuildTTL,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Results returns the result cache attached to this index.
func (i *Index) Results() *ResultCache {
	return i.results
}

// Ready reports whether the index has been built and is still current.
func (i *Index) Ready() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return !i.builtAt.IsZero() && i.now().Sub(i.builtAt) < i.rebuildTTL
}

// rebuildKey is the single singleflight key shared by WarmUp and
// RefreshInBackground, so a concurrent warm-up and background refresh
// collapse into one bulk fetch instead of two.
const rebuildKey = "rebuild"

// WarmUp builds the index from the full catalog unless it was already built
// within the rebuild TTL. Concurrent rebuilds share one bulk fetch.
func (i *Index) WarmUp(ctx context.Context) error {
	if i.Ready() {
		return nil
	}

	_, err, _ := i.warmGroup.Do(rebuildKey, func() (any, error) {
		if i.Ready() {
			return nil, nil
		}
		return nil, i.rebuild(ctx)
	})
	return err
}

// RefreshInBackground rebuilds the index unconditionally, ignoring the rebuild
// TTL, and purges the result cache afterwards since cached results may be
// based on the replaced index. A refresh that joins an in-flight rebuild
// shares its result.
func (i *Index) RefreshInBackground(ctx context.Context) error {
	_, err, _ := i.warmGroup.Do(rebuildKey, func() (any, error) {
		return nil, i.rebuild(ctx)
	})
	return err
}

func (i *Index) rebuild(ctx context.Context) error {
	// The flight is shared by every waiter, so the fetch must not die with
	// the first caller's context.
	products, err := i.store.FetchCollection(context.WithoutCancel(ctx), domain.HandleAll, false)
	if err != nil {
		return fmt.Errorf("fetch full catalog: %w", err)
	}

	i.Build(products)

	i.logger.InfoContext(ctx, "search index rebuilt",
		slog.Int("products", len(products)),
	)
	return nil
}

// Build replaces the entire index with the given catalog. The build is always
// wholesale, never incremental, and purges the result cache.
func (i *Index) Build(products []domain.Product) {
	entries := make([]indexed, 0, len(products))
	for pos, p := range products {
		titleLower := strings.ToLower(p.Title)
		categoryLower := strings.ToLower(p.Category)
		vendorLower := strings.ToLower(p.Vendor)

		parts := []string{p.Title, p.Category, p.ProductType, p.Vendor}
		parts = append(parts, p.CollectionHandles...)
		searchable := strings.ToLower(strings.Join(parts, " "))

		entries = append(entries, indexed{
			product:        p,
			titleLower:     titleLower,
			categoryLower:  categoryLower,
			vendorLower:    vendorLower,
			searchableText: searchable,
			pos:            pos,
		})
	}

	i.mu.Lock()
	i.products = entries
	i.builtAt = i.now()
	i.mu.Unlock()

	if i.results != nil {
		i.results.Purge()
	}
}

// Size returns the number of indexed products.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.products)
}

type scored struct {
	entry *indexed
	score int
}

// Search scores the index against the normalized query. category, when
// non-empty, pre-filters to exact (case-insensitive) category matches. An
// empty query returns the catalog head unscored. Ties break on catalog order.
func (i *Index) Search(query, category string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := strings.ToLower(strings.TrimSpace(query))
	cat := strings.ToLower(strings.TrimSpace(category))

	i.mu.RLock()
	defer i.mu.RUnlock()

	if q == "" {
		products := make([]domain.Product, 0, limit)
		total := 0
		for idx := range i.products {
			e := &i.products[idx]
			if cat != "" && e.categoryLower != cat {
				continue
			}
			total++
			if len(products) < limit {
				products = append(products, e.product)
			}
		}
		return Result{Products: products, TotalFound: total}
	}

	matches := make([]scored, 0, 64)
	for idx := range i.products {
		e := &i.products[idx]
		if cat != "" && e.categoryLower != cat {
			continue
		}
		if s := scoreEntry(e, q); s > 0 {
			matches = append(matches, scored{entry: e, score: s})
		}
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		return matches[a].entry.pos < matches[b].entry.pos
	})

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	products := make([]domain.Product, len(matches))
	for n, m := range matches {
		products[n] = m.entry.product
	}

	return Result{Products: products, TotalFound: total}
}

// scoreEntry applies the precedence-ordered rule set; first match wins.
func scoreEntry(e *indexed, q string) int {
	switch {
	case e.titleLower == q:
		return ScoreExactTitle
	case strings.HasPrefix(e.titleLower, q):
		return ScoreTitlePrefix
	case strings.Contains(e.titleLower, q):
		return ScoreTitleContains
	case strings.Contains(e.categoryLower, q):
		return ScoreCategory
	case strings.Contains(e.vendorLower, q):
		return ScoreVendor
	case strings.Contains(e.searchableText, q):
		return ScoreFullText
	default:
		return 0
	}
}
