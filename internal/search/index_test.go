package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
)

type stubStore struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
	blockCh  chan struct{}
}

func (s *stubStore) FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	s.mu.Lock()
	s.calls++
	block := s.blockCh
	err := s.err
	products := s.products
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *stubStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func beerCatalog() []domain.Product {
	return []domain.Product{
		{ID: "1", Title: "Hazy Session IPA", Category: "Beer", Vendor: "Lazarus Brewing"},
		{ID: "2", Title: "IPA Six Pack", Category: "Beer", Vendor: "Austin Beerworks"},
		{ID: "3", Title: "IPA", Category: "Beer", Vendor: "Hops & Grain"},
		{ID: "4", Title: "Pilsner", Category: "Beer", Vendor: "Live Oak"},
		{ID: "5", Title: "Cabernet Sauvignon", Category: "Wine", Vendor: "Duchman Winery"},
		{ID: "6", Title: "Margarita Kit", Category: "Cocktails", Vendor: "Lazarus Brewing"},
	}
}

func newBuiltIndex(t *testing.T, products []domain.Product) *Index {
	t.Helper()
	idx := NewIndex(&stubStore{products: products}, NewResultCache(0), testLogger())
	idx.Build(products)
	return idx
}

func TestIndex_Search_ScorePrecedence(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("IPA", "", 0)

	require.Len(t, result.Products, 3)
	assert.Equal(t, 3, result.TotalFound)
	// Exact title beats prefix beats contains.
	assert.Equal(t, "IPA", result.Products[0].Title)
	assert.Equal(t, "IPA Six Pack", result.Products[1].Title)
	assert.Equal(t, "Hazy Session IPA", result.Products[2].Title)
}

func TestIndex_Search_VendorMatch(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("lazarus", "", 0)

	require.Len(t, result.Products, 2)
	// Both match on vendor with equal score; catalog order decides.
	assert.Equal(t, "Hazy Session IPA", result.Products[0].Title)
	assert.Equal(t, "Margarita Kit", result.Products[1].Title)
}

func TestIndex_Search_CategoryFilterExcludes(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("lazarus", "wine", 0)

	assert.Empty(t, result.Products)
	assert.Equal(t, 0, result.TotalFound)
}

func TestIndex_Search_CategoryFilterCaseInsensitive(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("ipa", "BEER", 0)

	assert.Equal(t, 3, result.TotalFound)
}

func TestIndex_Search_NoMatch(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("kombucha", "", 0)

	assert.Empty(t, result.Products)
	assert.Equal(t, 0, result.TotalFound)
}

func TestIndex_Search_EmptyQueryReturnsCatalogHead(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("", "", 4)

	require.Len(t, result.Products, 4)
	assert.Equal(t, 6, result.TotalFound)
	assert.Equal(t, "Hazy Session IPA", result.Products[0].Title)
}

func TestIndex_Search_TotalFoundCountsBeyondLimit(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	result := idx.Search("ipa", "", 1)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "IPA", result.Products[0].Title)
	assert.Equal(t, 3, result.TotalFound)
}

func TestIndex_Search_TieBreakIsCatalogOrder(t *testing.T) {
	products := make([]domain.Product, 0, 20)
	for i := 0; i < 20; i++ {
		products = append(products, domain.Product{
			ID:    fmt.Sprintf("p%d", i),
			Title: fmt.Sprintf("Craft Lager %d", i),
		})
	}
	idx := newBuiltIndex(t, products)

	result := idx.Search("craft lager", "", 0)

	require.Len(t, result.Products, 20)
	for i, p := range result.Products {
		assert.Equal(t, fmt.Sprintf("p%d", i), p.ID)
	}
}

func TestIndex_Search_FullTextMatchesCollectionHandles(t *testing.T) {
	products := []domain.Product{
		{ID: "1", Title: "Party Platter", CollectionHandles: []string{"game-day"}},
		{ID: "2", Title: "Veggie Tray"},
	}
	idx := newBuiltIndex(t, products)

	result := idx.Search("game-day", "", 0)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "Party Platter", result.Products[0].Title)
}

func TestIndex_WarmUp_BuildsOnceWithinTTL(t *testing.T) {
	st := &stubStore{products: beerCatalog()}
	idx := NewIndex(st, NewResultCache(0), testLogger())

	require.NoError(t, idx.WarmUp(context.Background()))
	require.NoError(t, idx.WarmUp(context.Background()))

	assert.Equal(t, 1, st.callCount())
	assert.Equal(t, 6, idx.Size())
}

func TestIndex_WarmUp_RebuildsAfterTTL(t *testing.T) {
	st := &stubStore{products: beerCatalog()}
	now := time.Now()
	idx := NewIndex(st, NewResultCache(0), testLogger(),
		WithRebuildTTL(30*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	require.NoError(t, idx.WarmUp(context.Background()))
	now = now.Add(31 * time.Minute)
	require.NoError(t, idx.WarmUp(context.Background()))

	assert.Equal(t, 2, st.callCount())
}

func TestIndex_WarmUp_PropagatesFetchError(t *testing.T) {
	st := &stubStore{err: errors.New("upstream down")}
	idx := NewIndex(st, NewResultCache(0), testLogger())

	err := idx.WarmUp(context.Background())

	require.Error(t, err)
	assert.False(t, idx.Ready())
}

func TestIndex_Build_PurgesResultCache(t *testing.T) {
	idx := newBuiltIndex(t, beerCatalog())

	key := Key("ipa", "", 100)
	idx.Results().Set(key, Result{TotalFound: 3})
	require.Equal(t, 1, idx.Results().Len())

	idx.Build(beerCatalog())

	assert.Equal(t, 0, idx.Results().Len())
}

func TestIndex_ConcurrentWarmUpAndRefreshShareOneFetch(t *testing.T) {
	st := &stubStore{products: beerCatalog(), blockCh: make(chan struct{})}
	idx := NewIndex(st, NewResultCache(0), testLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, idx.WarmUp(context.Background()))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, idx.RefreshInBackground(context.Background()))
	}()

	// Let both callers pile up on the in-flight rebuild, then release it.
	require.Eventually(t, func() bool {
		return st.callCount() == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(st.blockCh)
	wg.Wait()

	assert.Equal(t, 1, st.callCount())
	assert.Equal(t, 6, idx.Size())
}

func TestIndex_RefreshInBackground_IgnoresTTL(t *testing.T) {
	st := &stubStore{products: beerCatalog()}
	idx := NewIndex(st, NewResultCache(0), testLogger())

	require.NoError(t, idx.WarmUp(context.Background()))
	require.NoError(t, idx.RefreshInBackground(context.Background()))

	assert.Equal(t, 2, st.callCount())
}
