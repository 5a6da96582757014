package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtrundle/PremierATX-sub004/internal/cache"
	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/loader"
	"github.com/matthewtrundle/PremierATX-sub004/internal/search"
	"github.com/matthewtrundle/PremierATX-sub004/internal/service"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/health"
)

type stubStore struct {
	mu   sync.Mutex
	byID map[string][]domain.Product
}

func newStubStore() *stubStore {
	return &stubStore{byID: make(map[string][]domain.Product)}
}

func (s *stubStore) FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle == domain.HandleAll {
		var all []domain.Product
		for _, products := range s.byID {
			all = append(all, products...)
		}
		return all, nil
	}
	products, ok := s.byID[handle]
	if !ok {
		return nil, apperrors.NotFound("collection", handle)
	}
	return products, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupServer(t *testing.T, st *stubStore) *httptest.Server {
	t.Helper()

	logger := testLogger()
	c := cache.NewCollectionCache(st, logger, cache.WithInterRequestDelay(time.Millisecond))
	idx := search.NewIndex(st, search.NewResultCache(0), logger)
	catalog := service.NewCatalog(c, idx, search.NewQueryStats(0), nil, logger)
	l := loader.New(c, nil, logger)
	t.Cleanup(l.Close)

	srv := httptest.NewServer(NewRouter(catalog, l, health.NewHandler(), logger))
	t.Cleanup(srv.Close)
	return srv
}

func decodeData(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func TestCollectionProducts(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{
		{ID: "1", Title: "Hazy Session IPA"},
		{ID: "2", Title: "Pilsner"},
	}
	srv := setupServer(t, st)

	resp, err := http.Get(srv.URL + "/api/v1/collections/beer/products")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data service.CollectionData
	decodeData(t, resp, &data)
	assert.Equal(t, "beer", data.Handle)
	assert.True(t, data.IsLoaded)
	assert.Len(t, data.Products, 2)
}

func TestCollectionProducts_NotFound(t *testing.T) {
	srv := setupServer(t, newStubStore())

	resp, err := http.Get(srv.URL + "/api/v1/collections/missing/products")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCollection_UnloadedIsNotAnError(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{{ID: "1"}}
	srv := setupServer(t, st)

	resp, err := http.Get(srv.URL + "/api/v1/collections/beer")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data service.CollectionData
	decodeData(t, resp, &data)
	assert.False(t, data.IsLoaded)
	assert.Empty(t, data.Products)
}

func TestSearch(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{
		{ID: "1", Title: "IPA", Category: "Beer"},
		{ID: "2", Title: "Pilsner", Category: "Beer"},
	}
	srv := setupServer(t, st)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=ipa")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result service.SearchResult
	decodeData(t, resp, &result)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "IPA", result.Products[0].Title)
	assert.Equal(t, 1, result.TotalFound)
	assert.False(t, result.FromCache)
}

func TestSearch_SecondIdenticalQueryIsCached(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{{ID: "1", Title: "IPA"}}
	srv := setupServer(t, st)

	resp, err := http.Get(srv.URL + "/api/v1/search?q=ipa")
	require.NoError(t, err)
	var first service.SearchResult
	decodeData(t, resp, &first)
	require.False(t, first.FromCache)

	resp, err = http.Get(srv.URL + "/api/v1/search?q=ipa")
	require.NoError(t, err)
	var second service.SearchResult
	decodeData(t, resp, &second)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.TotalFound, second.TotalFound)
}

func TestSearch_InvalidLimit(t *testing.T) {
	srv := setupServer(t, newStubStore())

	resp, err := http.Get(srv.URL + "/api/v1/search?q=ipa&limit=zero")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreload_Accepted(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{{ID: "1"}}
	srv := setupServer(t, st)

	resp, err := http.Post(srv.URL+"/api/v1/collections/preload", "application/json",
		strings.NewReader(`{"handles":["beer"]}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestPreload_EmptyHandlesRejected(t *testing.T) {
	srv := setupServer(t, newStubStore())

	resp, err := http.Post(srv.URL+"/api/v1/collections/preload", "application/json",
		strings.NewReader(`{"handles":[]}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClearCache(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{{ID: "1"}}
	srv := setupServer(t, st)

	resp, err := http.Get(srv.URL + "/api/v1/collections/beer/products")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/v1/cache/clear", "application/json", http.NoBody)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetActive_LoadsCollection(t *testing.T) {
	st := newStubStore()
	st.byID["beer"] = []domain.Product{{ID: "1"}, {ID: "2"}}
	srv := setupServer(t, st)

	resp, err := http.Post(srv.URL+"/api/v1/collections/active", "application/json",
		strings.NewReader(`{"handle":"beer"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state ActiveState
	decodeData(t, resp, &state)
	assert.Equal(t, "beer", state.Handle)
	assert.Equal(t, 2, state.Products)

	resp, err = http.Get(srv.URL + "/api/v1/collections/active")
	require.NoError(t, err)
	decodeData(t, resp, &state)
	assert.Equal(t, "beer", state.Handle)
	assert.Equal(t, string(loader.StateReady), state.State)
}

func TestSetActive_MissingHandleRejected(t *testing.T) {
	srv := setupServer(t, newStubStore())

	resp, err := http.Post(srv.URL+"/api/v1/collections/active", "application/json",
		strings.NewReader(`{"handle":"  "}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthLive(t *testing.T) {
	srv := setupServer(t, newStubStore())

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
