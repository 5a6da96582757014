package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_FetchCollection(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/sync/products", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []map[string]any{
				{"id": "1", "title": "Hazy Session IPA", "price": "8.99"},
				{"id": "", "title": "dropped at the boundary"},
				{"id": "2", "title": "Pilsner", "price": 6.5},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())

	products, err := c.FetchCollection(context.Background(), "beer", false)
	require.NoError(t, err)

	// Invalid entries are dropped during normalization, order preserved.
	require.Len(t, products, 2)
	assert.Equal(t, "Hazy Session IPA", products[0].Title)
	assert.Equal(t, domain.Price("8.99"), products[0].Price)
	assert.Equal(t, domain.Price("6.5"), products[1].Price)
	assert.Equal(t, "collection=beer", gotQuery)
}

func TestClient_FetchCollection_ForceRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		_ = json.NewEncoder(w).Encode(map[string]any{"products": []any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())

	_, err := c.FetchCollection(context.Background(), "beer", true)
	require.NoError(t, err)
}

func TestClient_FetchCollection_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())

	_, err := c.FetchCollection(context.Background(), "nope", false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClient_FetchCollection_EmptyHandle(t *testing.T) {
	c := NewClient("http://localhost:0", testLogger())

	_, err := c.FetchCollection(context.Background(), "", false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestClient_FetchCollection_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())

	_, err := c.FetchCollection(context.Background(), "beer", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClient_FetchCollection_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refused connections from here on

	// No retries so the test does not sit through retry backoff.
	base := httpclient.New(httpclient.Config{
		Timeout:         time.Second,
		MaxRetries:      0,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    time.Millisecond,
		MaxConnsPerHost: 10,
	})
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("test"), testLogger())
	c := NewClientWithHTTP(srv.URL, cb, testLogger())

	_, err := c.FetchCollection(context.Background(), "beer", false)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}
