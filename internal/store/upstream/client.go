package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/httpclient"
)

// Client fetches collections from the catalog sync endpoint (the service that
// mirrors the merchant's product catalog). Requests go through a retrying HTTP
// client wrapped in a circuit breaker so a flapping upstream cannot absorb
// every storefront request.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// NewClient creates a sync endpoint client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	base := httpclient.New(httpclient.DefaultConfig())
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("catalog-sync"), logger)
	return &Client{
		baseURL: baseURL,
		http:    cb,
		logger:  logger,
	}
}

// NewClientWithHTTP creates a client with a caller-supplied HTTP client
// (used by tests).
func NewClientWithHTTP(baseURL string, httpClient *httpclient.CircuitBreakerClient, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger,
	}
}

// syncResponse is the sync endpoint's response envelope.
type syncResponse struct {
	Products []domain.Product `json:"products"`
}

// FetchCollection retrieves the ordered product list for a collection handle.
// The sentinel handle domain.HandleAll requests the full catalog.
func (c *Client) FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	if handle == "" {
		return nil, apperrors.InvalidInput("collection handle is required")
	}

	q := url.Values{}
	q.Set("collection", handle)
	if forceRefresh {
		q.Set("force", "true")
	}

	reqURL := fmt.Sprintf("%s/sync/products?%s", c.baseURL, q.Encode())

	resp, err := c.http.Get(ctx, reqURL)
	if err != nil {
		return nil, apperrors.Unavailable("catalog sync endpoint", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("collection", handle)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("catalog sync returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}

	products := domain.NormalizeProducts(payload.Products)

	c.logger.DebugContext(ctx, "fetched collection from sync endpoint",
		slog.String("handle", handle),
		slog.Int("products", len(products)),
		slog.Bool("force", forceRefresh),
	)

	return products, nil
}
