package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
)

const keyPrefix = "collection:"

// Cache is the Redis-backed snapshot tier, the loader's ultra-fast path. It
// holds pre-normalized product lists keyed by collection handle, shared by all
// storefront instances behind the same Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a Redis-backed snapshot cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the snapshot for a collection handle. A missing key is
// reported as apperrors.ErrNotFound.
func (c *Cache) Get(ctx context.Context, handle string) ([]domain.Product, error) {
	data, err := c.client.Get(ctx, keyPrefix+handle).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("collection snapshot", handle)
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return products, nil
}

// Set stores the snapshot for a collection handle with the configured TTL.
func (c *Cache) Set(ctx context.Context, handle string, products []domain.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+handle, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}

	return nil
}

// Delete removes the snapshot for a collection handle.
func (c *Cache) Delete(ctx context.Context, handle string) error {
	if err := c.client.Del(ctx, keyPrefix+handle).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}

// DeleteAll removes every stored snapshot.
func (c *Cache) DeleteAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del snapshot %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan snapshots: %w", err)
	}
	return nil
}
