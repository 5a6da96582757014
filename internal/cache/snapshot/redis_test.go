package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, time.Hour), mr
}

func TestCache_SetGet(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	products := []domain.Product{
		{ID: "1", Title: "Hazy Session IPA", Price: "8.99"},
		{ID: "2", Title: "Pilsner", Price: "6.50"},
	}

	require.NoError(t, c.Set(ctx, "beer", products))

	got, err := c.Get(ctx, "beer")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Hazy Session IPA", got[0].Title)
	assert.Equal(t, domain.Price("8.99"), got[0].Price)
}

func TestCache_Get_Missing(t *testing.T) {
	c, _ := setupCache(t)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCache_Set_AppliesTTL(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "beer", []domain.Product{{ID: "1"}}))

	mr.FastForward(2 * time.Hour)

	_, err := c.Get(ctx, "beer")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCache_Delete(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "beer", []domain.Product{{ID: "1"}}))
	require.NoError(t, c.Delete(ctx, "beer"))

	_, err := c.Get(ctx, "beer")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCache_DeleteAll(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "beer", []domain.Product{{ID: "1"}}))
	require.NoError(t, c.Set(ctx, "wine", []domain.Product{{ID: "2"}}))
	// Keys outside the snapshot prefix are untouched.
	mr.Set("unrelated", "keep")

	require.NoError(t, c.DeleteAll(ctx))

	_, err := c.Get(ctx, "beer")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = c.Get(ctx, "wine")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, mr.Exists("unrelated"))
}
