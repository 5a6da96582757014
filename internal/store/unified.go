package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/store/postgres"
)

// SnapshotRepository is the durable snapshot persistence used by the unified
// store. Implemented by postgres.SnapshotRepository.
type SnapshotRepository interface {
	Get(ctx context.Context, handle string) (*postgres.Snapshot, error)
	Save(ctx context.Context, snap *postgres.Snapshot) error
}

// UnifiedStore layers the durable snapshot table over the upstream sync
// endpoint. Fresh snapshots are served straight from the database; anything
// else goes upstream and the result is written back. When upstream fails, an
// existing snapshot is served regardless of its age so storefronts keep
// rendering during outages.
type UnifiedStore struct {
	upstream  CollectionStore
	snapshots SnapshotRepository
	freshFor  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewUnifiedStore creates a unified store. freshFor is how long a stored
// snapshot is served without consulting upstream.
func NewUnifiedStore(upstream CollectionStore, snapshots SnapshotRepository, freshFor time.Duration, logger *slog.Logger) *UnifiedStore {
	return &UnifiedStore{
		upstream:  upstream,
		snapshots: snapshots,
		freshFor:  freshFor,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the store's clock. Tests use this to control freshness.
func (s *UnifiedStore) WithClock(now func() time.Time) *UnifiedStore {
	s.now = now
	return s
}

// FetchCollection implements CollectionStore.
func (s *UnifiedStore) FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error) {
	if !forceRefresh {
		snap, err := s.snapshots.Get(ctx, handle)
		if err == nil && s.now().Sub(snap.SyncedAt) < s.freshFor {
			return snap.Products, nil
		}
	}

	products, err := s.upstream.FetchCollection(ctx, handle, forceRefresh)
	if err != nil {
		// Upstream down: any stored snapshot beats an empty storefront.
		snap, snapErr := s.snapshots.Get(ctx, handle)
		if snapErr == nil {
			s.logger.WarnContext(ctx, "upstream fetch failed, serving stored snapshot",
				slog.String("handle", handle),
				slog.Time("synced_at", snap.SyncedAt),
				slog.String("error", err.Error()),
			)
			return snap.Products, nil
		}
		return nil, err
	}

	snap := &postgres.Snapshot{
		Handle:   handle,
		Products: products,
		SyncedAt: s.now().UTC(),
	}
	if saveErr := s.snapshots.Save(ctx, snap); saveErr != nil {
		// Persistence is best-effort; the fetched products are still good.
		s.logger.WarnContext(ctx, "failed to persist collection snapshot",
			slog.String("handle", handle),
			slog.String("error", saveErr.Error()),
		)
	}

	return products, nil
}
