package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	apperrors "github.com/matthewtrundle/PremierATX-sub004/pkg/errors"
)

// Pool is the subset of pgxpool.Pool used by the repository. pgxmock's pool
// satisfies it, which keeps the repository testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Snapshot is a durable copy of a collection's product list plus the time it
// was last synchronized from upstream.
type Snapshot struct {
	Handle   string
	Products []domain.Product
	SyncedAt time.Time
}

// SnapshotRepository persists collection snapshots in PostgreSQL.
type SnapshotRepository struct {
	pool Pool
}

// NewSnapshotRepository creates a PostgreSQL-backed snapshot repository.
func NewSnapshotRepository(pool Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Get retrieves the snapshot for a collection handle.
func (r *SnapshotRepository) Get(ctx context.Context, handle string) (*Snapshot, error) {
	query := `
		SELECT handle, products, synced_at
		FROM collection_snapshots
		WHERE handle = $1`

	var (
		snap         Snapshot
		productsJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, handle).Scan(&snap.Handle, &productsJSON, &snap.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("collection snapshot", handle)
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	if err := json.Unmarshal(productsJSON, &snap.Products); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot products: %w", err)
	}

	return &snap, nil
}

// Save upserts the snapshot for a collection handle.
func (r *SnapshotRepository) Save(ctx context.Context, snap *Snapshot) error {
	productsJSON, err := json.Marshal(snap.Products)
	if err != nil {
		return fmt.Errorf("marshal snapshot products: %w", err)
	}

	query := `
		INSERT INTO collection_snapshots (handle, products, synced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (handle) DO UPDATE
		SET products = EXCLUDED.products, synced_at = EXCLUDED.synced_at`

	if _, err := r.pool.Exec(ctx, query, snap.Handle, productsJSON, snap.SyncedAt); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	return nil
}

// Delete removes the snapshot for a collection handle.
func (r *SnapshotRepository) Delete(ctx context.Context, handle string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM collection_snapshots WHERE handle = $1`, handle)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("collection snapshot", handle)
	}
	return nil
}

// Handles lists all collection handles that have a stored snapshot.
func (r *SnapshotRepository) Handles(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT handle FROM collection_snapshots ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("select snapshot handles: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan snapshot handle: %w", err)
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot handles: %w", err)
	}

	return handles, nil
}
