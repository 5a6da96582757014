package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
	"github.com/matthewtrundle/PremierATX-sub004/internal/service"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/kafka"
)

// CollectionsUpdatedPayload is the payload of catalog.collections.updated
// events. An empty handle means the whole catalog changed.
type CollectionsUpdatedPayload struct {
	Handle string `json:"handle"`
}

// Handler reacts to catalog change events: collection updates invalidate the
// affected cache entries, product refreshes force a full index rebuild.
type Handler struct {
	catalog *service.Catalog
	logger  *slog.Logger
}

// NewHandler creates the catalog event handler.
func NewHandler(catalog *service.Catalog, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

// HandleCollectionsUpdated processes catalog.collections.updated events by
// invalidating the named collection, or every collection when no handle is
// given. Reload happens lazily on the next request via cache observers.
func (h *Handler) HandleCollectionsUpdated(ctx context.Context, event *kafka.Event) error {
	var payload CollectionsUpdatedPayload
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("unmarshal collections updated payload: %w", err)
	}

	if payload.Handle == "" || payload.Handle == domain.HandleAll {
		h.catalog.ClearCaches(ctx)
		h.logger.InfoContext(ctx, "all collections invalidated",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	h.catalog.InvalidateCollection(payload.Handle)
	h.logger.InfoContext(ctx, "collection invalidated",
		slog.String("handle", payload.Handle),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// HandleProductsRefresh processes catalog.products.refresh events by
// rebuilding the search index from the full catalog.
func (h *Handler) HandleProductsRefresh(ctx context.Context, event *kafka.Event) error {
	if err := h.catalog.RefreshIndex(ctx); err != nil {
		return fmt.Errorf("refresh search index: %w", err)
	}

	h.logger.InfoContext(ctx, "search index refreshed from event",
		slog.String("event_id", event.EventID),
		slog.Int("products", h.catalog.IndexSize()),
	)
	return nil
}
