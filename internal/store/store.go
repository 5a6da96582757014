package store

import (
	"context"

	"github.com/matthewtrundle/PremierATX-sub004/internal/domain"
)

// CollectionStore fetches the ordered product list for a collection handle.
// The sentinel handle domain.HandleAll requests the entire catalog.
//
// A missing collection is reported as an error (apperrors.ErrNotFound), not as
// an empty list: callers distinguish "upstream failed" from "collection holds
// zero products" through the error, never through list length.
type CollectionStore interface {
	FetchCollection(ctx context.Context, handle string, forceRefresh bool) ([]domain.Product, error)
}
