package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matthewtrundle/PremierATX-sub004/internal/service"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/httputil"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/validator"
)

// maxSearchLimit caps the limit query parameter; anything larger falls back to
// the index default.
const maxSearchLimit = 5000

// CatalogHandler handles HTTP requests for collection and search endpoints.
type CatalogHandler struct {
	catalog *service.Catalog
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog *service.Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// PreloadRequest is the JSON request body for warming collections.
type PreloadRequest struct {
	Handles []string `json:"handles" validate:"required,min=1,max=50,dive,min=1"`
}

// CollectionProducts handles GET /api/v1/collections/{handle}/products
func (h *CatalogHandler) CollectionProducts(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(chi.URLParam(r, "handle"))
	if handle == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "collection handle is required"},
		})
		return
	}

	forceRefresh := r.URL.Query().Get("refresh") == "true"

	data, err := h.catalog.CollectionProducts(r.Context(), handle, forceRefresh)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: data})
}

// Collection handles GET /api/v1/collections/{handle}
//
// It reports the cached state without triggering a fetch, so storefront views
// can poll cheaply for "is my collection warm yet".
func (h *CatalogHandler) Collection(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(chi.URLParam(r, "handle"))
	if handle == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "collection handle is required"},
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.catalog.Collection(handle)})
}

// Search handles GET /api/v1/search
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	category := strings.TrimSpace(r.URL.Query().Get("category"))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "limit must be a positive number"},
			})
			return
		}
		if l <= maxSearchLimit {
			limit = l
		}
	}

	result, err := h.catalog.SearchInstant(r.Context(), query, category, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Preload handles POST /api/v1/collections/preload
//
// Warming runs in the background; the handler returns 202 immediately so a
// long preload batch cannot tie up the client.
func (h *CatalogHandler) Preload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req PreloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	// Detached from the request lifetime but keeps the correlation values.
	ctx := context.WithoutCancel(r.Context())
	go h.catalog.PreloadCollections(ctx, req.Handles)

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{
		Data: map[string]any{"status": "preload started", "handles": len(req.Handles)},
	})
}

// ClearCache handles POST /api/v1/cache/clear
func (h *CatalogHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.catalog.ClearCaches(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cleared"}})
}
