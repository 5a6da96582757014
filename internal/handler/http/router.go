package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewtrundle/PremierATX-sub004/internal/loader"
	"github.com/matthewtrundle/PremierATX-sub004/internal/service"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/health"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/middleware"
)

// NewRouter creates a chi router with all catalog service routes registered.
func NewRouter(
	catalog *service.Catalog,
	activeLoader *loader.Loader,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("catalog"))
	r.Use(middleware.PrometheusMetrics("catalog"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	catalogHandler := NewCatalogHandler(catalog, logger)
	activeHandler := NewActiveHandler(activeLoader, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/collections", func(r chi.Router) {
			r.Post("/preload", catalogHandler.Preload)
			r.Get("/active", activeHandler.Active)
			r.Post("/active", activeHandler.SetActive)

			r.Group(func(r chi.Router) {
				// Collection reads are cacheable by edge proxies for a minute.
				r.Use(middleware.CacheControl(60))
				r.Get("/{handle}", catalogHandler.Collection)
				r.Get("/{handle}/products", catalogHandler.CollectionProducts)
			})
		})

		r.Get("/search", catalogHandler.Search)
		r.Post("/cache/clear", catalogHandler.ClearCache)
	})

	return r
}
