package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/matthewtrundle/PremierATX-sub004/pkg/httputil"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/logger"
)

// Recovery converts handler panics into a standard JSON 500 so one bad
// request cannot take the catalog process down. http.ErrAbortHandler is
// re-raised untouched; it is the server's own abort signal, not a bug.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.WithContext(r.Context(), l).ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "INTERNAL_ERROR",
						Message:   "an internal error occurred",
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
