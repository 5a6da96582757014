package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks GET responses as edge-cacheable for maxAge seconds.
// Collection reads tolerate a short staleness window; a non-positive maxAge
// emits no-store instead. Other methods are left untouched.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	header := "no-store"
	if maxAge > 0 {
		header = fmt.Sprintf("public, max-age=%d", maxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", header)
			}
			next.ServeHTTP(w, r)
		})
	}
}
