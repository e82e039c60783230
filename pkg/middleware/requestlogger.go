package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/TableOrder/pkg/logger"
)

// RequestLogger builds a request-scoped logger enriched with every field the
// logger package knows about and stores it in the request context.
//
// Mount it after RequestLogging and Tracing. TableSession re-runs the
// enrichment once the table is known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.NewContext(r.Context(), logger.WithContext(r.Context(), base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
