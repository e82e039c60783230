package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/logger"
	"github.com/utafrali/TableOrder/pkg/slug"
)

// Route parameter names used by TableSession.
const (
	TenantParam = "tenant"
	TableParam  = "table"
)

// TableSession resolves the {tenant} and {table} route parameters, rejects
// malformed ones, and stores the table in the request context. It must be
// mounted on a chi sub-router whose pattern declares both parameters.
func TableSession(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := slug.Generate(chi.URLParam(r, TenantParam))
			if tenant == "" {
				httputil.WriteError(w, r, apperrors.InvalidInput("tenant is required"), base)
				return
			}

			number, err := strconv.Atoi(chi.URLParam(r, TableParam))
			if err != nil || number <= 0 {
				httputil.WriteError(w, r, apperrors.InvalidInput("table must be a positive integer"), base)
				return
			}

			ctx := logger.WithTable(r.Context(), tenant, number)
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TableFromRequest returns the table resolved by TableSession.
func TableFromRequest(r *http.Request) (logger.Table, bool) {
	return logger.TableFromContext(r.Context())
}
