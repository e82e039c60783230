package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/logger"
)

// TableTokenHeader carries the signed table token. Browsers that opened the
// QR link may pass it as the TableTokenQuery parameter instead.
const (
	TableTokenHeader = "X-Table-Token"
	TableTokenQuery  = "t"
)

// TableClaims binds a token to one table of one restaurant.
type TableClaims struct {
	Tenant string `json:"tenant"`
	Table  int    `json:"table"`
	jwt.RegisteredClaims
}

// MintTableToken signs a token for tenant and table with HS256. A zero ttl
// mints a token without expiry, suitable for a printed QR code.
func MintTableToken(secret []byte, tenant string, table int, ttl time.Duration, now time.Time) (string, error) {
	claims := TableClaims{
		Tenant: tenant,
		Table:  table,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// TableToken rejects requests whose table token is missing, invalid, expired
// or issued for another table. It must run after TableSession.
func TableToken(secret []byte, base *slog.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tbl, ok := TableFromRequest(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("table is not resolved"), base)
				return
			}

			raw := r.Header.Get(TableTokenHeader)
			if raw == "" {
				raw = r.URL.Query().Get(TableTokenQuery)
			}
			if raw == "" {
				httputil.WriteError(w, r, apperrors.Forbidden("table token is required, scan the QR code on your table"), base)
				return
			}

			var claims TableClaims
			_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "invalid table token",
					slog.String("error", err.Error()),
					slog.Bool("expired", errors.Is(err, jwt.ErrTokenExpired)),
				)
				httputil.WriteError(w, r, apperrors.Forbidden("table token is invalid or expired, scan the QR code again"), base)
				return
			}

			if claims.Tenant != tbl.Tenant || claims.Table != tbl.Number {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "table token issued for another table",
					slog.String("token_tenant", claims.Tenant),
					slog.Int("token_table", claims.Table),
				)
				httputil.WriteError(w, r, apperrors.Forbidden("table token does not match this table"), base)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
