package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/TableOrder/pkg/logger"
)

func tableRouter(t *testing.T, buf *bytes.Buffer, got *logger.Table) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/tables/{tenant}/{table}", func(r chi.Router) {
		r.Use(TableSession(newTestLogger(buf)))
		r.Get("/cart", func(w http.ResponseWriter, r *http.Request) {
			tbl, ok := TableFromRequest(r)
			require.True(t, ok)
			*got = tbl
			logger.FromContext(r.Context()).Info("in handler")
		})
	})
	return r
}

func TestTableSession_ResolvesTable(t *testing.T) {
	var buf bytes.Buffer
	var got logger.Table
	rec := httptest.NewRecorder()
	tableRouter(t, &buf, &got).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tables/Pizza-Place/12/cart", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, logger.Table{Tenant: "pizza-place", Number: 12}, got)

	out := lastLine(t, &buf)
	assert.Equal(t, "pizza-place", out["tenant"])
	assert.Equal(t, float64(12), out["table"])
}

func TestTableSession_RejectsBadTable(t *testing.T) {
	for _, path := range []string{"/tables/pizza/0/cart", "/tables/pizza/-3/cart", "/tables/pizza/abc/cart", "/tables/---/3/cart"} {
		var buf bytes.Buffer
		var got logger.Table
		rec := httptest.NewRecorder()
		tableRouter(t, &buf, &got).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "INVALID_INPUT", body["error"]["code"])
	}
}
