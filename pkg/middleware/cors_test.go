package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tableUI = "https://order.trattoria.example"

func serveCORS(cfg CORSConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func withOrigin(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/tables/trattoria/4/cart", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORS_AllowOrigin(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		origin     string
		wantOrigin string
		wantVary   string
	}{
		{
			name:       "wildcard in development",
			cfg:        CORSConfig{AllowedOrigins: []string{tableUI}, Environment: "development"},
			origin:     "https://anything.example",
			wantOrigin: "*",
		},
		{
			name:       "explicit wildcard in production",
			cfg:        CORSConfig{AllowedOrigins: []string{"*"}, Environment: "production"},
			origin:     tableUI,
			wantOrigin: "*",
		},
		{
			name:       "listed origin is echoed",
			cfg:        CORSConfig{AllowedOrigins: []string{tableUI}, Environment: "production"},
			origin:     tableUI,
			wantOrigin: tableUI,
			wantVary:   "Origin",
		},
		{
			name:   "unlisted origin gets nothing",
			cfg:    CORSConfig{AllowedOrigins: []string{tableUI}, Environment: "production"},
			origin: "https://evil.example",
		},
		{
			name: "no origin header",
			cfg:  CORSConfig{AllowedOrigins: []string{tableUI}, Environment: "production"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reached := serveCORS(tt.cfg, withOrigin(http.MethodGet, tt.origin))

			assert.True(t, reached)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rec.Header().Get("Vary"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := withOrigin(http.MethodOptions, tableUI)
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)

	rec, reached := serveCORS(DefaultCORSConfig(), req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, PATCH, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_OptionsWithoutPreflightReachesRouter(t *testing.T) {
	rec, reached := serveCORS(DefaultCORSConfig(), withOrigin(http.MethodOptions, ""))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_Defaults(t *testing.T) {
	rec, _ := serveCORS(CORSConfig{AllowedOrigins: []string{tableUI}}, withOrigin(http.MethodGet, tableUI))

	assert.Equal(t, "GET, POST, PATCH, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Accept, Content-Type, X-Correlation-ID, Idempotency-Key, X-Table-Token", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_CustomHeadersAndCredentials(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{tableUI},
		AllowedHeaders:   []string{"Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{CorrelationIDHeader, "Retry-After"},
		MaxAge:           600,
		AllowCredentials: true,
	}

	rec, _ := serveCORS(cfg, withOrigin(http.MethodPost, tableUI))

	assert.Equal(t, "Content-Type, Idempotency-Key", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, CorrelationIDHeader+", Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
