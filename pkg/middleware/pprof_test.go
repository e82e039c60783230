package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIPAllowlist(t *testing.T) {
	cidrs := []string{"10.0.0.0/8", "127.0.0.0/8", "::1/128", "not-a-cidr"}
	h := IPAllowlist(cidrs, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{"10.1.2.3:5555", http.StatusOK},
		{"127.0.0.1:80", http.StatusOK},
		{"[::1]:8080", http.StatusOK},
		{"10.9.9.9", http.StatusOK},
		{"192.168.1.20:5555", http.StatusForbidden},
		{"[2001:db8::1]:443", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIPAllowlist_OnlyInvalidCIDRsDeniesAll(t *testing.T) {
	h := IPAllowlist([]string{"bogus"}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterPprof(t *testing.T) {
	t.Run("mounted behind allowlist", func(t *testing.T) {
		r := chi.NewRouter()
		RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

		local := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
		local.RemoteAddr = "127.0.0.1:4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, local)
		assert.Equal(t, http.StatusOK, rec.Code)

		remote := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
		remote.RemoteAddr = "203.0.113.7:4000"
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, remote)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("not mounted without CIDRs", func(t *testing.T) {
		r := chi.NewRouter()
		RegisterPprof(r, nil, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
		req.RemoteAddr = "127.0.0.1:4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
