package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/TableOrder/pkg/health"
	"github.com/utafrali/TableOrder/pkg/middleware"
)

// RouterDeps holds everything NewRouter mounts.
type RouterDeps struct {
	Carts     CartService
	Checkouts CheckoutService
	History   HistoryService
	Health    *health.Handler

	// Limiter throttles the table API per client. Nil disables it.
	Limiter *middleware.Limiter
	// TableTokenSecret enables signed table tokens when set.
	TableTokenSecret []byte
	CORS             middleware.CORSConfig
	PprofCIDRs       []string
	Logger           *slog.Logger
}

// NewRouter creates a chi router with all table routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(deps.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("tableorder"))
	r.Use(middleware.Tracing("tableorder"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, deps.PprofCIDRs, logger)

	carts := NewCartHandler(deps.Carts, logger)
	checkouts := NewCheckoutHandler(deps.Checkouts, logger)
	orders := NewOrderHandler(deps.History, logger)

	r.Route("/api/v1/tables/{tenant}/{table}", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		r.Use(middleware.NoStore())
		if deps.Limiter != nil {
			r.Use(middleware.RateLimit(deps.Limiter, logger))
		}
		r.Use(middleware.TableSession(logger))
		if len(deps.TableTokenSecret) > 0 {
			r.Use(middleware.TableToken(deps.TableTokenSecret, logger))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Patch("/items/{itemId}", carts.UpdateQuantity)
			r.Delete("/items/{itemId}", carts.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkouts.Begin)
			r.Get("/", checkouts.List)
			r.Get("/{id}", checkouts.Get)
			r.Post("/{id}/method", checkouts.SelectMethod)
			r.Post("/{id}/confirm", checkouts.Confirm)
			r.Post("/{id}/retry", checkouts.Retry)
			r.Post("/{id}/cash", checkouts.FallbackToCash)
			r.Post("/{id}/abandon", checkouts.Abandon)
		})

		r.Get("/orders", orders.List)
		r.Post("/orders/refresh", orders.Refresh)
	})

	return r
}
