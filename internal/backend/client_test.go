package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/TableOrder/internal/domain"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return NewClient(httpclient.New(cfg), srv.URL+"/", testLogger())
}

func TestLines(t *testing.T) {
	items := []domain.CartItem{{
		ID:         "line-1",
		MenuItemID: "pizza",
		Quantity:   2,
		Variant:    &domain.Option{ID: "large"},
		Extras:     []domain.Option{{ID: "olives"}, {ID: "basil"}},
		Notes:      "well done",
	}}

	lines := Lines(items)
	require.Len(t, lines, 1)
	assert.Equal(t, OrderLine{
		MenuItemID: "pizza",
		Quantity:   2,
		VariantID:  "large",
		ExtraIDs:   []string{"olives", "basil"},
		Notes:      "well done",
	}, lines[0])
}

func TestGetRestaurant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/restaurants/pizzeria", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"r-1","slug":"pizzeria","name":"Pizzeria","currency":"EUR","serviceFee":150}}`))
	})

	r, err := c.GetRestaurant(context.Background(), "pizzeria")
	require.NoError(t, err)
	assert.Equal(t, &domain.Restaurant{ID: "r-1", Slug: "pizzeria", Name: "Pizzeria", Currency: "EUR", ServiceFee: 150}, r)
}

func TestGetRestaurant_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"restaurant not found"}`))
	})

	_, err := c.GetRestaurant(context.Background(), "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/restaurants/pizzeria/order", r.URL.Path)
		assert.Equal(t, "att-1:order:3", r.Header.Get(httpclient.IdempotencyKeyHeader))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CASH", body["paymentMethod"])
		assert.EqualValues(t, 4, body["tableNumber"])
		assert.EqualValues(t, 235, body["tipAmount"])
		assert.NotContains(t, body, "IdempotencyKey")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"o-1","orderNumber":"A-17"}}`))
	})

	order, err := c.CreateOrder(context.Background(), "pizzeria", OrderRequest{
		IdempotencyKey: "att-1:order:3",
		TableNumber:    4,
		Items:          []OrderLine{{MenuItemID: "pizza", Quantity: 1}},
		PaymentMethod:  domain.MethodCash,
		TipAmount:      235,
		TipPercent:     10,
		Total:          2585,
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.ID)
	assert.Equal(t, "A-17", order.OrderNumber)
}

func TestCreateOrder_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"KITCHEN_CLOSED","message":"kitchen is closed"}}`))
	})

	_, err := c.CreateOrder(context.Background(), "pizzeria", OrderRequest{TableNumber: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "kitchen is closed")
}

func TestCreateOrder_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	_, err := c.CreateOrder(context.Background(), "pizzeria", OrderRequest{TableNumber: 1})
	assert.Error(t, err)
}

func TestCreatePayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stripe-connect/create-payment", r.URL.Path)
		var body PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(2585), body.Amount)
		assert.Equal(t, int64(2200), body.Subtotal)
		assert.Equal(t, int64(150), body.ServiceFee)
		assert.Equal(t, "EUR", body.Currency)
		_, _ = w.Write([]byte(`{"clientSecret":"pi_1_secret","pendingPaymentId":"pp-1"}`))
	})

	p, err := c.CreatePayment(context.Background(), PaymentRequest{
		RestaurantID: "r-1", TableNumber: 4, Amount: 2585, Subtotal: 2200, ServiceFee: 150,
		Currency: "EUR", PaymentMethod: domain.MethodCard, TipAmount: 235,
	})
	require.NoError(t, err)
	assert.Equal(t, &domain.PendingPayment{ID: "pp-1", ClientSecret: "pi_1_secret"}, p)
}

func TestCreatePayment_ErrorBody(t *testing.T) {
	for _, body := range []string{
		`{"error":"Stripe account not connected"}`,
		`{"error":{"message":"Stripe account not connected"}}`,
	} {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := c.CreatePayment(context.Background(), PaymentRequest{Amount: 100})
		require.Error(t, err, body)
		assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Stripe account not connected", appErr.Message)
	}
}

func TestCreatePayment_IncompleteBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pendingPaymentId":"pp-1"}`))
	})

	_, err := c.CreatePayment(context.Background(), PaymentRequest{Amount: 100})
	assert.Error(t, err)
}

func TestPaymentStatus(t *testing.T) {
	tests := []struct {
		body    string
		want    *domain.StatusReport
		wantErr bool
	}{
		{`{"status":"pending"}`, &domain.StatusReport{Status: domain.PaymentPending}, false},
		{`{"status":"completed","orderNumber":"B-2"}`, &domain.StatusReport{Status: domain.PaymentCompleted, OrderNumber: "B-2"}, false},
		{`{"status":"failed"}`, &domain.StatusReport{Status: domain.PaymentFailed}, false},
		{`{"status":"exploded"}`, nil, true},
		{`not json`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/payments/pp-1/status", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := c.PaymentStatus(context.Background(), "pp-1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CircuitOpenFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cbCfg := httpclient.DefaultCircuitBreakerConfig("backend-test-fallback")
	cbCfg.MinRequests = 2
	cbCfg.Timeout = time.Minute
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), cbCfg, testLogger()).
		WithFallback(CircuitOpenFallback)
	c := NewClient(breaker, srv.URL, testLogger())

	for i := 0; i < 2; i++ {
		_, err := c.PaymentStatus(context.Background(), "pp-1")
		require.Error(t, err)
	}

	_, err := c.PaymentStatus(context.Background(), "pp-1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RecordsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"restaurant not found"}`))
	})

	_, err := c.GetRestaurant(context.Background(), "ghost")
	require.Error(t, err)

	var span *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "backend.GET" {
			span = &spans[i]
		}
	}
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Contains(t, span.Attributes, attribute.String("http.route", "/api/restaurants/ghost"))
}
