// Package backend is the HTTP client of the restaurant backend that owns
// restaurants, orders and payments.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/TableOrder/internal/domain"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/httpclient"
	"github.com/utafrali/TableOrder/pkg/tracing"
)

const serviceName = "restaurant backend"

// CircuitOpenFallback replaces the breaker's ErrCircuitOpen with an error the
// guest can act on.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("the restaurant is temporarily unreachable, please retry in a few seconds")
}

// Client calls the restaurant backend. Both httpclient.Client and
// httpclient.CircuitBreakerClient can serve as its transport.
type Client struct {
	http    httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// OrderLine is one line of an order submission.
type OrderLine struct {
	MenuItemID string   `json:"menuItemId"`
	Quantity   int      `json:"quantity"`
	VariantID  string   `json:"variantId,omitempty"`
	ExtraIDs   []string `json:"extraIds,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// OrderRequest is the body of an order submission. IdempotencyKey is sent as
// a header, not in the body.
type OrderRequest struct {
	IdempotencyKey string               `json:"-"`
	TableNumber    int                  `json:"tableNumber"`
	Items          []OrderLine          `json:"items"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	TipAmount      int64                `json:"tipAmount"`
	TipPercent     int                  `json:"tipPercent,omitempty"`
	ServiceFee     int64                `json:"serviceFee"`
	Total          int64                `json:"total"`
}

// CreatedOrder is the backend's answer to an order submission.
type CreatedOrder struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
}

// PaymentRequest is the body of a provisional payment creation.
type PaymentRequest struct {
	IdempotencyKey string               `json:"-"`
	RestaurantID   string               `json:"restaurantId"`
	TableNumber    int                  `json:"tableNumber"`
	Amount         int64                `json:"amount"`
	Subtotal       int64                `json:"subtotal"`
	ServiceFee     int64                `json:"serviceFee"`
	Currency       string               `json:"currency"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	TipAmount      int64                `json:"tipAmount"`
	Items          []OrderLine          `json:"items"`
}

// Lines converts cart items into order lines.
func Lines(items []domain.CartItem) []OrderLine {
	lines := make([]OrderLine, len(items))
	for i, it := range items {
		line := OrderLine{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Notes:      it.Notes,
		}
		if it.Variant != nil {
			line.VariantID = it.Variant.ID
		}
		for _, e := range it.Extras {
			line.ExtraIDs = append(line.ExtraIDs, e.ID)
		}
		lines[i] = line
	}
	return lines
}

// GetRestaurant fetches the profile of the restaurant behind slug.
func (c *Client) GetRestaurant(ctx context.Context, slug string) (*domain.Restaurant, error) {
	var envelope struct {
		Data domain.Restaurant `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/restaurants/"+url.PathEscape(slug), "", nil, &envelope); err != nil {
		return nil, fmt.Errorf("get restaurant %s: %w", slug, err)
	}
	if envelope.Data.Slug == "" {
		envelope.Data.Slug = slug
	}
	return &envelope.Data, nil
}

// CreateOrder submits an order for the table directly, as the cash path does.
func (c *Client) CreateOrder(ctx context.Context, slug string, req OrderRequest) (*CreatedOrder, error) {
	var envelope struct {
		Data CreatedOrder `json:"data"`
	}
	path := "/api/restaurants/" + url.PathEscape(slug) + "/order"
	if err := c.do(ctx, http.MethodPost, path, req.IdempotencyKey, req, &envelope); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if envelope.Data.ID == "" {
		return nil, fmt.Errorf("create order: %s returned no order id", serviceName)
	}

	c.logger.InfoContext(ctx, "order created",
		slog.String("tenant", slug),
		slog.String("order_id", envelope.Data.ID),
		slog.String("order_number", envelope.Data.OrderNumber),
	)
	return &envelope.Data, nil
}

// CreatePayment asks the backend for a provisional payment. A 2xx body that
// carries an error field is a rejection.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*domain.PendingPayment, error) {
	var body struct {
		ClientSecret     string          `json:"clientSecret"`
		PendingPaymentID string          `json:"pendingPaymentId"`
		Error            json.RawMessage `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/stripe-connect/create-payment", req.IdempotencyKey, req, &body); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	raw, _ := json.Marshal(map[string]json.RawMessage{"error": body.Error})
	if _, message, ok := httpclient.DecodeErrorBody(raw); ok {
		return nil, apperrors.PaymentFailed(message)
	}
	if body.PendingPaymentID == "" || body.ClientSecret == "" {
		return nil, fmt.Errorf("create payment: %s returned an incomplete payment", serviceName)
	}

	c.logger.InfoContext(ctx, "provisional payment created",
		slog.String("payment_id", body.PendingPaymentID),
		slog.Int64("amount", req.Amount),
	)
	return &domain.PendingPayment{ID: body.PendingPaymentID, ClientSecret: body.ClientSecret}, nil
}

// PaymentStatus reads the current status of a provisional payment.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (*domain.StatusReport, error) {
	var report domain.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/payments/"+url.PathEscape(paymentID)+"/status", "", nil, &report); err != nil {
		return nil, fmt.Errorf("payment status %s: %w", paymentID, err)
	}
	switch report.Status {
	case domain.PaymentPending, domain.PaymentCompleted, domain.PaymentFailed:
		return &report, nil
	default:
		return nil, fmt.Errorf("payment status %s: unknown status %q", paymentID, report.Status)
	}
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any) (err error) {
	ctx, end := tracing.StartSpan(ctx, "backend."+method,
		attribute.String("http.route", path),
		attribute.Bool("idempotent", idempotencyKey != ""),
	)
	defer func() { end(err) }()

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(httpclient.IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s: %w", serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}
