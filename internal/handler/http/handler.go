// Package http exposes the cart, checkout and order history of a table over
// a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/service"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/logger"
	"github.com/utafrali/TableOrder/pkg/middleware"
	"github.com/utafrali/TableOrder/pkg/pagination"
	"github.com/utafrali/TableOrder/pkg/validator"
)

// CartService is the cart API used by the handlers.
type CartService interface {
	Get(ctx context.Context, tenant string, table int) (*domain.Cart, error)
	AddItem(ctx context.Context, tenant string, table int, in *service.AddItemInput) (*domain.Cart, *domain.CartItem, error)
	UpdateQuantity(ctx context.Context, tenant string, table int, itemID string, delta int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, tenant string, table int, itemID string) (*domain.Cart, error)
	Clear(ctx context.Context, tenant string, table int) error
}

// CheckoutService is the checkout API used by the handlers.
type CheckoutService interface {
	Begin(ctx context.Context, tenant string, table int) (*domain.Attempt, error)
	Get(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error)
	List(ctx context.Context, tenant string, table int, limit int) ([]domain.Attempt, error)
	SelectMethod(ctx context.Context, tenant string, table int, id string, in *service.SelectMethodInput) (*domain.Attempt, error)
	Confirm(ctx context.Context, tenant string, table int, id string, in *service.ConfirmPaymentInput) (*domain.Attempt, error)
	Retry(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error)
	FallbackToCash(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error)
	Abandon(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error)
}

// HistoryService is the order history API used by the handlers.
type HistoryService interface {
	List(ctx context.Context, tenant string, table int, params pagination.Params) (pagination.Result[domain.OrderReference], error)
	Refresh(ctx context.Context, tenant string, table int) ([]domain.OrderReference, error)
}

// tableOf returns the table resolved by the TableSession middleware.
func tableOf(w http.ResponseWriter, r *http.Request, l *slog.Logger) (logger.Table, bool) {
	t, ok := middleware.TableFromRequest(r)
	if !ok {
		httputil.WriteError(w, r, apperrors.InvalidInput("table is required"), l)
	}
	return t, ok
}

// attemptID validates the {id} route parameter.
func attemptID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// decodeJSON decodes an optional JSON body into dst, leaving validation to
// the service. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, validator.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
