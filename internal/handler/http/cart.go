package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/service"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// UpdateQuantityRequest is the JSON body of PATCH /cart/items/{itemId}.
type UpdateQuantityRequest struct {
	Delta int `json:"delta" validate:"required,min=-99,max=99"`
}

// CartResponse is a cart with its derived totals.
type CartResponse struct {
	Tenant    string            `json:"tenant"`
	Table     int               `json:"table"`
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  int64             `json:"subtotal"`
}

func newCartResponse(c *domain.Cart) CartResponse {
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		Tenant:    c.Tenant,
		Table:     c.Table,
		Items:     items,
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal(),
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	cart, err := h.service.Get(r.Context(), t.Tenant, t.Number)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// AddItem handles POST /cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	var req service.AddItemInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, added, err := h.service.AddItem(r.Context(), t.Tenant, t.Number, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, struct {
		Cart CartResponse    `json:"cart"`
		Item domain.CartItem `json:"item"`
	}{newCartResponse(cart), *added})
}

// UpdateQuantity handles PATCH /cart/items/{itemId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.UpdateQuantity(r.Context(), t.Tenant, t.Number, chi.URLParam(r, "itemId"), req.Delta)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// RemoveItem handles DELETE /cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), t.Tenant, t.Number, chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), t.Tenant, t.Number); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
