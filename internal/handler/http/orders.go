package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/pagination"
)

// OrderHandler serves the order history of a table.
type OrderHandler struct {
	service HistoryService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order history HTTP handler.
func NewOrderHandler(svc HistoryService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// List handles GET /orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	page, err := h.service.List(r.Context(), t.Tenant, t.Number, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Refresh handles POST /orders/refresh
func (h *OrderHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	refs, err := h.service.Refresh(r.Context(), t.Tenant, t.Number)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if refs == nil {
		refs = []domain.OrderReference{}
	}
	httputil.WriteData(w, http.StatusOK, refs)
}
