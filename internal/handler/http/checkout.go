package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/service"
	"github.com/utafrali/TableOrder/pkg/httputil"
	"github.com/utafrali/TableOrder/pkg/logger"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// AttemptResponse is the guest-facing view of a checkout attempt.
type AttemptResponse struct {
	*domain.Attempt
	// CanFallbackToCash tells the UI to offer cash after a failure.
	CanFallbackToCash bool `json:"canFallbackToCash"`
}

func newAttemptResponse(a *domain.Attempt) AttemptResponse {
	return AttemptResponse{Attempt: a, CanFallbackToCash: a.CanFallbackToCash()}
}

// Begin handles POST /checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	a, err := h.service.Begin(r.Context(), t.Tenant, t.Number)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, newAttemptResponse(a))
}

// List handles GET /checkout
func (h *CheckoutHandler) List(w http.ResponseWriter, r *http.Request) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	attempts, err := h.service.List(r.Context(), t.Tenant, t.Number, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	out := make([]AttemptResponse, len(attempts))
	for i := range attempts {
		out[i] = newAttemptResponse(&attempts[i])
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// Get handles GET /checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.Get(r.Context(), tenant, table, id)
	})
}

// SelectMethod handles POST /checkout/{id}/method
func (h *CheckoutHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req service.SelectMethodInput
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.SelectMethod(r.Context(), tenant, table, id, &req)
	})
}

// Confirm handles POST /checkout/{id}/confirm. An empty body asks the server
// to confirm without a payment method token.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req service.ConfirmPaymentInput
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.Confirm(r.Context(), tenant, table, id, &req)
	})
}

// Retry handles POST /checkout/{id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.Retry(r.Context(), tenant, table, id)
	})
}

// FallbackToCash handles POST /checkout/{id}/cash
func (h *CheckoutHandler) FallbackToCash(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.FallbackToCash(r.Context(), tenant, table, id)
	})
}

// Abandon handles POST /checkout/{id}/abandon
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error) {
		return h.service.Abandon(r.Context(), tenant, table, id)
	})
}

type attemptAction func(r *http.Request, tenant string, table int, id string) (*domain.Attempt, error)

// act resolves the table and attempt id, runs fn and writes the attempt.
func (h *CheckoutHandler) act(w http.ResponseWriter, r *http.Request, fn attemptAction) {
	t, ok := tableOf(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := attemptID(w, r)
	if !ok {
		return
	}
	r = r.WithContext(logger.WithAttemptID(r.Context(), id))

	a, err := fn(r, t.Tenant, t.Number, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newAttemptResponse(a))
}
