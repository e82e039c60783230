package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/TableOrder/internal/backend"
	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/payment"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetRestaurant(ctx context.Context, slug string) (*domain.Restaurant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Restaurant), args.Error(1)
}

func (m *mockBackend) CreateOrder(ctx context.Context, slug string, req backend.OrderRequest) (*backend.CreatedOrder, error) {
	args := m.Called(ctx, slug, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.CreatedOrder), args.Error(1)
}

func (m *mockBackend) CreatePayment(ctx context.Context, req backend.PaymentRequest) (*domain.PendingPayment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingPayment), args.Error(1)
}

func (m *mockBackend) PaymentStatus(ctx context.Context, paymentID string) (*domain.StatusReport, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatusReport), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCheckoutCompleted(ctx context.Context, a *domain.Attempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockPublisher) PublishCheckoutFailed(ctx context.Context, a *domain.Attempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockPublisher) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

// newQuietPublisher accepts every event.
func newQuietPublisher() *mockPublisher {
	p := &mockPublisher{}
	p.On("PublishCheckoutCompleted", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishCheckoutFailed", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishCartUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}

// --- Mock Confirmer ---

type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) Name() string { return "mock" }

func (m *mockConfirmer) Confirm(ctx context.Context, in payment.ConfirmInput) (*payment.ConfirmResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ConfirmResult), args.Error(1)
}

// --- In-memory stores ---

type memCarts struct {
	mu    sync.Mutex
	carts map[string][]domain.CartItem
}

func newMemCarts() *memCarts {
	return &memCarts{carts: make(map[string][]domain.CartItem)}
}

func cartKey(tenant string, table int) string {
	return fmt.Sprintf("%s/%d", tenant, table)
}

func (s *memCarts) Load(_ context.Context, tenant string, table int) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[cartKey(tenant, table)]
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *memCarts) Save(_ context.Context, tenant string, table int, items []domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 {
		delete(s.carts, cartKey(tenant, table))
		return nil
	}
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	s.carts[cartKey(tenant, table)] = out
	return nil
}

type memHistory struct {
	mu   sync.Mutex
	refs map[string][]domain.OrderReference
}

func newMemHistory() *memHistory {
	return &memHistory{refs: make(map[string][]domain.OrderReference)}
}

func (h *memHistory) List(_ context.Context, tenant string, table int) ([]domain.OrderReference, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	refs := h.refs[cartKey(tenant, table)]
	out := make([]domain.OrderReference, len(refs))
	copy(out, refs)
	return out, nil
}

func (h *memHistory) Append(_ context.Context, tenant string, table int, ref domain.OrderReference) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, changed := domain.AppendReference(h.refs[cartKey(tenant, table)], ref)
	h.refs[cartKey(tenant, table)] = next
	return changed, nil
}

func (h *memHistory) Resolve(_ context.Context, tenant string, table int, paymentID, orderNumber string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, changed := domain.ResolveReference(h.refs[cartKey(tenant, table)], paymentID, orderNumber)
	h.refs[cartKey(tenant, table)] = next
	return changed, nil
}

// memAttempts mimics the optimistic versioning of the Postgres repository.
type memAttempts struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
	// conflicts makes the next n updates fail with a version conflict.
	conflicts int
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: make(map[string]domain.Attempt)}
}

func (r *memAttempts) Create(_ context.Context, a *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.attempts {
		if isOpenOn(other, a.Tenant, a.Table) {
			return apperrors.Conflict("table already has an open checkout")
		}
	}
	a.Version = 1
	r.attempts[a.ID] = clone(*a)
	return nil
}

func (r *memAttempts) GetByID(_ context.Context, id string) (*domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, apperrors.NotFound("checkout attempt", id)
	}
	c := clone(a)
	return &c, nil
}

func (r *memAttempts) GetOpenByTable(_ context.Context, tenant string, table int) (*domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if isOpenOn(a, tenant, table) {
			c := clone(a)
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("open checkout for table", cartKey(tenant, table))
}

func isOpenOn(a domain.Attempt, tenant string, table int) bool {
	return a.Tenant == tenant && a.Table == table && !a.Abandoned && a.State != domain.StateCompleted
}

func (r *memAttempts) GetByPaymentID(_ context.Context, paymentID string) (*domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.PaymentID == paymentID {
			c := clone(a)
			return &c, nil
		}
	}
	return nil, apperrors.NotFound("checkout attempt for payment", paymentID)
}

func (r *memAttempts) Update(_ context.Context, a *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[a.ID]
	if !ok {
		return apperrors.NotFound("checkout attempt", a.ID)
	}
	if r.conflicts > 0 {
		r.conflicts--
		return apperrors.Conflict("checkout attempt was modified concurrently")
	}
	if stored.Version != a.Version {
		return apperrors.Conflict("checkout attempt was modified concurrently")
	}
	a.Version++
	r.attempts[a.ID] = clone(*a)
	return nil
}

func (r *memAttempts) ListUnresolved(_ context.Context, before time.Time, limit int) ([]domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Attempt
	for _, a := range r.attempts {
		if a.Abandoned || a.PaymentID == "" || !a.UpdatedAt.Before(before) {
			continue
		}
		if (a.State == domain.StateCompleted && a.ConfirmationPending) || a.State == domain.StatePollingOrder {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAttempts) ListByTable(_ context.Context, tenant string, table int, limit int) ([]domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Attempt
	for _, a := range r.attempts {
		if a.Tenant == tenant && a.Table == table {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// put stores a copy of a as is.
func (r *memAttempts) put(a domain.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.ID] = clone(a)
}

func clone(a domain.Attempt) domain.Attempt {
	a.Items = append([]domain.CartItem(nil), a.Items...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		a.CompletedAt = &t
	}
	return a
}
