package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/TableOrder/internal/backend"
	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/payment"
	"github.com/utafrali/TableOrder/internal/repository"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/logger"
	"github.com/utafrali/TableOrder/pkg/validator"
)

// Messages shown to the guest when the backend gives nothing better.
const (
	msgPaymentInit         = "We could not start the payment. Please try again or pay with cash."
	msgPaymentNotConfirmed = "The payment could not be confirmed. Please try again."
	msgOrderRejected       = "The restaurant could not accept the order. Please try again."
	msgOrderNotCreated     = "Your payment went through but the restaurant could not create the order. Please ask the staff for help."
	msgTableBusy           = "Someone at this table is already paying. Please wait for them to finish."
	msgCartChanged         = "The cart changed after checkout started. Please start the checkout again."
)

const maxUpdateRetries = 3

// DefaultIdleTimeout is how long an attempt may sit in a payment or order
// step before a new checkout on the table may take it over.
const DefaultIdleTimeout = 15 * time.Minute

// errNoChange tells mutate the attempt needs no write.
var errNoChange = errors.New("no change")

// CheckoutDeps holds the collaborators of a CheckoutService.
type CheckoutDeps struct {
	Attempts        repository.AttemptRepository
	Carts           *CartService
	History         repository.OrderHistory
	Restaurants     *RestaurantDirectory
	Backend         Backend
	Confirmer       payment.Confirmer
	Publisher       EventPublisher
	PollPolicy      PollPolicy
	DefaultCurrency string
	IdleTimeout     time.Duration
	Logger          *slog.Logger
}

// SelectMethodInput holds the guest's payment choice.
type SelectMethodInput struct {
	Method     string `json:"method" validate:"required,oneof=CASH CARD APPLE_PAY GOOGLE_PAY"`
	TipPercent int    `json:"tipPercent" validate:"gte=0,lte=100"`
	TipAmount  int64  `json:"tipAmount" validate:"gte=0"`
}

// ConfirmPaymentInput carries either a payment method token for the server
// to confirm with, or the outcome of a confirmation the UI did itself.
type ConfirmPaymentInput struct {
	PaymentMethodToken string               `json:"paymentMethodToken" validate:"max=255"`
	Report             *payment.ClientReport `json:"report"`
}

// CheckoutService drives checkout attempts through the state machine. Every
// successful path ends in complete.
type CheckoutService struct {
	attempts        repository.AttemptRepository
	carts           *CartService
	history         repository.OrderHistory
	restaurants     *RestaurantDirectory
	backend         Backend
	confirmer       payment.Confirmer
	poller          *Poller
	publisher       EventPublisher
	defaultCurrency string
	idleTimeout     time.Duration
	logger          *slog.Logger
	now             func() time.Time

	mu     sync.Mutex
	polls  map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = DefaultIdleTimeout
	}
	return &CheckoutService{
		attempts:        deps.Attempts,
		carts:           deps.Carts,
		history:         deps.History,
		restaurants:     deps.Restaurants,
		backend:         deps.Backend,
		confirmer:       deps.Confirmer,
		poller:          NewPoller(deps.Backend, deps.PollPolicy, deps.Logger),
		publisher:       deps.Publisher,
		defaultCurrency: deps.DefaultCurrency,
		idleTimeout:     deps.IdleTimeout,
		logger:          deps.Logger,
		now:             utcNow,
		polls:           make(map[string]context.CancelFunc),
	}
}

// Begin snapshots the table's cart into a new attempt waiting for a payment
// method. A table has one open attempt at a time. An open attempt that is
// idle is abandoned; one with a payment or order under way makes Begin fail
// with a conflict.
func (s *CheckoutService) Begin(ctx context.Context, tenant string, table int) (*domain.Attempt, error) {
	if err := s.takeOverTable(ctx, tenant, table); err != nil {
		return nil, err
	}

	restaurant, err := s.restaurants.Get(ctx, tenant)
	if err != nil {
		return nil, apperrors.Wrap(err, "resolve restaurant")
	}

	cart, err := s.carts.Get(ctx, tenant, table)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	currency := restaurant.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := s.now()
	a := &domain.Attempt{
		ID:           uuid.NewString(),
		Tenant:       tenant,
		Table:        table,
		RestaurantID: restaurant.ID,
		Currency:     currency,
		State:        domain.StateIdle,
		Items:        cart.Items,
		Totals:       domain.ComputeTotals(cart.Subtotal(), restaurant.ServiceFee, domain.Tip{}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Transition(domain.StateMethodSelection, now); err != nil {
		return nil, domainError(err)
	}

	if err := s.attempts.Create(ctx, a); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Conflict(msgTableBusy)
		}
		return nil, apperrors.Wrap(err, "create checkout attempt")
	}
	checkoutStartedTotal.Inc()

	s.log(ctx, a).InfoContext(ctx, "checkout started",
		slog.Int("items", len(a.Items)),
		slog.Int64("subtotal", a.Totals.Subtotal),
	)
	return a, nil
}

// Get returns an attempt of the table.
func (s *CheckoutService) Get(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error) {
	return s.load(ctx, tenant, table, id)
}

// List returns the most recent attempts of a table, newest first.
func (s *CheckoutService) List(ctx context.Context, tenant string, table int, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.attempts.ListByTable(ctx, tenant, table, limit)
}

// SelectMethod records the payment method and tip. Cash goes straight to
// order placement; electronic methods create a provisional payment.
func (s *CheckoutService) SelectMethod(ctx context.Context, tenant string, table int, id string, in *SelectMethodInput) (*domain.Attempt, error) {
	if m, ok := domain.ParsePaymentMethod(in.Method); ok {
		in.Method = string(m)
	}
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	method := domain.PaymentMethod(in.Method)
	next := domain.StatePlacingOrder
	if method.IsElectronic() {
		next = domain.StatePaymentInit
	}

	current, err := s.load(ctx, tenant, table, id)
	if err != nil {
		return nil, err
	}
	if err := guard(current, domain.StateMethodSelection, next); err != nil {
		return nil, domainError(err)
	}
	if err := s.checkSnapshot(ctx, current); err != nil {
		return nil, err
	}
	tip := domain.Tip{Percent: in.TipPercent, Amount: in.TipAmount}

	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if err := guard(a, domain.StateMethodSelection, next); err != nil {
			return err
		}
		a.Method = method
		a.Tip = tip
		a.Totals = domain.ComputeTotals(a.Totals.Subtotal, a.Totals.ServiceFee, tip)
		return a.Transition(next, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, a).InfoContext(ctx, "payment method selected",
		slog.String("method", string(method)),
		slog.Int64("total", a.Totals.Total),
	)

	if method.IsElectronic() {
		return s.initPayment(ctx, a)
	}
	return s.placeOrder(ctx, a)
}

// Confirm confirms the provisional payment and starts polling for the order.
// A decline moves the attempt to Failed with the provider's message.
func (s *CheckoutService) Confirm(ctx context.Context, tenant string, table int, id string, in *ConfirmPaymentInput) (*domain.Attempt, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	a, err := s.load(ctx, tenant, table, id)
	if err != nil {
		return nil, err
	}
	if err := guard(a, domain.StateAwaitingConfirmation, domain.StatePollingOrder); err != nil {
		return nil, domainError(err)
	}

	var result *payment.ConfirmResult
	if in.Report != nil {
		result, err = payment.FromClientReport(*in.Report)
	} else {
		result, err = s.confirmer.Confirm(ctx, payment.ConfirmInput{
			ClientSecret:       a.ClientSecret,
			Method:             a.Method,
			PaymentMethodToken: in.PaymentMethodToken,
		})
	}
	if err != nil {
		reason := msgPaymentNotConfirmed
		var decline *payment.DeclineError
		if errors.As(err, &decline) {
			reason = decline.Message
		} else {
			s.log(ctx, a).ErrorContext(ctx, "payment confirmation error",
				slog.String("error", err.Error()),
			)
		}
		return s.fail(ctx, id, domain.FailureDeclined, reason, 0)
	}

	a, err = s.mutate(ctx, id, func(a *domain.Attempt) error {
		return a.Transition(domain.StatePollingOrder, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, a).InfoContext(ctx, "payment confirmed",
		slog.String("payment_id", a.PaymentID),
		slog.String("provider_ref", result.ProviderRef),
	)
	s.startPolling(ctx, a)
	return a, nil
}

// Retry returns a failed attempt to method selection.
func (s *CheckoutService) Retry(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error) {
	if _, err := s.load(ctx, tenant, table, id); err != nil {
		return nil, err
	}
	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if a.Abandoned {
			return &domain.AbandonedError{AttemptID: a.ID}
		}
		return a.Reset(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, a).InfoContext(ctx, "checkout retried")
	return a, nil
}

// FallbackToCash places a failed attempt as a cash order.
func (s *CheckoutService) FallbackToCash(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error) {
	current, err := s.load(ctx, tenant, table, id)
	if err != nil {
		return nil, err
	}
	if current.CanFallbackToCash() {
		if err := s.checkSnapshot(ctx, current); err != nil {
			return nil, err
		}
	}
	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if a.Abandoned {
			return &domain.AbandonedError{AttemptID: a.ID}
		}
		if !a.CanFallbackToCash() {
			return &domain.TransitionError{From: a.State, To: domain.StatePlacingOrder}
		}
		a.Method = domain.MethodCash
		a.PaymentID = ""
		a.ClientSecret = ""
		a.PollAttempts = 0
		a.FailureKind = ""
		a.FailureReason = ""
		return a.Transition(domain.StatePlacingOrder, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, a).InfoContext(ctx, "falling back to cash")
	return s.placeOrder(ctx, a)
}

// Abandon stops polling and freezes the attempt. Abandoning twice is a no-op.
func (s *CheckoutService) Abandon(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error) {
	if _, err := s.load(ctx, tenant, table, id); err != nil {
		return nil, err
	}
	s.stopPolling(id)

	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if a.Abandoned {
			return errNoChange
		}
		return a.Abandon(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, a).InfoContext(ctx, "checkout abandoned", slog.String("state", string(a.State)))
	return a, nil
}

// ResolvePayment applies a payment status learned out of band, from the
// payment status topic or a history refresh.
func (s *CheckoutService) ResolvePayment(ctx context.Context, paymentID string, report domain.StatusReport) error {
	a, err := s.attempts.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.DebugContext(ctx, "no checkout attempt for payment", slog.String("payment_id", paymentID))
			return nil
		}
		return err
	}
	_, err = s.applyStatus(ctx, a, report)
	return err
}

// Reconcile asks the backend about paid attempts that have not been resolved
// for olderThan and applies the answers. It returns how many were settled.
func (s *CheckoutService) Reconcile(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	attempts, err := s.attempts.ListUnresolved(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, apperrors.Wrap(err, "list unresolved attempts")
	}

	settled := 0
	for i := range attempts {
		a := &attempts[i]
		if s.isPolling(a.ID) {
			continue
		}

		report, err := s.backend.PaymentStatus(ctx, a.PaymentID)
		if err != nil {
			s.log(ctx, a).WarnContext(ctx, "reconcile status check failed", slog.String("error", err.Error()))
			continue
		}

		if a.State == domain.StatePollingOrder && report.Status == domain.PaymentPending {
			// Polling died with its process. The payment was confirmed, so
			// degrade exactly as a poll timeout would.
			confirmationTimeoutsTotal.Inc()
			if _, err := s.complete(ctx, a.ID, domain.ElectronicOutcome{Method: a.Method, PaymentID: a.PaymentID, TimedOut: true}, a.PollAttempts); err != nil {
				s.log(ctx, a).WarnContext(ctx, "reconcile completion failed", slog.String("error", err.Error()))
				continue
			}
			settled++
			continue
		}

		changed, err := s.applyStatus(ctx, a, *report)
		if err != nil {
			s.log(ctx, a).WarnContext(ctx, "reconcile update failed", slog.String("error", err.Error()))
			continue
		}
		if changed {
			settled++
		}
	}
	return settled, nil
}

// Shutdown stops every in-flight poll and waits for the pollers to exit.
// Attempts left in PollingOrder are picked up by Reconcile.
func (s *CheckoutService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.polls {
		cancel()
		delete(s.polls, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *CheckoutService) applyStatus(ctx context.Context, a *domain.Attempt, report domain.StatusReport) (bool, error) {
	if a.Abandoned {
		s.log(ctx, a).InfoContext(ctx, "ignoring payment status for abandoned checkout",
			slog.String("status", string(report.Status)),
		)
		return false, nil
	}

	switch {
	case a.State == domain.StatePollingOrder:
		switch report.Status {
		case domain.PaymentCompleted:
			s.stopPolling(a.ID)
			_, err := s.complete(ctx, a.ID, domain.ElectronicOutcome{
				Method:      a.Method,
				PaymentID:   a.PaymentID,
				OrderNumber: report.OrderNumber,
			}, a.PollAttempts)
			return err == nil, err
		case domain.PaymentFailed:
			s.stopPolling(a.ID)
			_, err := s.fail(ctx, a.ID, domain.FailureOrder, msgOrderNotCreated, a.PollAttempts)
			return err == nil, err
		}

	case a.State == domain.StateCompleted && a.ConfirmationPending:
		switch report.Status {
		case domain.PaymentCompleted:
			if report.OrderNumber == "" {
				return false, nil
			}
			return true, s.resolveOrderNumber(ctx, a, report.OrderNumber)
		case domain.PaymentFailed:
			_, err := s.mutate(ctx, a.ID, func(a *domain.Attempt) error {
				if !a.ConfirmationPending {
					return errNoChange
				}
				a.ConfirmationPending = false
				a.FailureKind = domain.FailureOrder
				a.FailureReason = msgOrderNotCreated
				a.UpdatedAt = s.now()
				return nil
			})
			if err == nil {
				s.log(ctx, a).ErrorContext(ctx, "order rejected after payment completed",
					slog.String("payment_id", a.PaymentID),
				)
			}
			return err == nil, err
		}
	}
	return false, nil
}

func (s *CheckoutService) resolveOrderNumber(ctx context.Context, a *domain.Attempt, orderNumber string) error {
	_, err := s.mutate(ctx, a.ID, func(a *domain.Attempt) error {
		if !a.ConfirmationPending {
			return errNoChange
		}
		a.OrderNumber = orderNumber
		a.ConfirmationPending = false
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.history.Resolve(ctx, a.Tenant, a.Table, a.PaymentID, orderNumber); err != nil {
		s.log(ctx, a).ErrorContext(ctx, "failed to resolve order history entry", slog.String("error", err.Error()))
	}
	s.log(ctx, a).InfoContext(ctx, "order number resolved",
		slog.String("payment_id", a.PaymentID),
		slog.String("order_number", orderNumber),
	)
	return nil
}

func (s *CheckoutService) initPayment(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	pending, err := s.backend.CreatePayment(ctx, backend.PaymentRequest{
		IdempotencyKey: fmt.Sprintf("%s:payment:%d", a.ID, a.Version),
		RestaurantID:   a.RestaurantID,
		TableNumber:    a.Table,
		Amount:         a.Totals.Total,
		Subtotal:       a.Totals.Subtotal,
		ServiceFee:     a.Totals.ServiceFee,
		Currency:       a.Currency,
		PaymentMethod:  a.Method,
		TipAmount:      a.Totals.Tip,
		Items:          backend.Lines(a.Items),
	})
	if err != nil {
		s.log(ctx, a).WarnContext(ctx, "provisional payment failed", slog.String("error", err.Error()))
		return s.fail(ctx, a.ID, domain.FailureInit, guestMessage(err, msgPaymentInit), 0)
	}

	return s.mutate(ctx, a.ID, func(a *domain.Attempt) error {
		a.PaymentID = pending.ID
		a.ClientSecret = pending.ClientSecret
		return a.Transition(domain.StateAwaitingConfirmation, s.now())
	})
}

func (s *CheckoutService) placeOrder(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	order, err := s.backend.CreateOrder(ctx, a.Tenant, backend.OrderRequest{
		IdempotencyKey: fmt.Sprintf("%s:order:%d", a.ID, a.Version),
		TableNumber:    a.Table,
		Items:          backend.Lines(a.Items),
		PaymentMethod:  domain.MethodCash,
		TipAmount:      a.Totals.Tip,
		TipPercent:     a.Tip.Percent,
		ServiceFee:     a.Totals.ServiceFee,
		Total:          a.Totals.Total,
	})
	if err != nil {
		s.log(ctx, a).WarnContext(ctx, "order placement failed", slog.String("error", err.Error()))
		return s.fail(ctx, a.ID, domain.FailureOrder, guestMessage(err, msgOrderRejected), 0)
	}
	return s.complete(ctx, a.ID, domain.CashOutcome{OrderID: order.ID, OrderNumber: order.OrderNumber}, 0)
}

// complete is the single point where a checkout succeeds. Only here is the
// cart cleared, the history appended and checkout.completed published.
func (s *CheckoutService) complete(ctx context.Context, id string, outcome domain.Outcome, polls int) (*domain.Attempt, error) {
	res := outcome.Resolve()

	already := false
	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if a.State == domain.StateCompleted {
			already = true
			return errNoChange
		}
		already = false
		if polls > 0 {
			a.PollAttempts = polls
		}
		return a.Complete(res, s.now())
	})
	if err != nil {
		return nil, err
	}
	if already {
		return a, nil
	}

	if err := s.carts.RemoveOrdered(ctx, a.Tenant, a.Table, a.Items); err != nil {
		s.log(ctx, a).ErrorContext(ctx, "failed to clear cart after checkout", slog.String("error", err.Error()))
	}
	if _, err := s.history.Append(ctx, a.Tenant, a.Table, a.Reference()); err != nil {
		s.log(ctx, a).ErrorContext(ctx, "failed to append order history", slog.String("error", err.Error()))
	}

	outcomeLabel := "completed"
	if a.ConfirmationPending {
		outcomeLabel = "pending_confirmation"
	}
	checkoutAttemptsTotal.WithLabelValues(string(a.Method), outcomeLabel).Inc()

	if err := s.publisher.PublishCheckoutCompleted(ctx, a); err != nil {
		s.log(ctx, a).WarnContext(ctx, "failed to publish checkout.completed event", slog.String("error", err.Error()))
	}

	s.log(ctx, a).InfoContext(ctx, "checkout completed",
		slog.String("method", string(a.Method)),
		slog.String("order_number", a.OrderNumber),
		slog.Bool("confirmation_pending", a.ConfirmationPending),
	)
	return a, nil
}

func (s *CheckoutService) fail(ctx context.Context, id string, kind domain.FailureKind, reason string, polls int) (*domain.Attempt, error) {
	a, err := s.mutate(ctx, id, func(a *domain.Attempt) error {
		if polls > 0 {
			a.PollAttempts = polls
		}
		return a.Fail(kind, reason, s.now())
	})
	if err != nil {
		return nil, err
	}

	checkoutFailuresTotal.WithLabelValues(string(kind)).Inc()
	checkoutAttemptsTotal.WithLabelValues(string(a.Method), "failed").Inc()

	if err := s.publisher.PublishCheckoutFailed(ctx, a); err != nil {
		s.log(ctx, a).WarnContext(ctx, "failed to publish checkout.failed event", slog.String("error", err.Error()))
	}

	s.log(ctx, a).WarnContext(ctx, "checkout failed",
		slog.String("kind", string(kind)),
		slog.String("reason", reason),
	)
	return a, nil
}

func (s *CheckoutService) startPolling(ctx context.Context, a *domain.Attempt) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.polls[a.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func(a domain.Attempt) {
		defer s.wg.Done()
		defer s.stopPolling(a.ID)
		s.runPoll(pctx, &a)
	}(*a)
}

func (s *CheckoutService) runPoll(ctx context.Context, a *domain.Attempt) {
	res, err := s.poller.Poll(ctx, a.PaymentID)
	if err != nil {
		s.log(ctx, a).DebugContext(ctx, "status polling stopped", slog.Int("attempts", res.Attempts))
		return
	}
	pollAttempts.Observe(float64(res.Attempts))

	switch {
	case res.TimedOut:
		confirmationTimeoutsTotal.Inc()
		s.log(ctx, a).WarnContext(ctx, "order confirmation timed out, completing without order number",
			slog.String("payment_id", a.PaymentID),
			slog.Int("attempts", res.Attempts),
		)
		_, err = s.complete(ctx, a.ID, domain.ElectronicOutcome{Method: a.Method, PaymentID: a.PaymentID, TimedOut: true}, res.Attempts)
	case res.Report.Status == domain.PaymentFailed:
		_, err = s.fail(ctx, a.ID, domain.FailureOrder, msgOrderNotCreated, res.Attempts)
	default:
		_, err = s.complete(ctx, a.ID, domain.ElectronicOutcome{
			Method:      a.Method,
			PaymentID:   a.PaymentID,
			OrderNumber: res.Report.OrderNumber,
		}, res.Attempts)
	}
	if err != nil {
		s.log(ctx, a).WarnContext(ctx, "could not record polling outcome", slog.String("error", err.Error()))
	}
}

func (s *CheckoutService) stopPolling(id string) {
	s.mu.Lock()
	cancel, ok := s.polls[id]
	delete(s.polls, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *CheckoutService) isPolling(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[id]
	return ok
}

// takeOverTable makes room for a new attempt on the table.
func (s *CheckoutService) takeOverTable(ctx context.Context, tenant string, table int) error {
	open, err := s.attempts.GetOpenByTable(ctx, tenant, table)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return apperrors.Wrap(err, "find open checkout")
	}
	if !s.isIdle(open) {
		return apperrors.Conflict(msgTableBusy)
	}

	s.stopPolling(open.ID)
	a, err := s.mutate(ctx, open.ID, func(a *domain.Attempt) error {
		if a.Abandoned || a.State == domain.StateCompleted {
			return errNoChange
		}
		if !s.isIdle(a) {
			return apperrors.Conflict(msgTableBusy)
		}
		return a.Abandon(s.now())
	})
	if err != nil {
		return err
	}
	s.log(ctx, a).InfoContext(ctx, "idle checkout abandoned for a new one", slog.String("state", string(a.State)))
	return nil
}

// isIdle reports whether an open attempt may be taken over: it waits for the
// guest, or a payment or order step has stalled for the idle timeout.
// Attempts polling for their order are left to Reconcile.
func (s *CheckoutService) isIdle(a *domain.Attempt) bool {
	switch a.State {
	case domain.StateMethodSelection, domain.StateFailed:
		return true
	case domain.StatePaymentInit, domain.StateAwaitingConfirmation, domain.StatePlacingOrder:
		return s.now().Sub(a.UpdatedAt) >= s.idleTimeout
	}
	return false
}

// checkSnapshot fails when the cart no longer holds what the attempt is
// about to order.
func (s *CheckoutService) checkSnapshot(ctx context.Context, a *domain.Attempt) error {
	cart, err := s.carts.Get(ctx, a.Tenant, a.Table)
	if err != nil {
		return err
	}
	if !domain.CoversLines(cart.Items, a.Items) {
		return apperrors.Conflict(msgCartChanged)
	}
	return nil
}

func (s *CheckoutService) load(ctx context.Context, tenant string, table int, id string) (*domain.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Tenant != tenant || a.Table != table {
		return nil, apperrors.NotFound("checkout attempt", id)
	}
	return a, nil
}

// mutate reloads the attempt, applies fn and writes it back, retrying when a
// concurrent write wins the version check.
func (s *CheckoutService) mutate(ctx context.Context, id string, fn func(*domain.Attempt) error) (*domain.Attempt, error) {
	for i := 1; ; i++ {
		a, err := s.attempts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(a); err != nil {
			if errors.Is(err, errNoChange) {
				return a, nil
			}
			return nil, domainError(err)
		}

		err = s.attempts.Update(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) || i >= maxUpdateRetries {
			return nil, err
		}
	}
}

func (s *CheckoutService) log(ctx context.Context, a *domain.Attempt) *slog.Logger {
	return logger.WithContext(ctx, s.logger).With(
		slog.String("attempt_id", a.ID),
		slog.String("tenant", a.Tenant),
		slog.Int("table", a.Table),
	)
}

// guard rejects work on abandoned attempts and on attempts not in want.
func guard(a *domain.Attempt, want, to domain.State) error {
	if a.Abandoned {
		return &domain.AbandonedError{AttemptID: a.ID}
	}
	if a.State != want {
		return &domain.TransitionError{From: a.State, To: to}
	}
	return nil
}

// guestMessage picks the text shown to the guest for a backend error.
func guestMessage(err error, fallback string) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperrors.ErrPaymentFailed), errors.Is(err, apperrors.ErrServiceUnavail):
			return appErr.Message
		}
	}
	return fallback
}
