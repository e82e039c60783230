package domain

import (
	"fmt"
	"time"
)

// State is a step of the checkout state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateMethodSelection      State = "method_selection"
	StatePaymentInit          State = "payment_init"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StatePollingOrder         State = "polling_order"
	StatePlacingOrder         State = "placing_order"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// AllowedTransitions maps each state to the states it may move to. Failed
// leads back to MethodSelection (retry) or straight to PlacingOrder (cash
// fallback).
func AllowedTransitions() map[State][]State {
	return map[State][]State{
		StateIdle:                 {StateMethodSelection},
		StateMethodSelection:      {StatePaymentInit, StatePlacingOrder},
		StatePaymentInit:          {StateAwaitingConfirmation, StateFailed},
		StateAwaitingConfirmation: {StatePollingOrder, StateFailed},
		StatePollingOrder:         {StateCompleted, StateFailed},
		StatePlacingOrder:         {StateCompleted, StateFailed},
		StateFailed:               {StateMethodSelection, StatePlacingOrder},
		StateCompleted:            {},
	}
}

// IsValidState checks whether s is a known state.
func IsValidState(s State) bool {
	_, ok := AllowedTransitions()[s]
	return ok
}

// FailureKind classifies why an attempt failed.
type FailureKind string

const (
	// FailureInit: the provisional payment could not be created.
	FailureInit FailureKind = "init"
	// FailureDeclined: the payment provider declined or the guest cancelled.
	FailureDeclined FailureKind = "declined"
	// FailureOrder: the backend did not materialise the order.
	FailureOrder FailureKind = "order"
)

// TransitionError reports an edge the state machine does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move checkout from %s to %s", e.From, e.To)
}

// AbandonedError reports a mutation of an abandoned attempt.
type AbandonedError struct {
	AttemptID string
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("checkout %s was abandoned", e.AttemptID)
}

// Attempt is one checkout of a table's cart. Items and Totals are a snapshot
// taken when the checkout began.
type Attempt struct {
	ID           string        `json:"id"`
	Tenant       string        `json:"tenant"`
	Table        int           `json:"table"`
	RestaurantID string        `json:"restaurantId"`
	Currency     string        `json:"currency"`
	State        State         `json:"state"`
	Method       PaymentMethod `json:"method,omitempty"`
	Tip          Tip           `json:"tip"`
	Items        []CartItem    `json:"items"`
	Totals       Totals        `json:"totals"`

	PaymentID    string `json:"paymentId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	OrderID      string `json:"orderId,omitempty"`
	OrderNumber  string `json:"orderNumber,omitempty"`

	// ConfirmationPending is set when the attempt completed after a paid
	// electronic checkout whose order number had not been observed yet.
	ConfirmationPending bool `json:"confirmationPending"`
	PollAttempts        int  `json:"pollAttempts,omitempty"`

	FailureKind   FailureKind `json:"failureKind,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`

	Abandoned bool `json:"abandoned"`
	Version   int  `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CanTransitionTo reports whether the state machine allows a move to s.
func (a *Attempt) CanTransitionTo(s State) bool {
	for _, next := range AllowedTransitions()[a.State] {
		if next == s {
			return true
		}
	}
	return false
}

// Transition moves the attempt to s. Abandoned attempts never change.
func (a *Attempt) Transition(s State, now time.Time) error {
	if a.Abandoned {
		return &AbandonedError{AttemptID: a.ID}
	}
	if !a.CanTransitionTo(s) {
		return &TransitionError{From: a.State, To: s}
	}
	a.State = s
	a.UpdatedAt = now
	return nil
}

// Fail moves the attempt to Failed and records why.
func (a *Attempt) Fail(kind FailureKind, reason string, now time.Time) error {
	if err := a.Transition(StateFailed, now); err != nil {
		return err
	}
	a.FailureKind = kind
	a.FailureReason = reason
	return nil
}

// Reset returns a failed attempt to MethodSelection and forgets the previous
// payment so a new one can be started.
func (a *Attempt) Reset(now time.Time) error {
	if a.State != StateFailed {
		return &TransitionError{From: a.State, To: StateMethodSelection}
	}
	if err := a.Transition(StateMethodSelection, now); err != nil {
		return err
	}
	a.Method = ""
	a.PaymentID = ""
	a.ClientSecret = ""
	a.PollAttempts = 0
	a.FailureKind = ""
	a.FailureReason = ""
	return nil
}

// Complete moves the attempt to Completed with the resolved order.
func (a *Attempt) Complete(res OrderResult, now time.Time) error {
	if err := a.Transition(StateCompleted, now); err != nil {
		return err
	}
	a.OrderID = res.OrderID
	a.OrderNumber = res.OrderNumber
	if res.PaymentID != "" {
		a.PaymentID = res.PaymentID
	}
	a.ConfirmationPending = res.Pending
	a.ClientSecret = ""
	a.CompletedAt = &now
	return nil
}

// Abandon stops all further mutation. Completed attempts cannot be abandoned.
func (a *Attempt) Abandon(now time.Time) error {
	if a.Abandoned {
		return nil
	}
	if a.State == StateCompleted {
		return &TransitionError{From: a.State, To: "abandoned"}
	}
	a.Abandoned = true
	a.ClientSecret = ""
	a.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the attempt can no longer change.
func (a *Attempt) IsTerminal() bool {
	return a.State == StateCompleted || a.Abandoned
}

// CanFallbackToCash reports whether a failed attempt may be placed as cash.
func (a *Attempt) CanFallbackToCash() bool {
	return a.State == StateFailed && !a.Abandoned
}

// Reference builds the history entry for a completed attempt.
func (a *Attempt) Reference() OrderReference {
	created := a.UpdatedAt
	if a.CompletedAt != nil {
		created = *a.CompletedAt
	}
	return OrderReference{
		OrderID:     a.OrderID,
		OrderNumber: a.OrderNumber,
		PaymentID:   a.PaymentID,
		AttemptID:   a.ID,
		Method:      a.Method,
		Total:       a.Totals.Total,
		CreatedAt:   created,
	}
}
