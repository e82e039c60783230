package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Test tokens understood by MockConfirmer.
const (
	TokenDecline = "tok_decline"
	TokenCancel  = "tok_cancel"
)

// MockConfirmer confirms every payment except the decline and cancel test
// tokens. It is intended for development and testing.
type MockConfirmer struct {
	delay time.Duration
}

// NewMockConfirmer creates a mock confirmer that waits delay before answering.
func NewMockConfirmer(delay time.Duration) *MockConfirmer {
	return &MockConfirmer{delay: delay}
}

func (m *MockConfirmer) Name() string { return "mock" }

func (m *MockConfirmer) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch in.PaymentMethodToken {
	case TokenDecline:
		return nil, &DeclineError{Code: "card_declined", Message: "Your card was declined."}
	case TokenCancel:
		return nil, &DeclineError{Code: "canceled", Message: "The payment was cancelled."}
	}

	ref := "mock_pi_" + uuid.NewString()
	if id, ok := IntentID(in.ClientSecret); ok {
		ref = id
	}
	return &ConfirmResult{ProviderRef: ref, Status: "succeeded"}, nil
}
