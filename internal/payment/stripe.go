package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// IntentConfirmer is the part of the Stripe API the confirmer uses.
// *paymentintent.Client satisfies it.
type IntentConfirmer interface {
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// StripeConfirmer confirms payment intents with Stripe. The API client is
// created on first use and shared by every later call.
type StripeConfirmer struct {
	secretKey string
	account   string

	once    sync.Once
	intents IntentConfirmer
	build   func(key string) IntentConfirmer
}

// StripeOption configures a StripeConfirmer.
type StripeOption func(*StripeConfirmer)

// WithConnectedAccount confirms intents on behalf of a connected account.
func WithConnectedAccount(account string) StripeOption {
	return func(s *StripeConfirmer) { s.account = account }
}

// WithIntentConfirmer replaces the Stripe API client.
func WithIntentConfirmer(ic IntentConfirmer) StripeOption {
	return func(s *StripeConfirmer) {
		s.build = func(string) IntentConfirmer { return ic }
	}
}

// NewStripeConfirmer creates a confirmer for the given secret key.
func NewStripeConfirmer(secretKey string, opts ...StripeOption) *StripeConfirmer {
	s := &StripeConfirmer{
		secretKey: secretKey,
		build: func(key string) IntentConfirmer {
			api := &client.API{}
			api.Init(key, nil)
			return api.PaymentIntents
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StripeConfirmer) Name() string { return "stripe" }

func (s *StripeConfirmer) client() IntentConfirmer {
	s.once.Do(func() {
		s.intents = s.build(s.secretKey)
	})
	return s.intents
}

func (s *StripeConfirmer) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	id, ok := IntentID(in.ClientSecret)
	if !ok {
		return nil, fmt.Errorf("stripe confirm: malformed client secret")
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if in.PaymentMethodToken != "" {
		params.PaymentMethod = stripe.String(in.PaymentMethodToken)
	}
	if s.account != "" {
		params.SetStripeAccount(s.account)
	}

	pi, err := s.client().Confirm(id, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return nil, &DeclineError{Code: string(serr.Code), Message: serr.Msg}
		}
		return nil, fmt.Errorf("stripe confirm %s: %w", id, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return &ConfirmResult{ProviderRef: pi.ID, Status: string(pi.Status)}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return nil, &DeclineError{
			Code:    string(pi.Status),
			Message: "This payment needs additional authentication. Please confirm it on your device.",
		}
	case stripe.PaymentIntentStatusCanceled:
		return nil, &DeclineError{Code: string(pi.Status), Message: "The payment was cancelled."}
	default:
		msg := "The payment could not be completed."
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			msg = pi.LastPaymentError.Msg
		}
		return nil, &DeclineError{Code: string(pi.Status), Message: msg}
	}
}
