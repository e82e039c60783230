// Package payment confirms provisional payments with the payment provider.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/TableOrder/internal/domain"
)

// ConfirmInput holds what the guest entered in the payment element.
type ConfirmInput struct {
	ClientSecret       string
	Method             domain.PaymentMethod
	PaymentMethodToken string
}

// ConfirmResult is a successful confirmation.
type ConfirmResult struct {
	ProviderRef string
	Status      string
}

// DeclineError is a refusal by the provider or a cancellation by the guest.
// Message is shown to the guest verbatim.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
	}
	return "payment declined: " + e.Message
}

// Confirmer confirms a provisional payment. A decline is returned as
// *DeclineError; any other error means the provider could not be reached.
type Confirmer interface {
	Name() string
	Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error)
}

// ClientReport is the outcome of a confirmation the table UI performed on
// its own. An empty Error means the payment succeeded.
type ClientReport struct {
	Status string `json:"status" validate:"omitempty,oneof=succeeded processing failed"`
	Error  string `json:"error" validate:"max=500"`
}

// FromClientReport turns a client report into the same result a Confirmer
// would have produced.
func FromClientReport(r ClientReport) (*ConfirmResult, error) {
	if msg := strings.TrimSpace(r.Error); msg != "" || r.Status == "failed" {
		if msg == "" {
			msg = "The payment could not be completed."
		}
		return nil, &DeclineError{Code: "client_reported", Message: msg}
	}
	status := r.Status
	if status == "" {
		status = "succeeded"
	}
	return &ConfirmResult{Status: status}, nil
}

// IntentID extracts the payment intent id from a client secret of the form
// "<id>_secret_<token>".
func IntentID(clientSecret string) (string, bool) {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
