package domain

import "strings"

// PaymentMethod is how the guest settles the bill.
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "CASH"
	MethodCard      PaymentMethod = "CARD"
	MethodApplePay  PaymentMethod = "APPLE_PAY"
	MethodGooglePay PaymentMethod = "GOOGLE_PAY"
)

// ValidPaymentMethods returns every supported method.
func ValidPaymentMethods() []PaymentMethod {
	return []PaymentMethod{MethodCash, MethodCard, MethodApplePay, MethodGooglePay}
}

// ParsePaymentMethod accepts any letter case and "-" in place of "_".
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, v := range ValidPaymentMethods() {
		if m == v {
			return m, true
		}
	}
	return "", false
}

// IsElectronic reports whether the method goes through the payment provider.
func (m PaymentMethod) IsElectronic() bool {
	return m == MethodCard || m == MethodApplePay || m == MethodGooglePay
}

// PaymentStatus is the backend's view of a provisional payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PendingPayment is the provisional payment record returned when an
// electronic checkout starts.
type PendingPayment struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// StatusReport is one answer of the payment status endpoint.
type StatusReport struct {
	Status      PaymentStatus `json:"status"`
	OrderNumber string        `json:"orderNumber,omitempty"`
}

// Tip is either a whole percentage of the subtotal or a fixed amount. A
// positive Percent wins over Amount.
type Tip struct {
	Percent int   `json:"percent,omitempty"`
	Amount  int64 `json:"amount,omitempty"`
}

// Resolve returns the tip amount for subtotal, rounding half up to the
// minor unit.
func (t Tip) Resolve(subtotal int64) int64 {
	if t.Percent > 0 {
		return (subtotal*int64(t.Percent) + 50) / 100
	}
	if t.Amount > 0 {
		return t.Amount
	}
	return 0
}

// Totals is the bill breakdown sent to the backend.
type Totals struct {
	Subtotal   int64 `json:"subtotal"`
	ServiceFee int64 `json:"serviceFee"`
	Tip        int64 `json:"tip"`
	Total      int64 `json:"total"`
}

// ComputeTotals builds the bill. The service fee is a flat amount.
func ComputeTotals(subtotal, serviceFee int64, tip Tip) Totals {
	t := Totals{
		Subtotal:   subtotal,
		ServiceFee: serviceFee,
		Tip:        tip.Resolve(subtotal),
	}
	t.Total = t.Subtotal + t.ServiceFee + t.Tip
	return t
}

// Restaurant is the tenant profile served by the restaurant backend.
type Restaurant struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	ServiceFee int64  `json:"serviceFee"`
}
