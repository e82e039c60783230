package domain

// OrderResult is the single completion signal of a checkout, whichever path
// produced it.
type OrderResult struct {
	OrderID     string        `json:"orderId,omitempty"`
	OrderNumber string        `json:"orderNumber"`
	PaymentID   string        `json:"paymentId,omitempty"`
	Method      PaymentMethod `json:"method"`
	// Pending is true when payment succeeded but the order number has not
	// been observed yet.
	Pending bool `json:"pending"`
}

// Outcome is what a checkout path produced. It is implemented only by
// CashOutcome and ElectronicOutcome.
type Outcome interface {
	Resolve() OrderResult
	isOutcome()
}

// CashOutcome is the result of placing a cash order directly.
type CashOutcome struct {
	OrderID     string
	OrderNumber string
}

func (o CashOutcome) Resolve() OrderResult {
	return OrderResult{
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		Method:      MethodCash,
		Pending:     o.OrderNumber == "",
	}
}

func (CashOutcome) isOutcome() {}

// ElectronicOutcome is the result of a confirmed provider payment followed
// by status polling. TimedOut means polling ran out of attempts.
type ElectronicOutcome struct {
	Method      PaymentMethod
	PaymentID   string
	OrderNumber string
	TimedOut    bool
}

func (o ElectronicOutcome) Resolve() OrderResult {
	return OrderResult{
		OrderNumber: o.OrderNumber,
		PaymentID:   o.PaymentID,
		Method:      o.Method,
		Pending:     o.TimedOut || o.OrderNumber == "",
	}
}

func (ElectronicOutcome) isOutcome() {}
