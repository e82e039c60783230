package domain

import "time"

// OrderReference is an entry of a table's order history. OrderNumber stays
// empty while the backend has not materialised the order of a paid
// electronic checkout.
type OrderReference struct {
	OrderID     string        `json:"orderId,omitempty"`
	OrderNumber string        `json:"orderNumber"`
	PaymentID   string        `json:"paymentId,omitempty"`
	AttemptID   string        `json:"attemptId,omitempty"`
	Method      PaymentMethod `json:"method"`
	Total       int64         `json:"total"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Pending reports whether the order number is still unknown.
func (r OrderReference) Pending() bool { return r.OrderNumber == "" }

func (r OrderReference) sameOrder(o OrderReference) bool {
	if r.OrderID != "" && r.OrderID == o.OrderID {
		return true
	}
	return r.PaymentID != "" && r.PaymentID == o.PaymentID
}

// AppendReference adds ref unless an entry for the same order (by OrderID,
// or by PaymentID for electronic orders) exists. An existing pending entry
// is upgraded with the order ID and number ref carries. The second return
// reports whether refs changed.
func AppendReference(refs []OrderReference, ref OrderReference) ([]OrderReference, bool) {
	for i := range refs {
		if !refs[i].sameOrder(ref) {
			continue
		}
		upgraded := refs[i]
		if upgraded.OrderID == "" && ref.OrderID != "" {
			upgraded.OrderID = ref.OrderID
		}
		if upgraded.OrderNumber == "" && ref.OrderNumber != "" {
			upgraded.OrderNumber = ref.OrderNumber
		}
		if upgraded == refs[i] {
			return refs, false
		}
		out := append([]OrderReference(nil), refs...)
		out[i] = upgraded
		return out, true
	}
	out := make([]OrderReference, 0, len(refs)+1)
	out = append(out, refs...)
	return append(out, ref), true
}

// ResolveReference sets orderNumber on the entry for paymentID. It never
// adds an entry.
func ResolveReference(refs []OrderReference, paymentID, orderNumber string) ([]OrderReference, bool) {
	if paymentID == "" || orderNumber == "" {
		return refs, false
	}
	ref := OrderReference{PaymentID: paymentID, OrderNumber: orderNumber}
	for i := range refs {
		if refs[i].sameOrder(ref) {
			return AppendReference(refs, ref)
		}
	}
	return refs, false
}

// PendingReferences returns the entries still missing an order number.
func PendingReferences(refs []OrderReference) []OrderReference {
	var out []OrderReference
	for _, r := range refs {
		if r.Pending() && r.PaymentID != "" {
			out = append(out, r)
		}
	}
	return out
}
