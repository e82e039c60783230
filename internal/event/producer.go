package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/TableOrder/internal/domain"
	pkgkafka "github.com/utafrali/TableOrder/pkg/kafka"
	"github.com/utafrali/TableOrder/pkg/logger"
)

// Topics published by the checkout service.
var (
	TopicCheckoutCompleted = pkgkafka.Topic("checkout", "completed")
	TopicCheckoutFailed    = pkgkafka.Topic("checkout", "failed")
	TopicCartUpdated       = pkgkafka.Topic("cart", "updated")
)

// Aggregate types.
const (
	AggregateTypeCheckout = "checkout"
	AggregateTypeCart     = "cart"
)

// CheckoutCompletedData is the payload of a checkout.completed event.
type CheckoutCompletedData struct {
	AttemptID           string    `json:"attemptId"`
	Tenant              string    `json:"tenant"`
	Table               int       `json:"table"`
	Method              string    `json:"method"`
	OrderID             string    `json:"orderId,omitempty"`
	OrderNumber         string    `json:"orderNumber,omitempty"`
	PaymentID           string    `json:"paymentId,omitempty"`
	ConfirmationPending bool      `json:"confirmationPending"`
	Subtotal            int64     `json:"subtotal"`
	ServiceFee          int64     `json:"serviceFee"`
	Tip                 int64     `json:"tip"`
	Total               int64     `json:"total"`
	Currency            string    `json:"currency"`
	CompletedAt         time.Time `json:"completedAt"`
}

// CheckoutFailedData is the payload of a checkout.failed event.
type CheckoutFailedData struct {
	AttemptID string `json:"attemptId"`
	Tenant    string `json:"tenant"`
	Table     int    `json:"table"`
	Method    string `json:"method"`
	PaymentID string `json:"paymentId,omitempty"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	Tenant    string `json:"tenant"`
	Table     int    `json:"table"`
	Lines     int    `json:"lines"`
	ItemCount int    `json:"itemCount"`
	Subtotal  int64  `json:"subtotal"`
}

// Producer publishes checkout and cart events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, a *domain.Attempt) error {
	data := CheckoutCompletedData{
		AttemptID:           a.ID,
		Tenant:              a.Tenant,
		Table:               a.Table,
		Method:              string(a.Method),
		OrderID:             a.OrderID,
		OrderNumber:         a.OrderNumber,
		PaymentID:           a.PaymentID,
		ConfirmationPending: a.ConfirmationPending,
		Subtotal:            a.Totals.Subtotal,
		ServiceFee:          a.Totals.ServiceFee,
		Tip:                 a.Totals.Tip,
		Total:               a.Totals.Total,
		Currency:            a.Currency,
		CompletedAt:         a.UpdatedAt,
	}
	if a.CompletedAt != nil {
		data.CompletedAt = *a.CompletedAt
	}
	return p.publish(ctx, TopicCheckoutCompleted, AggregateTypeCheckout, a.ID, data)
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, a *domain.Attempt) error {
	data := CheckoutFailedData{
		AttemptID: a.ID,
		Tenant:    a.Tenant,
		Table:     a.Table,
		Method:    string(a.Method),
		PaymentID: a.PaymentID,
		Kind:      string(a.FailureKind),
		Reason:    a.FailureReason,
	}
	return p.publish(ctx, TopicCheckoutFailed, AggregateTypeCheckout, a.ID, data)
}

// PublishCartUpdated publishes a cart.updated event. The aggregate is the
// table, so every change of one table lands on the same partition.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		Tenant:    cart.Tenant,
		Table:     cart.Table,
		Lines:     len(cart.Items),
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.Subtotal(),
	}
	return p.publish(ctx, TopicCartUpdated, AggregateTypeCart, fmt.Sprintf("%s/%d", cart.Tenant, cart.Table), data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateType, aggregateID, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}
