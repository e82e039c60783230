package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/TableOrder/internal/domain"
	pkgkafka "github.com/utafrali/TableOrder/pkg/kafka"
)

// TopicPaymentStatus carries payment status changes from the restaurant
// backend.
var TopicPaymentStatus = pkgkafka.Topic("payment", "status")

// PaymentResolver applies a payment status to the checkout it belongs to.
type PaymentResolver interface {
	ResolvePayment(ctx context.Context, paymentID string, report domain.StatusReport) error
}

// PaymentStatusData is the expected payload of a payment.status event.
type PaymentStatusData struct {
	PaymentID   string `json:"paymentId"`
	Status      string `json:"status"`
	OrderNumber string `json:"orderNumber,omitempty"`
}

// Consumer handles events consumed by the checkout service.
type Consumer struct {
	resolver PaymentResolver
	logger   *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(resolver PaymentResolver, logger *slog.Logger) *Consumer {
	return &Consumer{
		resolver: resolver,
		logger:   logger,
	}
}

// HandlePaymentStatus resolves the checkout behind a payment.status event.
// Malformed payloads and unknown statuses are logged and dropped, since
// retrying cannot fix them.
func (c *Consumer) HandlePaymentStatus(ctx context.Context, event *pkgkafka.Event) error {
	var data PaymentStatusData
	if err := event.UnmarshalData(&data); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed payment.status event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	status := domain.PaymentStatus(data.Status)
	if data.PaymentID == "" || (status != domain.PaymentPending && status != domain.PaymentCompleted && status != domain.PaymentFailed) {
		c.logger.WarnContext(ctx, "dropping payment.status event with invalid payload",
			slog.String("event_id", event.EventID),
			slog.String("payment_id", data.PaymentID),
			slog.String("status", data.Status),
		)
		return nil
	}
	if status == domain.PaymentPending {
		return nil
	}

	c.logger.InfoContext(ctx, "processing payment.status event",
		slog.String("payment_id", data.PaymentID),
		slog.String("status", data.Status),
		slog.String("order_number", data.OrderNumber),
	)

	report := domain.StatusReport{Status: status, OrderNumber: data.OrderNumber}
	if err := c.resolver.ResolvePayment(ctx, data.PaymentID, report); err != nil {
		return fmt.Errorf("resolve payment %s: %w", data.PaymentID, err)
	}
	return nil
}

// Handler returns HandlePaymentStatus guarded against redelivery by store.
func (c *Consumer) Handler(store pkgkafka.IdempotencyStore) pkgkafka.Handler {
	return pkgkafka.IdempotentHandler(store, c.HandlePaymentStatus, c.logger)
}
