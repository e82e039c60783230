package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/repository"
	"github.com/utafrali/TableOrder/pkg/pagination"
)

// PaymentResolver applies payment statuses learned out of band.
// *CheckoutService satisfies it.
type PaymentResolver interface {
	ResolvePayment(ctx context.Context, paymentID string, report domain.StatusReport) error
}

// HistoryService serves the orders placed at a table.
type HistoryService struct {
	history  repository.OrderHistory
	status   StatusFetcher
	resolver PaymentResolver
	logger   *slog.Logger
}

// NewHistoryService creates a history service. resolver may be nil.
func NewHistoryService(history repository.OrderHistory, status StatusFetcher, resolver PaymentResolver, logger *slog.Logger) *HistoryService {
	return &HistoryService{history: history, status: status, resolver: resolver, logger: logger}
}

// List returns one page of the table's orders, newest first.
func (s *HistoryService) List(ctx context.Context, tenant string, table int, params pagination.Params) (pagination.Result[domain.OrderReference], error) {
	refs, err := s.history.List(ctx, tenant, table)
	if err != nil {
		return pagination.Result[domain.OrderReference]{}, err
	}
	return pagination.Slice(newestFirst(refs), params), nil
}

// Refresh asks the backend about every entry still waiting for its order
// number and fills in the ones that have one. It returns the updated history,
// newest first.
func (s *HistoryService) Refresh(ctx context.Context, tenant string, table int) ([]domain.OrderReference, error) {
	refs, err := s.history.List(ctx, tenant, table)
	if err != nil {
		return nil, err
	}

	resolved := 0
	for _, ref := range domain.PendingReferences(refs) {
		if ref.PaymentID == "" {
			continue
		}
		report, err := s.status.PaymentStatus(ctx, ref.PaymentID)
		if err != nil {
			s.logger.WarnContext(ctx, "history refresh status check failed",
				slog.String("payment_id", ref.PaymentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if report.Status != domain.PaymentCompleted || report.OrderNumber == "" {
			continue
		}

		changed, err := s.history.Resolve(ctx, tenant, table, ref.PaymentID, report.OrderNumber)
		if err != nil {
			return nil, err
		}
		if changed {
			resolved++
		}
		if s.resolver != nil {
			if err := s.resolver.ResolvePayment(ctx, ref.PaymentID, *report); err != nil {
				s.logger.WarnContext(ctx, "failed to resolve checkout attempt",
					slog.String("payment_id", ref.PaymentID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if resolved == 0 {
		return newestFirst(refs), nil
	}

	s.logger.InfoContext(ctx, "order history refreshed",
		slog.String("tenant", tenant),
		slog.Int("table", table),
		slog.Int("resolved", resolved),
	)
	refs, err = s.history.List(ctx, tenant, table)
	if err != nil {
		return nil, err
	}
	return newestFirst(refs), nil
}

// newestFirst reverses the stored append order into a new slice.
func newestFirst(refs []domain.OrderReference) []domain.OrderReference {
	out := make([]domain.OrderReference, len(refs))
	for i, r := range refs {
		out[len(refs)-1-i] = r
	}
	return out
}
