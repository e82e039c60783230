package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/pkg/tracing"
)

// PollPolicy bounds status polling for a provisional payment.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy polls once a second for thirty seconds.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: time.Second, MaxAttempts: 30}
}

// StatusFetcher reads the status of a provisional payment.
type StatusFetcher interface {
	PaymentStatus(ctx context.Context, paymentID string) (*domain.StatusReport, error)
}

// PollResult is how polling ended. When TimedOut is set, Report holds the
// last status seen, which is pending or empty.
type PollResult struct {
	Report   domain.StatusReport
	Attempts int
	TimedOut bool
}

// Poller queries payment status until it settles or the policy runs out.
type Poller struct {
	fetch  StatusFetcher
	policy PollPolicy
	logger *slog.Logger
}

// NewPoller creates a poller. Non-positive policy values fall back to the
// defaults.
func NewPoller(fetch StatusFetcher, policy PollPolicy, logger *slog.Logger) *Poller {
	def := DefaultPollPolicy()
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return &Poller{fetch: fetch, policy: policy, logger: logger}
}

// Policy returns the effective policy.
func (p *Poller) Policy() PollPolicy { return p.policy }

// Poll queries the status of paymentID until it is completed or failed, the
// attempts are exhausted, or ctx is done. A fetch error counts as an attempt
// and polling continues. Only a done ctx returns an error.
func (p *Poller) Poll(ctx context.Context, paymentID string) (res PollResult, err error) {
	ctx, end := tracing.StartSpan(ctx, "payment.Poll", attribute.String("payment_id", paymentID))
	defer func() { end(err) }()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for res.Attempts < p.policy.MaxAttempts {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-timer.C:
		}

		res.Attempts++
		report, fetchErr := p.fetch.PaymentStatus(ctx, paymentID)
		switch {
		case fetchErr != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.logger.WarnContext(ctx, "payment status poll failed",
				slog.String("payment_id", paymentID),
				slog.Int("attempt", res.Attempts),
				slog.String("error", fetchErr.Error()),
			)
		case report.Status == domain.PaymentCompleted || report.Status == domain.PaymentFailed:
			res.Report = *report
			return res, nil
		default:
			res.Report = *report
		}

		timer.Reset(p.policy.Interval)
	}

	res.TimedOut = true
	return res, nil
}
