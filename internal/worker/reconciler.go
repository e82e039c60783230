// Package worker runs the background jobs of the checkout service.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Reconcilable settles checkouts whose order was not confirmed in time.
// *service.CheckoutService satisfies it.
type Reconcilable interface {
	Reconcile(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ReconcilerConfig controls how often and how much the reconciler works.
type ReconcilerConfig struct {
	Interval  time.Duration
	OlderThan time.Duration
	BatchSize int
}

// Reconciler periodically asks the backend about paid checkouts that are
// still waiting for their order number.
type Reconciler struct {
	target Reconcilable
	cfg    ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler creates a reconciler. Zero config values get defaults of one
// minute, two minutes and 50.
func NewReconciler(target Reconcilable, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.OlderThan <= 0 {
		cfg.OlderThan = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{target: target, cfg: cfg, logger: logger}
}

// Run reconciles on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass and returns how many
// checkouts it settled.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	settled, err := r.target.Reconcile(ctx, r.cfg.OlderThan, r.cfg.BatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "checkout reconciliation error", slog.String("error", err.Error()))
		return 0
	}
	if settled > 0 {
		r.logger.InfoContext(ctx, "pending checkouts reconciled", slog.Int("settled", settled))
	}
	return settled
}
