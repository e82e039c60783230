package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/TableOrder/internal/backend"
	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/repository"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
)

// Backend is the part of the restaurant backend the services call.
// *backend.Client satisfies it.
type Backend interface {
	GetRestaurant(ctx context.Context, slug string) (*domain.Restaurant, error)
	CreateOrder(ctx context.Context, slug string, req backend.OrderRequest) (*backend.CreatedOrder, error)
	CreatePayment(ctx context.Context, req backend.PaymentRequest) (*domain.PendingPayment, error)
	PaymentStatus(ctx context.Context, paymentID string) (*domain.StatusReport, error)
}

// EventPublisher publishes checkout and cart domain events.
type EventPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, a *domain.Attempt) error
	PublishCheckoutFailed(ctx context.Context, a *domain.Attempt) error
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
}

// RestaurantDirectory resolves tenant slugs to restaurant profiles, reading
// through the cache.
type RestaurantDirectory struct {
	cache   repository.RestaurantCache
	backend Backend
	logger  *slog.Logger
}

// NewRestaurantDirectory creates a directory. cache may be nil.
func NewRestaurantDirectory(cache repository.RestaurantCache, b Backend, logger *slog.Logger) *RestaurantDirectory {
	return &RestaurantDirectory{cache: cache, backend: b, logger: logger}
}

// Get returns the restaurant behind slug.
func (d *RestaurantDirectory) Get(ctx context.Context, slug string) (*domain.Restaurant, error) {
	if d.cache != nil {
		r, err := d.cache.Get(ctx, slug)
		if err != nil {
			d.logger.WarnContext(ctx, "restaurant cache read failed",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		} else if r != nil {
			return r, nil
		}
	}

	r, err := d.backend.GetRestaurant(ctx, slug)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, r); err != nil {
			d.logger.WarnContext(ctx, "restaurant cache write failed",
				slog.String("tenant", slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return r, nil
}

func utcNow() time.Time { return time.Now().UTC() }

// domainError maps state machine errors to application errors.
func domainError(err error) error {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return apperrors.Conflict(te.Error())
	}
	var ae *domain.AbandonedError
	if errors.As(err, &ae) {
		return apperrors.Gone(ae.Error())
	}
	return err
}
