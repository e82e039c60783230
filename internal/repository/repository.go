package repository

import (
	"context"
	"time"

	"github.com/utafrali/TableOrder/internal/domain"
)

// CartStore persists the cart of a table. A stored entry exists iff the
// cart is non-empty.
type CartStore interface {
	// Load returns the table's items. A missing or malformed entry yields an
	// empty slice and no error.
	Load(ctx context.Context, tenant string, table int) ([]domain.CartItem, error)

	// Save persists items, or deletes the entry when items is empty.
	Save(ctx context.Context, tenant string, table int, items []domain.CartItem) error
}

// OrderHistory keeps the order references of a table.
type OrderHistory interface {
	List(ctx context.Context, tenant string, table int) ([]domain.OrderReference, error)

	// Append adds ref unless the same order is already listed, in which case a
	// pending entry is upgraded. It reports whether the list changed.
	Append(ctx context.Context, tenant string, table int, ref domain.OrderReference) (bool, error)

	// Resolve sets the order number of the entry for paymentID.
	Resolve(ctx context.Context, tenant string, table int, paymentID, orderNumber string) (bool, error)
}

// RestaurantCache caches restaurant profiles by slug.
type RestaurantCache interface {
	// Get returns nil and no error on a miss.
	Get(ctx context.Context, slug string) (*domain.Restaurant, error)
	Set(ctx context.Context, r *domain.Restaurant) error
}

// AttemptRepository persists checkout attempts.
type AttemptRepository interface {
	// Create inserts a. It fails with a conflict when the table already has
	// an open attempt.
	Create(ctx context.Context, a *domain.Attempt) error

	GetByID(ctx context.Context, id string) (*domain.Attempt, error)

	// GetOpenByTable returns the table's attempt that is neither completed nor
	// abandoned. A table has at most one.
	GetOpenByTable(ctx context.Context, tenant string, table int) (*domain.Attempt, error)

	// GetByPaymentID finds the attempt that created the provisional payment.
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Attempt, error)

	// Update writes a, failing with a conflict when it was modified since it
	// was read. On success a.Version is incremented.
	Update(ctx context.Context, a *domain.Attempt) error

	// ListUnresolved returns attempts last updated before the given time
	// whose paid order is not resolved yet: completed ones still waiting for
	// an order number and ones left in PollingOrder. Oldest first.
	ListUnresolved(ctx context.Context, before time.Time, limit int) ([]domain.Attempt, error)

	// ListByTable returns the most recent attempts of a table, newest first.
	ListByTable(ctx context.Context, tenant string, table int, limit int) ([]domain.Attempt, error)
}
