package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/internal/repository"
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/validator"
)

// MaxLineQuantity bounds the quantity of a single cart line.
const MaxLineQuantity = 99

// OptionInput is a variant or extra chosen for a line.
type OptionInput struct {
	ID    string `json:"id" validate:"required,max=100"`
	Name  string `json:"name" validate:"required,max=200"`
	Price int64  `json:"price" validate:"gte=0"`
}

// AddItemInput holds the parameters for adding a line to a cart.
type AddItemInput struct {
	MenuItemID string        `json:"menuItemId" validate:"required,max=100"`
	Name       string        `json:"name" validate:"required,max=200"`
	Price      int64         `json:"price" validate:"gte=0"`
	Quantity   int           `json:"quantity" validate:"omitempty,min=1,max=99"`
	Variant    *OptionInput  `json:"variant" validate:"omitempty"`
	Extras     []OptionInput `json:"extras" validate:"max=20,dive"`
	Notes      string        `json:"notes" validate:"max=500"`
}

func (in AddItemInput) item() domain.CartItem {
	it := domain.CartItem{
		MenuItemID: in.MenuItemID,
		Name:       in.Name,
		Price:      in.Price,
		Quantity:   in.Quantity,
		Notes:      in.Notes,
	}
	if in.Variant != nil {
		it.Variant = &domain.Option{ID: in.Variant.ID, Name: in.Variant.Name, Price: in.Variant.Price}
	}
	for _, e := range in.Extras {
		it.Extras = append(it.Extras, domain.Option{ID: e.ID, Name: e.Name, Price: e.Price})
	}
	return it
}

// tableLocks serialises read-modify-write cycles on one table's cart within
// this process.
type tableLocks struct {
	stripes [64]sync.Mutex
}

func (l *tableLocks) lock(tenant string, table int) func() {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s/%d", tenant, table)
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

// CartService implements the business logic for table carts.
type CartService struct {
	store     repository.CartStore
	publisher EventPublisher
	logger    *slog.Logger
	locks     tableLocks
}

// NewCartService creates a new cart service.
func NewCartService(store repository.CartStore, publisher EventPublisher, logger *slog.Logger) *CartService {
	return &CartService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Get returns the cart of a table. A table without a cart gets an empty one.
func (s *CartService) Get(ctx context.Context, tenant string, table int) (*domain.Cart, error) {
	items, err := s.store.Load(ctx, tenant, table)
	if err != nil {
		return nil, apperrors.Wrap(err, "load cart")
	}
	return &domain.Cart{Tenant: tenant, Table: table, Items: items}, nil
}

// AddItem appends a new line and returns the updated cart and the new line.
func (s *CartService) AddItem(ctx context.Context, tenant string, table int, in *AddItemInput) (*domain.Cart, *domain.CartItem, error) {
	if err := validator.Validate(in); err != nil {
		return nil, nil, err
	}

	var added domain.CartItem
	cart, err := s.mutate(ctx, tenant, table, "add", func(items []domain.CartItem) ([]domain.CartItem, error) {
		var next []domain.CartItem
		next, added = domain.AddItem(items, in.item())
		return next, nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "cart item added",
		slog.String("tenant", tenant),
		slog.Int("table", table),
		slog.String("item_id", added.ID),
		slog.String("menu_item_id", added.MenuItemID),
	)
	return cart, &added, nil
}

// UpdateQuantity changes the quantity of a line by delta. The quantity never
// drops below 1.
func (s *CartService) UpdateQuantity(ctx context.Context, tenant string, table int, itemID string, delta int) (*domain.Cart, error) {
	return s.mutate(ctx, tenant, table, "update_quantity", func(items []domain.CartItem) ([]domain.CartItem, error) {
		next, ok := domain.UpdateQuantity(items, itemID, delta)
		if !ok {
			return nil, apperrors.NotFound("cart item", itemID)
		}
		if next[domain.FindItem(next, itemID)].Quantity > MaxLineQuantity {
			return nil, apperrors.InvalidInput(fmt.Sprintf("quantity cannot exceed %d", MaxLineQuantity))
		}
		return next, nil
	})
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, tenant string, table int, itemID string) (*domain.Cart, error) {
	return s.mutate(ctx, tenant, table, "remove", func(items []domain.CartItem) ([]domain.CartItem, error) {
		next, ok := domain.RemoveItem(items, itemID)
		if !ok {
			return nil, apperrors.NotFound("cart item", itemID)
		}
		return next, nil
	})
}

// Clear empties the cart, which deletes its stored entry.
func (s *CartService) Clear(ctx context.Context, tenant string, table int) error {
	_, err := s.mutate(ctx, tenant, table, "clear", func([]domain.CartItem) ([]domain.CartItem, error) {
		return nil, nil
	})
	return err
}

func (s *CartService) mutate(ctx context.Context, tenant string, table int, op string, fn func([]domain.CartItem) ([]domain.CartItem, error)) (*domain.Cart, error) {
	unlock := s.locks.lock(tenant, table)
	defer unlock()

	items, err := s.store.Load(ctx, tenant, table)
	if err != nil {
		return nil, apperrors.Wrap(err, "load cart")
	}

	next, err := fn(items)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, tenant, table, next); err != nil {
		return nil, apperrors.Wrap(err, "save cart")
	}
	cartOperationsTotal.WithLabelValues(op).Inc()

	if next == nil {
		next = []domain.CartItem{}
	}
	cart := &domain.Cart{Tenant: tenant, Table: table, Items: next}

	if err := s.publisher.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.WarnContext(ctx, "failed to publish cart.updated event",
			slog.String("tenant", tenant),
			slog.Int("table", table),
			slog.String("error", err.Error()),
		)
	}
	return cart, nil
}

// RemoveOrdered takes the ordered quantities off the cart. Lines and units
// added after the snapshot was taken stay in the cart.
func (s *CartService) RemoveOrdered(ctx context.Context, tenant string, table int, ordered []domain.CartItem) error {
	_, err := s.mutate(ctx, tenant, table, "clear", func(items []domain.CartItem) ([]domain.CartItem, error) {
		return domain.SubtractLines(items, ordered), nil
	})
	return err
}
