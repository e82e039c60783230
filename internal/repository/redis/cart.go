package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/TableOrder/internal/domain"
	"github.com/utafrali/TableOrder/pkg/logger"
)

// CartStore implements repository.CartStore on Redis. Each cart is one JSON
// array under CartKey.
type CartStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCartStore creates a cart store. A zero ttl keeps carts until deleted.
func NewCartStore(client redis.Cmdable, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func (s *CartStore) Load(ctx context.Context, tenant string, table int) ([]domain.CartItem, error) {
	key := CartKey(tenant, table)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.CartItem{}, nil
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		log := logger.FromContext(ctx)
		log.WarnContext(ctx, "discarding malformed cart",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		// Best effort: the next Load retries a failed delete.
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			log.WarnContext(ctx, "failed to delete malformed cart",
				slog.String("key", key),
				slog.String("error", delErr.Error()),
			)
		}
		return []domain.CartItem{}, nil
	}

	out := items[:0]
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		out = append(out, it)
	}
	if out == nil {
		out = []domain.CartItem{}
	}
	return out, nil
}

func (s *CartStore) Save(ctx context.Context, tenant string, table int, items []domain.CartItem) error {
	key := CartKey(tenant, table)

	if len(items) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del cart: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}
