package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/TableOrder/internal/domain"
)

// RestaurantCache implements repository.RestaurantCache on Redis.
type RestaurantCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRestaurantCache(client redis.Cmdable, ttl time.Duration) *RestaurantCache {
	return &RestaurantCache{client: client, ttl: ttl}
}

func (c *RestaurantCache) Get(ctx context.Context, slug string) (*domain.Restaurant, error) {
	data, err := c.client.Get(ctx, restaurantKey(slug)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get restaurant: %w", err)
	}

	var r domain.Restaurant
	if err := json.Unmarshal(data, &r); err != nil {
		// A corrupt entry is a miss; the caller refetches and overwrites it.
		return nil, nil
	}
	return &r, nil
}

func (c *RestaurantCache) Set(ctx context.Context, r *domain.Restaurant) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal restaurant: %w", err)
	}
	if err := c.client.Set(ctx, restaurantKey(r.Slug), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set restaurant: %w", err)
	}
	return nil
}
