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
	apperrors "github.com/utafrali/TableOrder/pkg/errors"
	"github.com/utafrali/TableOrder/pkg/logger"
)

const maxTxRetries = 5

// HistoryStore implements repository.OrderHistory on Redis. Writes use
// WATCH/MULTI so concurrent appends for one table never lose an entry.
type HistoryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHistoryStore creates a history store. A zero ttl keeps history until
// deleted.
func NewHistoryStore(client *redis.Client, ttl time.Duration) *HistoryStore {
	return &HistoryStore{client: client, ttl: ttl}
}

func (s *HistoryStore) List(ctx context.Context, tenant string, table int) ([]domain.OrderReference, error) {
	return s.read(ctx, s.client, HistoryKey(tenant, table))
}

func (s *HistoryStore) Append(ctx context.Context, tenant string, table int, ref domain.OrderReference) (bool, error) {
	return s.update(ctx, HistoryKey(tenant, table), func(refs []domain.OrderReference) ([]domain.OrderReference, bool) {
		return domain.AppendReference(refs, ref)
	})
}

func (s *HistoryStore) Resolve(ctx context.Context, tenant string, table int, paymentID, orderNumber string) (bool, error) {
	return s.update(ctx, HistoryKey(tenant, table), func(refs []domain.OrderReference) ([]domain.OrderReference, bool) {
		return domain.ResolveReference(refs, paymentID, orderNumber)
	})
}

func (s *HistoryStore) read(ctx context.Context, c redis.Cmdable, key string) ([]domain.OrderReference, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.OrderReference{}, nil
		}
		return nil, fmt.Errorf("redis get history: %w", err)
	}

	var refs []domain.OrderReference
	if err := json.Unmarshal(data, &refs); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "discarding malformed order history",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return []domain.OrderReference{}, nil
	}
	if refs == nil {
		refs = []domain.OrderReference{}
	}
	return refs, nil
}

func (s *HistoryStore) update(ctx context.Context, key string, fn func([]domain.OrderReference) ([]domain.OrderReference, bool)) (bool, error) {
	var changed bool
	txf := func(tx *redis.Tx) error {
		refs, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, ok := fn(refs)
		changed = ok
		if !ok {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("redis update history: %w", err)
	}
	return false, apperrors.Conflict("order history is being modified concurrently")
}
