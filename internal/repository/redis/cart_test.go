package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/TableOrder/internal/domain"
)

func setupRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func sampleItems() []domain.CartItem {
	return []domain.CartItem{
		{
			ID:         "line-1",
			MenuItemID: "burger",
			Name:       "Burger",
			Price:      1000,
			Quantity:   2,
			Extras:     []domain.Option{{ID: "cheese", Name: "Cheese", Price: 150}},
		},
		{ID: "line-2", MenuItemID: "cola", Name: "Cola", Price: 350, Quantity: 1},
	}
}

func TestCartKey(t *testing.T) {
	assert.Equal(t, "cart-pizzeria-12", CartKey("pizzeria", 12))
	assert.Equal(t, "orders-pizzeria-table-12", HistoryKey("pizzeria", 12))
}

func TestCartStore_LoadMissing(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewCartStore(client, time.Hour)

	items, err := store.Load(context.Background(), "pizzeria", 4)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCartStore_SaveAndLoad(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pizzeria", 4, sampleItems()))
	assert.True(t, mr.Exists("cart-pizzeria-4"))
	assert.Equal(t, time.Hour, mr.TTL("cart-pizzeria-4"))

	items, err := store.Load(ctx, "pizzeria", 4)
	require.NoError(t, err)
	assert.Equal(t, sampleItems(), items)
}

func TestCartStore_SaveEmptyDeletes(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pizzeria", 4, sampleItems()))
	require.NoError(t, store.Save(ctx, "pizzeria", 4, nil))
	assert.False(t, mr.Exists("cart-pizzeria-4"))
}

func TestCartStore_SaveWithoutTTL(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, 0)

	require.NoError(t, store.Save(context.Background(), "pizzeria", 4, sampleItems()))
	assert.Equal(t, time.Duration(0), mr.TTL("cart-pizzeria-4"))
}

func TestCartStore_LoadMalformed(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, 0)

	for _, raw := range []string{"not json", `{"items":1}`, `[1,2,3]`} {
		require.NoError(t, mr.Set("cart-pizzeria-4", raw))
		items, err := store.Load(context.Background(), "pizzeria", 4)
		require.NoError(t, err, raw)
		assert.Empty(t, items, raw)
		assert.False(t, mr.Exists("cart-pizzeria-4"), raw)
	}
}

func TestCartStore_LoadNormalizesEntries(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, 0)

	stored := []map[string]any{
		{"id": "line-1", "name": "Burger", "price": 1000, "quantity": 0},
		{"name": "no id", "price": 100, "quantity": 1},
	}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, mr.Set("cart-pizzeria-4", string(data)))

	items, err := store.Load(context.Background(), "pizzeria", 4)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "line-1", items[0].ID)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestCartStore_TablesAreIsolated(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewCartStore(client, 0)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "pizzeria", 1, sampleItems()))

	items, err := store.Load(ctx, "pizzeria", 2)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = store.Load(ctx, "bistro", 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCartStore_RedisDown(t *testing.T) {
	client, mr := setupRedis(t)
	store := NewCartStore(client, 0)
	mr.Close()

	_, err := store.Load(context.Background(), "pizzeria", 1)
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), "pizzeria", 1, sampleItems()))
}
