package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "order_snapshot:"
	snapshotIndexKey  = "order_snapshots"
)

// SnapshotCache keeps the last fetched copy of each viewed order so it can
// be served before the authoritative read resolves.
type SnapshotCache interface {
	Get(ctx context.Context, orderID string) (*models.Order, bool, error)
	Put(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID string) error
	IDs(ctx context.Context) ([]string, error)
}

// ReconcileSnapshot replaces the cached copy when the fresh order's
// updated_at differs from it. It reports whether the cache was written.
func ReconcileSnapshot(ctx context.Context, cache SnapshotCache, fresh *models.Order) (bool, error) {
	cached, ok, err := cache.Get(ctx, fresh.ID)
	if err != nil {
		return false, err
	}
	if ok && cached.UpdatedAt.Equal(fresh.UpdatedAt) {
		return false, nil
	}
	if err := cache.Put(ctx, fresh); err != nil {
		return false, err
	}
	return true, nil
}

// RedisSnapshotCache stores snapshots as JSON under order_snapshot:<id>
// with a TTL, indexed by the order_snapshots set.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// ConnectRedis parses the URL and pings the server.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, orderID string) (*models.Order, bool, error) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+orderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &order, true, nil
}

func (c *RedisSnapshotCache) Put(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+order.ID, data, c.ttl)
	pipe.SAdd(ctx, snapshotIndexKey, order.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) Delete(ctx context.Context, orderID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, snapshotKeyPrefix+orderID)
	pipe.SRem(ctx, snapshotIndexKey, orderID)
	_, err := pipe.Exec(ctx)
	return err
}

// IDs lists cached order ids, dropping index entries whose snapshot expired.
func (c *RedisSnapshotCache) IDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.SMembers(ctx, snapshotIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := c.client.Exists(ctx, snapshotKeyPrefix+id).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			c.client.SRem(ctx, snapshotIndexKey, id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// MemorySnapshotCache is the in-process cache used when no Redis is configured.
type MemorySnapshotCache struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{orders: make(map[string]*models.Order)}
}

func (c *MemorySnapshotCache) Get(ctx context.Context, orderID string) (*models.Order, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[orderID]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (c *MemorySnapshotCache) Put(ctx context.Context, order *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.ID] = order.Clone()
	return nil
}

func (c *MemorySnapshotCache) Delete(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
	return nil
}

func (c *MemorySnapshotCache) IDs(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.orders))
	for id := range c.orders {
		ids = append(ids, id)
	}
	return ids, nil
}
