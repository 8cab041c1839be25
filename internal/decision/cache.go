package decision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FloorCache memoises per-day alert floors. Entries are scoped to a trading
// day so a new day always starts empty.
type FloorCache interface {
	Get(ctx context.Context, day, identifier string) (float64, bool, error)
	Raise(ctx context.Context, day, identifier string, value float64) error
}

// MemoryFloorCache keeps floors for the current day only.
type MemoryFloorCache struct {
	mu     sync.Mutex
	day    string
	floors map[string]float64
}

// NewMemoryFloorCache constructs an empty in-process cache.
func NewMemoryFloorCache() *MemoryFloorCache {
	return &MemoryFloorCache{floors: make(map[string]float64)}
}

// Get implements FloorCache.
func (c *MemoryFloorCache) Get(_ context.Context, day, identifier string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day != c.day {
		return 0, false, nil
	}
	v, ok := c.floors[identifier]
	return v, ok, nil
}

// Raise implements FloorCache. Switching to a different day drops every entry.
func (c *MemoryFloorCache) Raise(_ context.Context, day, identifier string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day != c.day {
		c.day = day
		c.floors = make(map[string]float64)
	}
	if cur, ok := c.floors[identifier]; !ok || value > cur {
		c.floors[identifier] = value
	}
	return nil
}

type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisFloorCache stores floors under floor:<day>:<identifier> with a TTL that
// outlives the trading day.
type RedisFloorCache struct {
	client redisCmdable
	prefix string
	ttl    time.Duration
}

// NewRedisFloorCache wraps a redis client.
func NewRedisFloorCache(client redisCmdable, prefix string, ttl time.Duration) *RedisFloorCache {
	if prefix == "" {
		prefix = "optionwatch"
	}
	if ttl <= 0 {
		ttl = 36 * time.Hour
	}
	return &RedisFloorCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisFloorCache) key(day, identifier string) string {
	return fmt.Sprintf("%s:floor:%s:%s", c.prefix, day, identifier)
}

// Get implements FloorCache.
func (c *RedisFloorCache) Get(ctx context.Context, day, identifier string) (float64, bool, error) {
	raw, err := c.client.Get(ctx, c.key(day, identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get floor: %w", err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached floor %q: %w", raw, err)
	}
	return v, true, nil
}

// Raise implements FloorCache. A lower value never replaces a higher one.
func (c *RedisFloorCache) Raise(ctx context.Context, day, identifier string, value float64) error {
	cur, ok, err := c.Get(ctx, day, identifier)
	if err != nil {
		return err
	}
	if ok && cur >= value {
		return nil
	}
	encoded := strconv.FormatFloat(value, 'f', -1, 64)
	if err := c.client.Set(ctx, c.key(day, identifier), encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set floor: %w", err)
	}
	return nil
}

var (
	_ FloorCache   = (*MemoryFloorCache)(nil)
	_ FloorCache   = (*RedisFloorCache)(nil)
	_ redisCmdable = (*redis.Client)(nil)
)
