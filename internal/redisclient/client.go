package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache key prefixes. The engine stays correct on any miss; Redis only
// shortens the read path.
const (
	tierCachePrefix  = "commission:tier:"
	statsCachePrefix = "commission:stats:"
	summaryCacheKey  = "commission:summary:global"
	lockPrefix       = "commission:lock:"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetTier reads a cached commission tier bundle into dest. Returns false on
// a miss.
func (c *Client) GetTier(ctx context.Context, productID int64, dest interface{}) (bool, error) {
	return c.getJSON(ctx, fmt.Sprintf("%s%d", tierCachePrefix, productID), dest)
}

// SetTier caches a commission tier bundle with a TTL.
func (c *Client) SetTier(ctx context.Context, productID int64, value interface{}, ttl time.Duration) error {
	return c.setJSON(ctx, fmt.Sprintf("%s%d", tierCachePrefix, productID), value, ttl)
}

// GetAccountStats reads cached per-account stats into dest. Returns false on
// a miss.
func (c *Client) GetAccountStats(ctx context.Context, accountID int64, dest interface{}) (bool, error) {
	return c.getJSON(ctx, fmt.Sprintf("%s%d", statsCachePrefix, accountID), dest)
}

// SetAccountStats caches per-account stats with a TTL.
func (c *Client) SetAccountStats(ctx context.Context, accountID int64, value interface{}, ttl time.Duration) error {
	return c.setJSON(ctx, fmt.Sprintf("%s%d", statsCachePrefix, accountID), value, ttl)
}

// InvalidateAccountStats drops cached stats for the given recipients, e.g.
// after their entries change status.
func (c *Client) InvalidateAccountStats(ctx context.Context, accountIDs ...int64) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = fmt.Sprintf("%s%d", statsCachePrefix, id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetGlobalSummary reads the cached global summary into dest. Returns false
// on a miss.
func (c *Client) GetGlobalSummary(ctx context.Context, dest interface{}) (bool, error) {
	return c.getJSON(ctx, summaryCacheKey, dest)
}

// SetGlobalSummary caches the global summary with a TTL.
func (c *Client) SetGlobalSummary(ctx context.Context, value interface{}, ttl time.Duration) error {
	return c.setJSON(ctx, summaryCacheKey, value, ttl)
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockPrefix+lockKey, "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, lockPrefix+lockKey).Err()
}

func (c *Client) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}
