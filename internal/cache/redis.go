// Package cache tracks chunk ids persisted by earlier ingestion runs, so
// incremental re-ingestion can skip known content without a store round-trip.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache remembers seen chunk ids in a Redis set per collection.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache and verifies connectivity.
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func seenKey(collection string) string {
	return "chunks:seen:" + collection
}

// KnownChunks reports which of the given chunk ids were marked by earlier
// runs. Ids absent from the result are unknown to the cache, which is not
// proof of absence in the store.
func (c *RedisCache) KnownChunks(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	hits, err := c.client.SMIsMember(ctx, seenKey(collection), members...).Result()
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(ids))
	for i, hit := range hits {
		if hit {
			known[ids[i]] = true
		}
	}
	return known, nil
}

// MarkChunks records chunk ids as persisted.
func (c *RedisCache) MarkChunks(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	return c.client.SAdd(ctx, seenKey(collection), members...).Err()
}

// Clear forgets all seen chunk ids for a collection. Used when the backing
// collection is dropped or re-created.
func (c *RedisCache) Clear(ctx context.Context, collection string) error {
	return c.client.Del(ctx, seenKey(collection)).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
