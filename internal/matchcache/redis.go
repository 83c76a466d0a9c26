package matchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/discovery-service/internal/model"
)

// RedisBackend stores each entry as a JSON string with a TTL and keeps one
// set per posting listing the entry keys that reference it.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend wraps an open client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func indexKey(postingID string) string { return "matchidx:" + postingID }

func (r *RedisBackend) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (r *RedisBackend) Set(ctx context.Context, entry model.CacheEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entry.Key, payload, ttl)
	for _, id := range entry.PostingIDs() {
		pipe.SAdd(ctx, indexKey(id), entry.Key)
		pipe.Expire(ctx, indexKey(id), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisBackend) InvalidatePostings(ctx context.Context, postingIDs []string) (int, error) {
	n := 0
	for _, id := range postingIDs {
		keys, err := r.client.SMembers(ctx, indexKey(id)).Result()
		if err != nil {
			return n, fmt.Errorf("redis smembers: %w", err)
		}
		if len(keys) > 0 {
			deleted, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return n, fmt.Errorf("redis del: %w", err)
			}
			n += int(deleted)
		}
		if err := r.client.Del(ctx, indexKey(id)).Err(); err != nil {
			return n, fmt.Errorf("redis del index: %w", err)
		}
	}
	return n, nil
}
