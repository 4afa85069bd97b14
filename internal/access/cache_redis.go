package access

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	platformredis "heirloom/internal/platform/redis"
)

// redisKeyPrefix namespaces evaluation entries so Flush can scan and
// delete only this cache's keys.
const redisKeyPrefix = "heirloom:permeval:"

// RedisCache stores evaluations in Redis so multiple instances share one
// cache. TTL is enforced by Redis itself; Flush deletes by prefix scan,
// matching the coarse invalidation contract.
type RedisCache struct {
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (PermissionEvaluation, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return PermissionEvaluation{}, false
	}
	var evaluation PermissionEvaluation
	if err := json.Unmarshal(raw, &evaluation); err != nil {
		c.logger.WarnContext(ctx, "corrupt cache entry dropped", "key", key, "error", err)
		return PermissionEvaluation{}, false
	}
	return evaluation, true
}

func (c *RedisCache) Set(ctx context.Context, key string, evaluation PermissionEvaluation) {
	raw, err := json.Marshal(evaluation)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "cache flush scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache flush delete failed", "error", err)
	}
}
