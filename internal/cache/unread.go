package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dealership_backend/internal/model"
)

const (
	// UnreadCachePrefix is the key prefix for cached unread counts
	UnreadCachePrefix = "unread:"

	// UnreadCacheTTL bounds how stale a count can get if an invalidation is lost
	UnreadCacheTTL = 10 * time.Minute

	scanBatch = 200
)

// UnreadCache caches per-recipient unread inbox counts for badge display.
// A miss is never an error; callers fall back to the store.
type UnreadCache interface {
	// Get returns (count, found, error)
	Get(ctx context.Context, audience model.Audience, recipientID int64) (int, bool, error)

	// Set stores a freshly computed count
	Set(ctx context.Context, audience model.Audience, recipientID int64, count int) error

	// Invalidate drops the cached counts of the given recipients
	Invalidate(ctx context.Context, audience model.Audience, recipientIDs ...int64) error

	// InvalidateAudience drops every cached count of an audience.
	// Used when an operator-wide record changes every operator's count.
	InvalidateAudience(ctx context.Context, audience model.Audience) error
}

// RedisUnreadCache implements UnreadCache with plain string keys.
type RedisUnreadCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewUnreadCache creates an UnreadCache backed by Redis.
func NewUnreadCache(client *redis.Client, logger *zap.Logger) UnreadCache {
	return &RedisUnreadCache{client: client, logger: logger.Named("unread_cache")}
}

func unreadKey(audience model.Audience, recipientID int64) string {
	return fmt.Sprintf("%s%s:%d", UnreadCachePrefix, audience, recipientID)
}

func (c *RedisUnreadCache) Get(ctx context.Context, audience model.Audience, recipientID int64) (int, bool, error) {
	raw, err := c.client.Get(ctx, unreadKey(audience, recipientID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread count: %w", err)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		// Corrupt entry, treat as a miss
		c.logger.Warn("bad cached unread count", zap.String("value", raw), zap.Error(err))
		return 0, false, nil
	}
	return n, true, nil
}

func (c *RedisUnreadCache) Set(ctx context.Context, audience model.Audience, recipientID int64, count int) error {
	if err := c.client.Set(ctx, unreadKey(audience, recipientID), count, UnreadCacheTTL).Err(); err != nil {
		return fmt.Errorf("set unread count: %w", err)
	}
	return nil
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, audience model.Audience, recipientIDs ...int64) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	keys := make([]string, len(recipientIDs))
	for i, id := range recipientIDs {
		keys[i] = unreadKey(audience, id)
	}

	// DEL in chunks so a broadcast does not build one huge command
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("invalidate unread counts: %w", err)
		}
	}
	return nil
}

func (c *RedisUnreadCache) InvalidateAudience(ctx context.Context, audience model.Audience) error {
	pattern := fmt.Sprintf("%s%s:*", UnreadCachePrefix, audience)
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan unread keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate audience %s: %w", audience, err)
	}
	c.logger.Debug("audience invalidated", zap.String("audience", string(audience)), zap.Int("keys", len(keys)))
	return nil
}

// NopUnreadCache always misses. Used when Redis is not configured.
type NopUnreadCache struct{}

func (NopUnreadCache) Get(context.Context, model.Audience, int64) (int, bool, error) {
	return 0, false, nil
}
func (NopUnreadCache) Set(context.Context, model.Audience, int64, int) error { return nil }
func (NopUnreadCache) Invalidate(context.Context, model.Audience, ...int64) error {
	return nil
}
func (NopUnreadCache) InvalidateAudience(context.Context, model.Audience) error { return nil }
