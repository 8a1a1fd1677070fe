package cache

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dealership_backend/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}
	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestUnreadCache_SetGetInvalidate(t *testing.T) {
	client := setupTestRedis(t)
	c := NewUnreadCache(client, zap.NewNop())
	ctx := context.Background()

	if _, found, err := c.Get(ctx, model.AudienceUser, 1); err != nil || found {
		t.Fatalf("Get on empty cache = found %v, err %v", found, err)
	}

	if err := c.Set(ctx, model.AudienceUser, 1, 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	n, found, err := c.Get(ctx, model.AudienceUser, 1)
	if err != nil || !found || n != 7 {
		t.Fatalf("Get = (%d, %v, %v), want (7, true, nil)", n, found, err)
	}

	// Audiences do not share keys
	if _, found, _ := c.Get(ctx, model.AudienceOperator, 1); found {
		t.Error("operator audience saw the user count")
	}

	if err := c.Invalidate(ctx, model.AudienceUser, 1, 2); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, found, _ := c.Get(ctx, model.AudienceUser, 1); found {
		t.Error("count still cached after Invalidate")
	}
}

func TestUnreadCache_InvalidateAudience(t *testing.T) {
	client := setupTestRedis(t)
	c := NewUnreadCache(client, zap.NewNop())
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		c.Set(ctx, model.AudienceOperator, id, int(id))
	}
	c.Set(ctx, model.AudienceUser, 1, 5)

	if err := c.InvalidateAudience(ctx, model.AudienceOperator); err != nil {
		t.Fatalf("InvalidateAudience: %v", err)
	}
	for id := int64(1); id <= 3; id++ {
		if _, found, _ := c.Get(ctx, model.AudienceOperator, id); found {
			t.Errorf("operator %d still cached", id)
		}
	}
	if _, found, _ := c.Get(ctx, model.AudienceUser, 1); !found {
		t.Error("user audience was wiped by an operator invalidation")
	}
}
