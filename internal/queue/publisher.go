package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dealership_backend/internal/model"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event NotificationEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger.Named("publisher")}
}

// Publish adds an event to the stream using XADD.
// Uses "*" for auto-generated message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event NotificationEvent) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Warn("publish failed", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.logger.Debug("published",
		zap.String("stream", stream),
		zap.String("type", event.Type),
		zap.String("msg_id", messageID),
		zap.Duration("duration", time.Since(startTime)))
	return messageID, nil
}

// PublishEvent converts a business event and publishes it to the notification stream.
func (p *RedisPublisher) PublishEvent(ctx context.Context, ev model.Event) (string, error) {
	event, err := FromDomain(ev)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamNotifications, event)
}
