// Package redis provides a Redis Streams event bus with consumer groups.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/learnloop/ecosync/internal/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamsBus implements the event bus over Redis Streams. Each topic maps to
// one stream; subscribers share a consumer group so events are processed
// once per group.
type StreamsBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
}

// NewStreamsBus creates a Redis Streams event bus.
func NewStreamsBus(client *redis.Client, consumerGroup, consumerName string, logger *zap.Logger) *StreamsBus {
	return &StreamsBus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
	}
}

func streamKey(topic string) string {
	return "ecosync:events:" + topic
}

// Publish appends the event to the topic's stream.
func (b *StreamsBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]interface{}{"data": string(data)},
	}
	if _, err := b.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("topic", topic))
	return nil
}

// Subscribe creates the consumer group if needed and starts a reader
// goroutine that runs until ctx is done.
func (b *StreamsBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	key := streamKey(topic)

	err := b.client.XGroupCreateMkStream(ctx, key, b.consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	b.logger.Info("subscribed to event stream",
		zap.String("stream", key),
		zap.String("consumer_group", b.consumerGroup),
		zap.String("consumer", b.consumerName))

	go b.readStream(ctx, key, handler)
	return nil
}

// Close is a no-op; the shared redis client is owned by the caller.
func (b *StreamsBus) Close() error { return nil }

func (b *StreamsBus) readStream(ctx context.Context, key string, handler ports.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.consumerGroup,
			Consumer: b.consumerName,
			Streams:  []string{key, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.logger.Error("failed to read from stream",
				zap.String("stream", key),
				zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				b.processMessage(ctx, key, message, handler)
			}
		}
	}
}

func (b *StreamsBus) processMessage(ctx context.Context, key string, message redis.XMessage, handler ports.EventHandler) {
	raw, ok := message.Values["data"].(string)
	if !ok {
		b.logger.Warn("stream message without data field",
			zap.String("stream", key),
			zap.String("message_id", message.ID))
		b.ack(ctx, key, message.ID)
		return
	}

	var event ports.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		b.logger.Error("failed to unmarshal event",
			zap.String("stream", key),
			zap.String("message_id", message.ID),
			zap.Error(err))
		b.ack(ctx, key, message.ID)
		return
	}

	if err := handler(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err))
		// Ack anyway: the bus is a notification channel, not a work queue.
	}
	b.ack(ctx, key, message.ID)
}

func (b *StreamsBus) ack(ctx context.Context, key, messageID string) {
	if err := b.client.XAck(ctx, key, b.consumerGroup, messageID).Err(); err != nil {
		b.logger.Error("failed to ack stream message",
			zap.String("stream", key),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
