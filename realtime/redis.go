// ABOUTME: Redis Streams bridge carrying change events between processes
// ABOUTME: Publishes local events with XADD and feeds remote ones into a local publisher
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultStream = "spruce:changes"

	streamMaxLen   = 10000
	readBlock      = 5 * time.Second
	readCount      = 100
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// RedisBridge shares change events with other processes through one stream.
// Events this bridge wrote are skipped on read, since the local hub already saw them.
type RedisBridge struct {
	client *redis.Client
	stream string
	origin string
	logger *zap.Logger
}

func NewRedisBridge(client *redis.Client, stream string, logger *zap.Logger) *RedisBridge {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client: client,
		stream: stream,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Publish appends the event to the stream.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	values, err := encodeEvent(ev, b.origin)
	if err != nil {
		return err
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Run reads new stream entries and republishes them to sink until ctx is cancelled.
// Read failures back off exponentially up to maxBackoff.
func (b *RedisBridge) Run(ctx context.Context, sink Publisher) error {
	lastID := "$"
	backoff := initialBackoff

	b.logger.Info("realtime bridge started", zap.String("stream", b.stream))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("realtime bridge stopped", zap.String("stream", b.stream))
			return nil
		default:
		}

		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.stream, lastID},
			Count:   readCount,
			Block:   readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("failed to read change stream, backing off",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = initialBackoff

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				ev, origin, err := decodeMessage(msg)
				if err != nil {
					b.logger.Warn("skipping malformed change event", zap.String("id", msg.ID), zap.Error(err))
					continue
				}
				if origin == b.origin {
					continue
				}
				if err := sink.Publish(ctx, ev); err != nil {
					b.logger.Warn("failed to deliver remote change event", zap.String("id", msg.ID), zap.Error(err))
				}
			}
		}
	}
}

func encodeEvent(ev Event, origin string) (map[string]interface{}, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return map[string]interface{}{
		"event":  string(data),
		"origin": origin,
	}, nil
}

func decodeMessage(msg redis.XMessage) (Event, string, error) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return Event{}, "", fmt.Errorf("message %s has no event field", msg.ID)
	}
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Event{}, "", fmt.Errorf("failed to decode change event: %w", err)
	}
	origin, _ := msg.Values["origin"].(string)
	return ev, origin, nil
}
