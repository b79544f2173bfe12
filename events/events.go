// Package events publishes run progress to an external sink.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/redis/go-redis/v9"
)

// Sink receives progress events. Publish errors are never fatal to a run.
type Sink interface {
	Publish(ctx context.Context, event models.ProgressEvent) error
}

// Noop discards events.
type Noop struct{}

// Publish implements Sink.
func (Noop) Publish(context.Context, models.ProgressEvent) error { return nil }

// StreamClient is the subset of the redis client used for publishing.
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// DefaultStream is used when no stream name is configured.
const DefaultStream = "catalog:scrape-progress"

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client StreamClient
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisPublisher publishes to stream, trimming it to roughly maxLen entries.
func NewRedisPublisher(client StreamClient, stream string, maxLen int64, logger *slog.Logger) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "events"),
	}
}

// Dial connects to a Redis server and verifies it answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Publish implements Sink.
func (p *RedisPublisher) Publish(ctx context.Context, event models.ProgressEvent) error {
	values, err := encode(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: values,
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	p.logger.Debug("progress event published", slog.String("kind", event.Kind), slog.String("job_id", event.JobID))
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encode(event models.ProgressEvent) (map[string]interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"data":      string(data),
		"type":      event.Kind,
		"job_id":    event.JobID,
		"timestamp": strconv.FormatInt(event.At.UnixNano(), 10),
	}, nil
}
