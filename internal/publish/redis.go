package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis publishes telemetry on a pub/sub channel and optionally keeps the
// latest image under a key.
type Redis struct {
	client    *redis.Client
	channel   string
	latestKey string
	ttl       time.Duration
}

// NewRedis creates a Redis publisher. latestKey may be empty; ttl 0 means no expiry.
func NewRedis(client *redis.Client, channel, latestKey string, ttl time.Duration) *Redis {
	return &Redis{client: client, channel: channel, latestKey: latestKey, ttl: ttl}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Publish(ctx context.Context, rec Record) (string, error) {
	payload, err := marshalTelemetry(rec, false)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Publish(ctx, r.channel, payload)
	if r.latestKey != "" && rec.Photo.HasData() {
		pipe.Set(ctx, r.latestKey, rec.Photo.Data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis pipeline: %w", err)
	}
	return "redis://" + r.channel, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
