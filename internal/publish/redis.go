package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/reddwatch/reddwatch/internal/config"
	"github.com/reddwatch/reddwatch/internal/export"
)

// Publisher mirrors the latest export document into Redis so
// downstream consumers can pick it up without touching the engine:
// the document is SET under a stable key and announced on a pub/sub
// channel.
type Publisher struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Publisher{
		client:  client,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
	}, nil
}

// Publish stores the document and notifies subscribers.
func (p *Publisher) Publish(ctx context.Context, doc export.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding export for redis: %w", err)
	}

	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	if err := p.client.Publish(ctx, p.channel, doc.Metadata.GenerationID).Err(); err != nil {
		// Subscribers are best-effort; the keyed document is the
		// contract.
		log.Warn().Err(err).Str("channel", p.channel).Msg("export publish notification failed")
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
