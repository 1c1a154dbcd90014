package notification

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
)

// RedisPublisher mirrors dispatched alerts onto a pub/sub channel so
// downstream consumers (dashboards, archivers) see the same stream the
// chat sinks do.
type RedisPublisher struct {
	cfg     config.RedisSinkConfig
	client  *redis.Client
	log     *logging.Logger
	enabled bool

	published uint64
	failed    uint64
}

func NewRedisPublisher(sinkCfg config.RedisSinkConfig, connCfg config.RedisConfig) *RedisPublisher {
	p := &RedisPublisher{
		cfg: sinkCfg,
		log: logging.Default().WithComponent("redis-sink"),
	}
	if !sinkCfg.Enabled {
		return p
	}
	p.client = redis.NewClient(&redis.Options{
		Addr:     connCfg.Addr,
		Password: connCfg.Password,
		DB:       connCfg.DB,
	})
	p.enabled = true
	return p
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) IsEnabled() bool { return p.enabled }

func (p *RedisPublisher) Destinations() []string {
	return []string{p.cfg.Channel}
}

func (p *RedisPublisher) Send(ctx context.Context, channel, text string) error {
	if p.client == nil {
		return fmt.Errorf("redis sink disabled")
	}
	if err := p.client.Publish(ctx, channel, text).Err(); err != nil {
		p.failed++
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	p.published++
	return nil
}

// Close releases the underlying connection.
func (p *RedisPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *RedisPublisher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"enabled":   p.enabled,
		"channel":   p.cfg.Channel,
		"published": p.published,
		"failed":    p.failed,
	}
}
