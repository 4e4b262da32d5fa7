package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// RedisConfig describes the redis list transport.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Key       string
	BlockWait time.Duration
}

// RedisBus pushes events onto a redis list and pops them with BRPOP.
type RedisBus struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

// NewRedisBus connects and pings redis.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newRedisBus(client, cfg), nil
}

func newRedisBus(client *redis.Client, cfg RedisConfig) *RedisBus {
	key := cfg.Key
	if key == "" {
		key = "agentrt:events"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisBus{client: client, key: key, wait: wait}
}

// Publish LPUSHes the encoded event.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.key, data).Err(); err != nil {
		return fmt.Errorf("redis publish event: %w", err)
	}
	return nil
}

// Consume pops events oldest first until ctx is done.
func (b *RedisBus) Consume(ctx context.Context, handler Handler) error {
	log := logger.Named("events")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := b.client.BRPop(ctx, b.wait, b.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("redis consume event: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		event, err := decode([]byte(values[1]))
		if err != nil {
			log.Warn("dropping malformed event", "error", err)
			continue
		}
		if err := handler(ctx, event); err != nil {
			log.Warn("event handler failed", "event_id", event.ID, "error", err)
		}
	}
}

// Close closes the redis client.
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
