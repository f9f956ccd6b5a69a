// Package redis provides a Redis-backed key/value store for broker session state.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Config configures the Redis key/value store.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string        // prepended to every key, e.g. "journal:"
	TTL       time.Duration // 0 keeps keys forever
}

// KV implements store.KeyValueStore on Redis.
type KV struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and pings the server.
func New(cfg Config, logger zerolog.Logger) (*KV, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Connected to redis")
	return &KV{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// Get returns the value for key, or "" if it is not set.
func (k *KV) Get(ctx context.Context, key string) (string, error) {
	v, err := k.client.Get(ctx, k.prefix+key).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (k *KV) Set(ctx context.Context, key, value string) error {
	if err := k.client.Set(ctx, k.prefix+key, value, k.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, k.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (k *KV) Close() error {
	return k.client.Close()
}
