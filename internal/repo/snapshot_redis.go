package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
)

// RedisSnapshots keeps cart snapshots in Redis. A zero TTL keeps them forever.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshots(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

func (r *RedisSnapshots) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisSnapshots) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSnapshots) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
