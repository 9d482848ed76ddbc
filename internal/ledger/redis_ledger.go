package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := l.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("ledger set %s: %w", key, err)
	}
	return nil
}

func (l *RedisLedger) Get(ctx context.Context, key string) (string, error) {
	value, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ledger get %s: %w", key, err)
	}
	return value, nil
}

func (l *RedisLedger) Delete(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ledger delete %s: %w", key, err)
	}
	return nil
}
