package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

const (
	promoteBatchSize = 128
	receiveBlockTime = 2 * time.Second
)

// RedisQueue keeps scheduled messages in a sorted set scored by their
// ready-at time and promotes due members onto a ready list. Promotion uses
// ZREM as the claim, so concurrent promoters never push the same member
// twice. Priority messages jump to the front of the ready list.
type RedisQueue struct {
	client *redis.Client
	name   string
	clock  func() time.Time
}

type envelope struct {
	Job      domain.SessionJob `json:"job"`
	Priority int               `json:"priority"`
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		client: client,
		name:   name,
		clock:  time.Now,
	}
}

func (q *RedisQueue) scheduledKey() string { return "delayq:" + q.name + ":scheduled" }
func (q *RedisQueue) readyKey() string     { return "delayq:" + q.name + ":ready" }

func (q *RedisQueue) Enqueue(ctx context.Context, job domain.SessionJob, delay time.Duration, priority int) error {
	if delay < 0 {
		delay = 0
	}
	member, err := json.Marshal(envelope{Job: job, Priority: priority})
	if err != nil {
		return fmt.Errorf("queue marshal job %s: %w", job.JobID, err)
	}
	readyAt := q.clock().Add(delay)
	err = q.client.ZAdd(ctx, q.scheduledKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("queue enqueue %s: %w", job.JobID, err)
	}
	return nil
}

// RunPromoter moves due members from the scheduled set to the ready list
// until the context is cancelled.
func (q *RedisQueue) RunPromoter(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := q.promote(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := q.clock().UnixMilli()
	members, err := q.client.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("queue promote scan: %w", err)
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.scheduledKey(), member).Result()
		if err != nil {
			return fmt.Errorf("queue promote claim: %w", err)
		}
		if removed == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			// Unparseable members cannot be delivered; drop them here
			// rather than poisoning the ready list.
			continue
		}
		if env.Priority > 0 {
			err = q.client.LPush(ctx, q.readyKey(), member).Err()
		} else {
			err = q.client.RPush(ctx, q.readyKey(), member).Err()
		}
		if err != nil {
			return fmt.Errorf("queue promote push: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (domain.SessionJob, error) {
	for {
		values, err := q.client.BLPop(ctx, receiveBlockTime, q.readyKey()).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return domain.SessionJob{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			return domain.SessionJob{}, fmt.Errorf("queue receive: %w", err)
		}
		if len(values) < 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(values[1]), &env); err != nil {
			return domain.SessionJob{}, fmt.Errorf("queue decode message: %w", err)
		}
		return env.Job, nil
	}
}
