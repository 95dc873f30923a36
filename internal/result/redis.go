package result

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisPrefix = "taskgate:result:"

// RedisStore keeps task results in Redis with a TTL, giving bounded
// retention across process restarts of the API layer.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(id string) string {
	return redisPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.set(ctx, Result{
		ID:         id,
		Status:     StatusQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
	})
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, func(r *Result) {
		r.Status = StatusProcessing
	})
}

func (s *RedisStore) MarkDone(ctx context.Context, id string, value []byte, attempts int) error {
	return s.update(ctx, id, func(r *Result) {
		r.Status = StatusDone
		r.Value = value
		r.Attempts = attempts
	})
}

func (s *RedisStore) MarkFailed(ctx context.Context, id string, errMsg string, attempts int) error {
	return s.update(ctx, id, func(r *Result) {
		r.Status = StatusFailed
		r.Error = errMsg
		r.Attempts = attempts
	})
}

func (s *RedisStore) Get(ctx context.Context, id string) (Result, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("redis get failed: %w", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return r, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) set(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(r.ID), data, s.ttl).Err()
}

// update is a read-modify-write. Only the owning worker mutates a task after
// creation, so there is no concurrent writer to race with.
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*Result)) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(&r)
	r.UpdatedAt = time.Now().UTC()
	return s.set(ctx, r)
}
