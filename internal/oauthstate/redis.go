package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "creatortent:oauth:state:"

// RedisStore shares states between replicas. Expiry is left to redis.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Save stores st as JSON with a redis TTL.
func (r *RedisStore) Save(ctx context.Context, nonce string, st State, ttl time.Duration) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode oauth state: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+nonce, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the state.
func (r *RedisStore) Consume(ctx context.Context, nonce string) (State, error) {
	raw, err := r.client.GetDel(ctx, redisKeyPrefix+nonce).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrInvalidState
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read oauth state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, ErrInvalidState
	}
	return st, nil
}
