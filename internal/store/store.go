package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// UnavailableError wraps a failure to reach the backing store. Callers
// surface it to the client instead of silently dropping state.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Redis is the key-value store backing sessions, approvals, and capability
// versions.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected")
	return &Redis{rdb: rdb, logger: logger}, nil
}

// Close shuts down the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return &UnavailableError{Op: "set " + key, Err: err}
	}
	return nil
}

func (r *Redis) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return &UnavailableError{Op: "get " + key, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (r *Redis) delete(ctx context.Context, keys ...string) error {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return &UnavailableError{Op: "del", Err: err}
	}
	return nil
}
