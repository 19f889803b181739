package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis stores values as plain string keys. The interface is synchronous,
// so every call runs under a background context.
type Redis struct {
	client *redis.Client
	prefix string
	owned  bool
}

// OpenRedis connects to redisURL and verifies the connection.
func OpenRedis(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, prefix: prefix, owned: true}, nil
}

// NewRedis wraps an existing client; Close leaves the client open.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(key string) (string, error) {
	v, err := r.client.Get(context.Background(), r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(key, value string) error {
	return r.client.Set(context.Background(), r.prefix+key, value, 0).Err()
}

func (r *Redis) Remove(key string) error {
	return r.client.Del(context.Background(), r.prefix+key).Err()
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
