package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/oasis/internal/broadcast"
	"github.com/gosuda/oasis/internal/kv"
)

// needsRedis reports whether any backend was configured to use redis.
func needsRedis() bool {
	return flagStore == kv.BackendRedis || flagBroadcast == "redis"
}

// openRedisClient connects the one client shared by the redis store and
// the redis broadcast backend.
func openRedisClient(ctx context.Context) (*redis.Client, error) {
	if flagRedisURL == "" {
		return nil, errors.New("redis backend: --redis-url required")
	}
	opts, err := redis.ParseURL(flagRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// openStore builds the profile store. A redis store borrows rdb.
func openStore(ctx context.Context, rdb *redis.Client) (kv.Store, error) {
	if flagStore == kv.BackendRedis {
		if rdb == nil {
			return nil, errors.New("redis store: no redis client")
		}
		return kv.NewRedis(rdb, "oasis:kv:"), nil
	}
	return kv.Open(ctx, kv.Options{Backend: flagStore, DataPath: flagDataPath})
}

// openHub builds the broadcast backend that carries chat messages between
// tabs of the same room. A redis hub borrows rdb.
func openHub(ctx context.Context, rdb *redis.Client) (broadcast.Hub, error) {
	switch flagBroadcast {
	case "", "local":
		return broadcast.NewLocal(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis broadcast: no redis client")
		}
		return broadcast.NewRedis(rdb, "oasis:bc:"), nil
	case "p2p":
		mesh, err := broadcast.NewMesh(ctx, flagP2PListen, flagP2PPeers)
		if err != nil {
			return nil, fmt.Errorf("start p2p mesh: %w", err)
		}
		return mesh, nil
	}
	return nil, fmt.Errorf("unknown broadcast backend %q", flagBroadcast)
}
