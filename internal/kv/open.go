package kv

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataPath    string // pebble directory, or directory holding oasis.db for sqlite
	RedisURL    string
	RedisPrefix string
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendPebble:
		return OpenPebble(opts.DataPath)
	case BackendSQLite:
		path := ""
		if opts.DataPath != "" {
			path = filepath.Join(opts.DataPath, "oasis.db")
		}
		return OpenSQLite(path)
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis store: redis url required")
		}
		return OpenRedis(ctx, opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
