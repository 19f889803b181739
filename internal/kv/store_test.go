package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set("chat_nickname", "Nova"))
	v, err := s.Get("chat_nickname")
	require.NoError(t, err)
	assert.Equal(t, "Nova", v)

	require.NoError(t, s.Set("chat_nickname", "Orion"))
	v, err = s.Get("chat_nickname")
	require.NoError(t, err)
	assert.Equal(t, "Orion", v)

	require.NoError(t, s.Remove("chat_nickname"))
	_, err = s.Get("chat_nickname")
	assert.ErrorIs(t, err, ErrNotFound)

	// removing an absent key is not an error
	assert.NoError(t, s.Remove("chat_nickname"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestPebble(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenPebble(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set("view_date", "2026-10-19"))
	require.NoError(t, s.Close())

	reopened, err := OpenPebble(dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get("view_date")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", v)
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set("today_views", "121"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get("today_views")
	require.NoError(t, err)
	assert.Equal(t, "121", v)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("OASIS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping: OASIS_TEST_REDIS_URL not set")
	}
	s, err := OpenRedis(context.Background(), url, "oasis-test:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestScopeIsolatesProfiles(t *testing.T) {
	base := NewMemory()
	a := Scope(base, "profile:a:")
	b := Scope(base, "profile:b:")

	require.NoError(t, a.Set("chat_nickname", "Nova"))
	_, err := b.Get("chat_nickname")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := base.Get("profile:a:chat_nickname")
	require.NoError(t, err)
	assert.Equal(t, "Nova", raw)

	// closing a scoped view leaves the backend usable
	require.NoError(t, a.Close())
	v, err := a.Get("chat_nickname")
	require.NoError(t, err)
	assert.Equal(t, "Nova", v)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Backend: BackendPebble, DataPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Pebble{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Backend: BackendSQLite, DataPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: BackendRedis})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}

func TestRedisSharedClientStaysOpen(t *testing.T) {
	url := os.Getenv("OASIS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping: OASIS_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	s := NewRedis(client, "oasis-test-shared:")
	exerciseStore(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, client.Ping(context.Background()).Err())
}
