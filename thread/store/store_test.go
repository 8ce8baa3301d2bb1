package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/message"
	"github.com/sweetpotato0/travel-router/thread"
)

func exercise(t *testing.T, s thread.Store) {
	t.Helper()
	ctx := context.Background()

	th := &thread.Thread{
		ID:        "3f8a2c1e-0000-4000-8000-000000000001",
		UserID:    "alice",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Messages:  []message.Message{message.NewMessage(message.RoleUser, "hello")},
		Metadata:  map[string]any{"channel": "web"},
	}
	require.NoError(t, s.Save(ctx, th))

	got, err := s.Load(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, th.UserID, got.UserID)
	assert.True(t, th.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "web", got.Metadata["channel"])

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, th.ID)

	ok, err := s.Delete(ctx, th.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, th.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Load(ctx, th.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exercise(t, s)

	t.Run("one file per thread", func(t *testing.T) {
		require.NoError(t, s.Save(context.Background(), &thread.Thread{ID: "abc", UserID: "u"}))
		_, err := os.Stat(filepath.Join(dir, "abc.json"))
		assert.NoError(t, err)
	})

	t.Run("rejects path escapes", func(t *testing.T) {
		err := s.Save(context.Background(), &thread.Thread{ID: "../evil"})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		_, err = s.Load(context.Background(), "../evil")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

// TestRedisStore requires a running Redis server.
// Set TRAVEL_ROUTER_TEST_REDIS_ADDR to run it.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TRAVEL_ROUTER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRAVEL_ROUTER_TEST_REDIS_ADDR not set, skipping Redis thread store tests")
	}
	s := NewRedisStore(RedisConfig{Addr: addr, Prefix: "travel-router-test:thread:"})
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exercise(t, s)
}
