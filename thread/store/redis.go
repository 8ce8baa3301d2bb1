package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/thread"
)

// DefaultRedisPrefix namespaces thread keys.
const DefaultRedisPrefix = "travel-router:thread:"

// RedisConfig holds Redis configuration for threads.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// RedisStore implements thread storage using Redis. Each thread is one JSON value and
// a set indexes all ids.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero TTL keeps threads until deleted.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Save persists a thread.
func (s *RedisStore) Save(ctx context.Context, t *thread.Thread) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: thread cannot be nil", errors.ErrInvalidInput)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	if err := s.client.Set(ctx, s.key(t.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	if err := s.client.SAdd(ctx, s.setKey(), t.ID).Err(); err != nil {
		return fmt.Errorf("failed to add thread to index: %w", err)
	}
	return nil
}

// Load reads a thread.
func (s *RedisStore) Load(ctx context.Context, id string) (*thread.Thread, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("thread %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	var t thread.Thread
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("failed to decode thread: %w", err)
	}
	return &t, nil
}

// Delete removes a thread and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete thread: %w", err)
	}
	if err := s.client.SRem(ctx, s.setKey(), id).Err(); err != nil {
		return false, fmt.Errorf("failed to update thread index: %w", err)
	}
	return n > 0, nil
}

// List returns all indexed thread ids. Ids whose value expired are dropped from the index.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check thread: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.setKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Ping checks if Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) setKey() string {
	return s.prefix + "set"
}
