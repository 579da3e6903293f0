package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys RedisStorage writes.
const DefaultRedisPrefix = "pocketsync"

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a client for cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisStorage keeps cache generations in Redis: one set holding the
// generation names and one hash per generation mapping key to a JSON entry.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

// Ping checks the connection.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) namesKey() string {
	return s.prefix + ":caches"
}

func (s *RedisStorage) cacheKey(name string) string {
	return s.prefix + ":cache:" + name
}

// Open implements Storage.
func (s *RedisStorage) Open(ctx context.Context, name string) error {
	if err := s.client.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		return fmt.Errorf("open cache %q: %w", name, err)
	}
	return nil
}

// Names implements Storage.
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Storage.
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.cacheKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Match implements Storage.
func (s *RedisStorage) Match(ctx context.Context, name, key string) (Entry, bool, error) {
	raw, err := s.client.HGet(ctx, s.cacheKey(name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("match %q: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("match %q: decode: %w", key, err)
	}
	return e, true, nil
}

// Put implements Storage.
func (s *RedisStorage) Put(ctx context.Context, name string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("put %q: encode: %w", e.Key, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.namesKey(), name)
		pipe.HSet(ctx, s.cacheKey(name), e.Key, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", e.Key, err)
	}
	return nil
}

// Keys implements Storage.
func (s *RedisStorage) Keys(ctx context.Context, name string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.cacheKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Storage.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
