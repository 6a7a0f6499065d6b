package database

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage adapts a go-redis client to fiber.Storage so limiter counters are shared by every
// node pointed at the same Redis.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage scopes all keys under prefix.
func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix + ":"}
}

// Get returns nil without error for missing keys.
func (s *RedisStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	value, err := s.client.Get(context.Background(), s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

// Set stores val; a zero exp keeps the key until deleted.
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.client.Set(context.Background(), s.prefix+key, val, exp).Err()
}

func (s *RedisStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(context.Background(), s.prefix+key).Err()
}

// Reset removes every key under the prefix.
func (s *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStorage) Close() error {
	return nil
}
