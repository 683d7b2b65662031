package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVStore implements KVStore on Redis so several bot replicas share sessions
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKVStore creates a store; keys are stored as "attendance:<key>"
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client, prefix: "attendance:"}
}

func (s *RedisKVStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisKVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}
