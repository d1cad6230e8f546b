package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and verifies the server answers a PING.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	if err := client.WithContext(ctx).Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.WithContext(ctx).Set(key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.WithContext(ctx).Get(key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.WithContext(ctx).Del(keys...).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.WithContext(ctx).Ping().Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
