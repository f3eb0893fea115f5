// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package objstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps objects as Redis string values under "bucket:prefix:key".
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to the Redis server at rawURL and checks it answers.
func NewRedisStore(ctx context.Context, rawURL, bucket, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, bucket, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, bucket, prefix string) *RedisStore {
	ns := bucket
	if prefix != "" {
		ns += ":" + prefix
	}
	return &RedisStore{client: client, namespace: ns}
}

func (s *RedisStore) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Put stores data under key with no expiry.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Get reads the object stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Delete removes key. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
