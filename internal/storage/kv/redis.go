package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by lampd.
const DefaultRedisPrefix = "lampd:"

// redisTimeout bounds each round trip; Bucket methods carry no context.
const redisTimeout = 3 * time.Second

// RedisBucket is a persistent bucket stored as plain Redis keys
// named <prefix><bucket>:<key>.
type RedisBucket struct {
	client *backend.Client
	prefix string
	name   string
}

// NewRedisBucket creates a bucket on an existing client.
func NewRedisBucket(client *backend.Client, prefix, name string) *RedisBucket {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBucket{
		client: client,
		prefix: prefix,
		name:   name,
	}
}

func (b *RedisBucket) key(key string) string {
	return b.prefix + b.name + ":" + key
}

func (b *RedisBucket) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisTimeout)
}

// Name returns the bucket name.
func (b *RedisBucket) Name() string {
	return b.name
}

// IsPersistent returns true; durability is whatever the Redis server provides.
func (b *RedisBucket) IsPersistent() bool {
	return true
}

// Store saves value under key without expiry.
func (b *RedisBucket) Store(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	ctx, cancel := b.ctx()
	defer cancel()

	if err := b.client.Set(ctx, b.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to store value: %w", ErrBackend, err)
	}
	return nil
}

// Get decodes the value stored under key into dst.
func (b *RedisBucket) Get(key string, dst any) (bool, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, backend.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to get value: %w", ErrBackend, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Delete removes a key from the bucket.
func (b *RedisBucket) Delete(key string) (bool, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	n, err := b.client.Del(ctx, b.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: failed to delete key: %w", ErrBackend, err)
	}
	return n > 0, nil
}
