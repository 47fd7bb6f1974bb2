package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/linkhost/internal/core/proxy"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces resolution entries in Redis.
const KeyPrefix = "linkhost:host:"

// negativeValue marks a cached "no route" result.
const negativeValue = "-"

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBackend stores entries as strings with a Redis expiry.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a backend on an existing client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := b.client.Get(ctx, KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if raw == negativeValue {
		return Entry{Found: false}, true, nil
	}

	var route proxy.Route
	if err := json.Unmarshal([]byte(raw), &route); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached route: %w", err)
	}
	return Entry{Found: true, Route: route}, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	value := negativeValue
	if e.Found {
		data, err := json.Marshal(e.Route)
		if err != nil {
			return fmt.Errorf("encode route: %w", err)
		}
		value = string(data)
	}
	return b.client.Set(ctx, KeyPrefix+key, value, ttl).Err()
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
