package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cnw:activation:"

// RedisProvider implements Provider on top of a Redis client. Values never
// expire; the activation token carries its own validity window.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisProvider.
type RedisOption func(*RedisProvider)

// WithKeyPrefix sets the prefix prepended to every key. Default: "cnw:activation:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisProvider) {
		p.prefix = prefix
	}
}

// NewRedisProvider wraps client. The caller owns the client lifecycle.
func NewRedisProvider(client *redis.Client, opts ...RedisOption) *RedisProvider {
	p := &RedisProvider{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ConnectRedis builds a client from a redis:// URL, or treats redisURL as a
// plain host:port address when it does not parse as one.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return redis.NewClient(&redis.Options{Addr: redisURL}), nil
	}
	return redis.NewClient(opt), nil
}

func (p *RedisProvider) Store(ctx context.Context, key, value string) error {
	if err := p.client.Set(ctx, p.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}

func (p *RedisProvider) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := p.client.Get(ctx, p.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read value: %w", err)
	}
	return value, true, nil
}

func (p *RedisProvider) Close(_ context.Context) error {
	return nil // user manages the redis.Client lifecycle
}
