package storage

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig configures the redis adapter.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// RedisEngine stores keys in a redis server under a common prefix.
type RedisEngine struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ StorageEngine = (*RedisEngine)(nil)

// NewRedisEngine connects to redis and verifies the server answers PING.
func NewRedisEngine(config RedisConfig) (*RedisEngine, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, BackendError("redis", err)
	}

	return &RedisEngine{
		client:  client,
		prefix:  config.KeyPrefix,
		timeout: timeout,
	}, nil
}

func (e *RedisEngine) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.client.Set(ctx, e.prefix+key, value, 0).Err(); err != nil {
		return BackendError("redis", err)
	}
	return nil
}

func (e *RedisEngine) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	value, err := e.client.Get(ctx, e.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", BackendError("redis", err)
	}
	return value, nil
}

func (e *RedisEngine) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	removed, err := e.client.Del(ctx, e.prefix+key).Result()
	if err != nil {
		return BackendError("redis", err)
	}
	if removed == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (e *RedisEngine) Close() error {
	return e.client.Close()
}
