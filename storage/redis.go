package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains connection settings for the redis backend.
type RedisConfig struct {
	// Addr is the redis server address, host:port.
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// Password is the redis password (optional).
	Password string `json:"password" yaml:"password" env:"PASSWORD"`

	// DB is the redis database number.
	DB int `json:"db" yaml:"db" env:"DB"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`

	// KeyPrefix is the prefix for all keys written by the backend.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultRedisConfig returns the default redis backend configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "lazyscribe:",
	}
}

// Redis stores files as string keys in a redis instance, serving the
// "redis" scheme. The key namespace is flat; MakeDirs is a no-op.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis constructs a redis backend and verifies connectivity.
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "lazyscribe:"
	}

	return &Redis{client: client, keyPrefix: keyPrefix + "fs:"}, nil
}

// NewRedisFromClient wraps an existing client, e.g. one pointed at a test
// server.
func NewRedisFromClient(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "lazyscribe:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix + "fs:"}
}

func (r *Redis) Scheme() string { return "redis" }

func (r *Redis) key(path string) string { return r.keyPrefix + path }

func (r *Redis) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(path)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Redis) WriteFile(ctx context.Context, path string, data []byte) error {
	return r.client.Set(ctx, r.key(path), data, 0).Err()
}

func (r *Redis) Exists(ctx context.Context, path string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(path)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MakeDirs is a no-op: redis keys form a flat namespace.
func (r *Redis) MakeDirs(ctx context.Context, path string) error { return nil }

func (r *Redis) Remove(ctx context.Context, path string) error {
	return r.client.Del(ctx, r.key(path)).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
