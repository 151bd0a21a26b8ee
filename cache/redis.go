package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a JSON-over-Redis Backend.
type Redis struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// RedisOption mutates RedisOptions.
type RedisOption func(*RedisOptions)

func WithAddress(addr string) RedisOption {
	return func(o *RedisOptions) {
		o.Address = addr
	}
}

func WithPassword(pass string) RedisOption {
	return func(o *RedisOptions) {
		o.Password = pass
	}
}

func WithDB(db int) RedisOption {
	return func(o *RedisOptions) {
		o.DB = db
	}
}

// NewRedis connects and pings. It fails when the server is unreachable.
func NewRedis(ctx context.Context, opts ...RedisOption) (*Redis, error) {
	options := &RedisOptions{
		Address: "localhost:6379",
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string, dest any) error {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (r *Redis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
