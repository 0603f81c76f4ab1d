package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 1 * time.Second

type RedisCacheClient struct {
	client *redis.Client
}

func NewRedisCacheClient(ctx context.Context, cfg *config.Config) (*RedisCacheClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisCacheAddr,
		Username: cfg.RedisCacheUser,
		Password: cfg.RedisCachePw,
		DB:       cfg.RedisCacheDB,
	})

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis cache %s: %w", cfg.RedisCacheAddr, err)
	}

	return &RedisCacheClient{
		client: client,
	}, nil
}

func (r *RedisCacheClient) Set(ctx context.Context, key string, value any, exp time.Duration) error {
	return r.client.Set(ctx, key, value, exp).Err()
}

func (r *RedisCacheClient) Close() error {
	return r.client.Close()
}

func ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
