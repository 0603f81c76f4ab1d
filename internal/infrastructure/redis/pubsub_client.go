package redis

import (
	"context"
	"fmt"

	"github.com/matevzStinjek/distributed-trading-system/footprint-stream/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisPubsubClient struct {
	client *redis.Client
}

func NewRedisPubsubClient(ctx context.Context, cfg *config.Config) (*RedisPubsubClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisPubsubAddr,
		Username: cfg.RedisPubsubUser,
		Password: cfg.RedisPubsubPw,
	})

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis pubsub %s: %w", cfg.RedisPubsubAddr, err)
	}

	return &RedisPubsubClient{
		client: client,
	}, nil
}

func (r *RedisPubsubClient) Publish(ctx context.Context, channel string, message any) error {
	return r.client.Publish(ctx, channel, message).Err()
}

func (r *RedisPubsubClient) Close() error {
	return r.client.Close()
}
