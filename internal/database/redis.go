package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds one connection pool for the receipt queue and one for
// live feed pub/sub.
type RedisClients struct {
	Queue *redis.Client
	Feed  *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	queue, err := dialRedis(ctx, opt, "queue")
	if err != nil {
		return nil, err
	}
	feed, err := dialRedis(ctx, opt, "feed")
	if err != nil {
		queue.Close()
		return nil, err
	}

	return &RedisClients{Queue: queue, Feed: feed}, nil
}

func dialRedis(ctx context.Context, base *redis.Options, role string) (*redis.Client, error) {
	opt := *base
	opt.ClientName = "attendance-" + role
	client := redis.NewClient(&opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.Feed.Close()
}
