package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client names as reported by CLIENT LIST.
const (
	queueClientName  = "taamsimcha-queue"
	pubsubClientName = "taamsimcha-pubsub"
)

// RedisClients separates the queue connection (email jobs, refresh and reset
// tokens, job locks) from the pub/sub connection used for realtime pushes.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// NewRedisClients connects both clients. emailWorkers idle connections are kept
// on the queue client so each worker's BLPOP loop reuses a warm connection.
func NewRedisClients(ctx context.Context, redisURL string, emailWorkers int) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	queueClient := redis.NewClient(queueOptions(opt, emailWorkers))
	if err := queueClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (queue): %w", err)
	}

	pubsubClient := redis.NewClient(pubsubOptions(opt))
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		queueClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func queueOptions(base *redis.Options, emailWorkers int) *redis.Options {
	opt := *base
	opt.ClientName = queueClientName
	if emailWorkers > opt.MinIdleConns {
		opt.MinIdleConns = emailWorkers
	}
	return &opt
}

// Each WebSocket user holds a dedicated subscription connection outside the
// pool, so the pooled connections only serve PUBLISH.
func pubsubOptions(base *redis.Options) *redis.Options {
	opt := *base
	opt.ClientName = pubsubClientName
	return &opt
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
