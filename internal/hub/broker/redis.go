package broker

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/carlink-io/carlink/internal/hub/router"
)

// RedisTransport mirrors router traffic onto Redis pub/sub for dashboards and
// other off-box consumers. Channel names are published verbatim in the
// colon-separated convention, which is native to Redis.
type RedisTransport struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisTransport{client: client}, nil
}

// Name implements router.Transport.
func (t *RedisTransport) Name() string { return "redis" }

// Forward implements router.Transport.
func (t *RedisTransport) Forward(ctx context.Context, msg router.Message) error {
	return t.client.Publish(ctx, msg.Channel, msg.Payload).Err()
}

// Close releases the Redis connection.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
