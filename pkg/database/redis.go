package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPingTimeout bounds the connectivity probe so a wedged Redis cannot
// stall startup; the snapshot tier is optional and the caller decides whether
// a failed connect is fatal.
const redisPingTimeout = 5 * time.Second

// RedisConfig holds connection settings for the snapshot cache tier.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// PoolSize bounds the client's connection pool; zero uses the driver
	// default (10 per CPU).
	PoolSize int
}

// Addr returns the host:port address the client dials.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient connects to the snapshot tier and verifies the connection
// with a bounded ping. The returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}
