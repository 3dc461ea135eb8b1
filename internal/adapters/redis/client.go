package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"cryptofolio/internal/adapters/config"
	"cryptofolio/pkg/logger"
)

// Client wraps the Redis connection used as a quote cache
type Client struct {
	cache *redis.Client
}

// New creates new Redis client
func New(cfg *config.RedisConfig) (*Client, error) {
	cacheClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache client initialized",
		zap.String("address", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &Client{cache: cacheClient}, nil
}

// Close closes redis connection
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}
	return nil
}

// Health checks redis health
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// Get retrieves value from Redis cache
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	return c.cache.Get(ctx, key)
}

// Set stores value in Redis cache with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return c.cache.Set(ctx, key, value, expiration)
}

// Del deletes keys from Redis cache
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return c.cache.Del(ctx, keys...)
}
