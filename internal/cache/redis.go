package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters shared by the queue and the
// rate limiter.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "notifyd:"
)

// NewRedisClient creates a go-redis client and pings it so misconfiguration is
// surfaced during application startup.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   1,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Address, err)
	}
	return client, nil
}

// RedisStore implements Store on top of Redis counters.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

// IncrementWithTTL increments key and starts its expiry window on first use.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil || s.client == nil {
		return 0, 0, errors.New("cache: redis store not initialised")
	}
	if window <= 0 {
		window = time.Minute
	}

	key = redisKeyPrefix + key
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("cache: incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("cache: pexpire %s: %w", key, err)
		}
		return count, window, nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("cache: pttl %s: %w", key, err)
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. the PEXPIRE above failed on a previous call).
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("cache: pexpire %s: %w", key, err)
		}
		ttl = window
	}
	return count, ttl, nil
}
