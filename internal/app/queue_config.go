package app

import (
	"strings"
	"time"

	"github.com/charlesng35/notifyd/internal/cache"
	"github.com/charlesng35/notifyd/internal/queue"
)

const defaultQueueTimeout = 5 * time.Second

// RedisClientConfig converts the queue's Redis settings into the cache package representation.
func (c QueueConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// SubmitTimeout bounds one enqueue call before delivery falls back to SMTP.
func (c QueueConfig) SubmitTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultQueueTimeout
	}
	return c.Timeout
}

// ListName returns the Redis list the worker consumes.
func (c QueueConfig) ListName() string {
	if key := strings.TrimSpace(c.ListKey); key != "" {
		return key
	}
	return queue.DefaultListKey
}
