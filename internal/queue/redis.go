package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultListKey is the Redis list the email worker consumes.
const DefaultListKey = "notifyd:email_tasks"

// RedisClient pushes tasks onto a Redis list. The worker pops from the
// opposite end, giving FIFO order.
type RedisClient struct {
	rdb     redis.UniversalClient
	listKey string
}

// NewRedisClient wraps an established go-redis client.
func NewRedisClient(rdb redis.UniversalClient, listKey string) (*RedisClient, error) {
	if rdb == nil {
		return nil, errors.New("queue: redis client is required")
	}
	listKey = strings.TrimSpace(listKey)
	if listKey == "" {
		listKey = DefaultListKey
	}
	return &RedisClient{rdb: rdb, listKey: listKey}, nil
}

// Enqueue serialises task and appends it to the list.
func (c *RedisClient) Enqueue(ctx context.Context, task EmailTask) error {
	if task.NotificationID == "" {
		return errors.New("queue: notification id is required")
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	if err := c.rdb.LPush(ctx, c.listKey, body).Err(); err != nil {
		return fmt.Errorf("queue: lpush %s: %w", c.listKey, err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ListKey returns the list tasks are pushed onto.
func (c *RedisClient) ListKey() string {
	return c.listKey
}
