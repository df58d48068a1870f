package cache

import (
	"context"
	"time"
)

// Store is the shared counter store used for request throttling.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
