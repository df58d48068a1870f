package models

import (
	"time"
)

// CacheEntry backs the rate limiter's fixed-window counters when Redis is not
// configured. Value holds the decimal hit count; rows past ExpiresAt are
// reset on the next hit and swept by the maintenance job.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:256"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
