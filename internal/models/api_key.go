package models

import "time"

// APIKey authorises the downstream email worker. Only the SHA-256 digest of
// the key is stored.
type APIKey struct {
	BaseModel

	Name       string     `gorm:"type:varchar(128);not null" json:"name"`
	KeyHash    string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Prefix     string     `gorm:"type:varchar(16)" json:"prefix"`
	IsActive   bool       `gorm:"not null;index" json:"is_active"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// Usable reports whether the key is active and unexpired.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
