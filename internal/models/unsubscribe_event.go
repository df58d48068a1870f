package models

import "time"

// Unsubscribe audit actions.
const (
	UnsubscribeActionUnsubscribe = "unsubscribe"
	UnsubscribeActionResubscribe = "resubscribe"
)

// UnsubscribeEvent is an append-only audit record of token-driven changes.
// A nil Category marks a global action.
type UnsubscribeEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Category  *Category `gorm:"type:varchar(64)" json:"category"`
	Action    string    `gorm:"type:varchar(32);not null" json:"action"`
	TokenID   string    `gorm:"type:uuid;index" json:"token_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
