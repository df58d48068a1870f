package models

import "time"

// Notification represents an in-app notification for a user. Its existence is
// the website delivery; EmailSent tracks the optional email.
type Notification struct {
	BaseModel

	UserID     string   `gorm:"type:uuid;not null;index" json:"user_id"`
	Category   Category `gorm:"type:varchar(64);not null;index" json:"category"`
	Title      string   `gorm:"type:varchar(255);not null" json:"title"`
	Message    string   `gorm:"type:text" json:"message"`
	LinkURL    *string  `gorm:"type:text" json:"link_url"`
	EntityType *string  `gorm:"type:varchar(64)" json:"entity_type"`
	EntityID   *string  `gorm:"type:varchar(64)" json:"entity_id"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	// EmailSent only ever moves from false to true; EmailSentAt is set in the
	// same write.
	EmailSent   bool       `gorm:"default:false;not null;index" json:"email_sent"`
	EmailSentAt *time.Time `json:"email_sent_at"`
}
