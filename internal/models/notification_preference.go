package models

import "gorm.io/datatypes"

// NotificationPreference stores a user's delivery settings for one category.
type NotificationPreference struct {
	BaseModel

	UserID        string         `gorm:"type:uuid;not null;uniqueIndex:idx_pref_user_category" json:"user_id"`
	Category      Category       `gorm:"type:varchar(64);not null;uniqueIndex:idx_pref_user_category" json:"category"`
	EnableWebsite bool           `gorm:"not null" json:"enable_website"`
	EnableEmail   bool           `gorm:"not null;default:false" json:"enable_email"`
	Frequency     Frequency      `gorm:"type:varchar(32);not null;default:'immediate'" json:"frequency"`
	AreaFilter    datatypes.JSON `json:"area_filter,omitempty"`
}

// DefaultPreference returns the settings applied when no row exists.
func DefaultPreference(userID string, category Category) NotificationPreference {
	return NotificationPreference{
		UserID:        userID,
		Category:      category,
		EnableWebsite: true,
		EnableEmail:   false,
		Frequency:     FrequencyImmediate,
	}
}
