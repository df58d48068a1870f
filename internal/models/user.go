package models

import "time"

// User is the email-relevant projection of a platform account.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`

	// EmailNotificationsOptedOut suppresses every email regardless of
	// per-category preferences.
	EmailNotificationsOptedOut bool       `gorm:"default:false;not null" json:"email_notifications_opted_out"`
	EmailOptOutAt              *time.Time `json:"email_opt_out_at"`

	Notifications []Notification           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Preferences   []NotificationPreference `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
