package models

import "time"

// SystemSetting holds instance-wide values generated at runtime, such as the
// JWT signing secret created on first start.
type SystemSetting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
