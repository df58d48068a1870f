package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// PreferenceState is the per-category slice of a preference snapshot.
type PreferenceState struct {
	EnableEmail   bool      `json:"enable_email"`
	EnableWebsite bool      `json:"enable_website"`
	Frequency     Frequency `json:"frequency"`
}

// PreferenceSnapshot captures every category's state before a global opt-out.
type PreferenceSnapshot map[Category]PreferenceState

// UnsubscribeToken is the single reusable unsubscribe credential of a user.
type UnsubscribeToken struct {
	BaseModel

	UserID     string     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Token      string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`

	PreviousPreferences datatypes.JSON `json:"-"`
}

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *UnsubscribeToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Snapshot decodes PreviousPreferences. The boolean is false when no snapshot
// has been stored.
func (t *UnsubscribeToken) Snapshot() (PreferenceSnapshot, bool, error) {
	if len(t.PreviousPreferences) == 0 || string(t.PreviousPreferences) == "null" {
		return nil, false, nil
	}
	var snapshot PreferenceSnapshot
	if err := json.Unmarshal(t.PreviousPreferences, &snapshot); err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}
