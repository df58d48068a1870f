package models

import "strings"

// Category identifies the kind of event a notification describes. Preferences
// are keyed by it.
type Category string

const (
	CategoryUnknown          Category = ""
	CategoryNewDiveSites     Category = "new_dive_sites"
	CategoryNewDives         Category = "new_dives"
	CategoryNewDivingCenters Category = "new_diving_centers"
	CategoryNewDiveTrips     Category = "new_dive_trips"
	CategoryOwnershipUpdates Category = "ownership_updates"
	CategoryAdminAlerts      Category = "admin_alerts"
)

var allCategories = []Category{
	CategoryNewDiveSites,
	CategoryNewDives,
	CategoryNewDivingCenters,
	CategoryNewDiveTrips,
	CategoryOwnershipUpdates,
	CategoryAdminAlerts,
}

// ParseCategory maps a raw tag onto the closed category set. Unknown values
// return CategoryUnknown and false.
func ParseCategory(raw string) (Category, bool) {
	candidate := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, category := range allCategories {
		if category == candidate {
			return category, true
		}
	}
	return CategoryUnknown, false
}

// AllCategories returns every known category.
func AllCategories() []Category {
	return append([]Category(nil), allCategories...)
}

// UserCategories returns the categories a user can subscribe to; admin alerts
// are not a preference category.
func UserCategories() []Category {
	out := make([]Category, 0, len(allCategories)-1)
	for _, category := range allCategories {
		if category.IsUserPreference() {
			out = append(out, category)
		}
	}
	return out
}

// IsUserPreference reports whether users manage this category themselves.
func (c Category) IsUserPreference() bool {
	return c != CategoryAdminAlerts && c != CategoryUnknown
}

func (c Category) String() string {
	return string(c)
}

// Frequency controls how often email for a category is delivered.
type Frequency string

const (
	FrequencyImmediate    Frequency = "immediate"
	FrequencyDailyDigest  Frequency = "daily_digest"
	FrequencyWeeklyDigest Frequency = "weekly_digest"
)

// ParseFrequency validates a raw frequency value. Empty input maps to immediate.
func ParseFrequency(raw string) (Frequency, bool) {
	switch Frequency(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FrequencyImmediate:
		return FrequencyImmediate, true
	case FrequencyDailyDigest:
		return FrequencyDailyDigest, true
	case FrequencyWeeklyDigest:
		return FrequencyWeeklyDigest, true
	default:
		return "", false
	}
}
