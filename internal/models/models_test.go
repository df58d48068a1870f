package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
		{"notification_preference", func() *BaseModel {
			p := &NotificationPreference{}
			return &p.BaseModel
		}},
		{"unsubscribe_token", func() *BaseModel {
			u := &UnsubscribeToken{}
			return &u.BaseModel
		}},
		{"api_key", func() *BaseModel {
			k := &APIKey{}
			return &k.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	category, ok := ParseCategory(" New_Dives ")
	require.True(t, ok)
	require.Equal(t, CategoryNewDives, category)

	category, ok = ParseCategory("weather_alerts")
	require.False(t, ok)
	require.Equal(t, CategoryUnknown, category)
}

func TestUserCategoriesExcludeAdminAlerts(t *testing.T) {
	categories := UserCategories()
	require.Len(t, categories, len(AllCategories())-1)
	require.NotContains(t, categories, CategoryAdminAlerts)
	require.Contains(t, categories, CategoryOwnershipUpdates)
}

func TestParseFrequency(t *testing.T) {
	freq, ok := ParseFrequency("")
	require.True(t, ok)
	require.Equal(t, FrequencyImmediate, freq)

	freq, ok = ParseFrequency("WEEKLY_DIGEST")
	require.True(t, ok)
	require.Equal(t, FrequencyWeeklyDigest, freq)

	_, ok = ParseFrequency("hourly")
	require.False(t, ok)
}

func TestUnsubscribeTokenSnapshot(t *testing.T) {
	token := &UnsubscribeToken{}
	snapshot, ok, err := token.Snapshot()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, snapshot)

	token.PreviousPreferences = datatypes.JSON(`{"new_dives":{"enable_email":true,"enable_website":false,"frequency":"daily_digest"}}`)
	snapshot, ok, err = token.Snapshot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, PreferenceState{EnableEmail: true, EnableWebsite: false, Frequency: FrequencyDailyDigest}, snapshot[CategoryNewDives])
}

func TestUnsubscribeTokenIsExpired(t *testing.T) {
	now := time.Now()
	token := &UnsubscribeToken{ExpiresAt: now.Add(time.Minute)}
	require.False(t, token.IsExpired(now))
	require.True(t, token.IsExpired(now.Add(time.Minute)))
}

func TestAPIKeyUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.True(t, (&APIKey{IsActive: true}).Usable(now))
	require.True(t, (&APIKey{IsActive: true, ExpiresAt: &future}).Usable(now))
	require.False(t, (&APIKey{IsActive: true, ExpiresAt: &past}).Usable(now))
	require.False(t, (&APIKey{IsActive: false}).Usable(now))
}
