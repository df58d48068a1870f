package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/handlers/testutil"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/services"
)

func TestPreferenceListReturnsDefaults(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser()

	resp := env.Request(http.MethodGet, "/api/notifications/preferences", nil, env.AccessToken(user))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var prefs []services.PreferenceDTO
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &prefs)
	require.Len(t, prefs, len(models.UserCategories()))
	for _, pref := range prefs {
		require.False(t, pref.Persisted)
		require.True(t, pref.EnableWebsite)
		require.False(t, pref.EnableEmail)
		require.NotEqual(t, models.CategoryAdminAlerts, pref.Category)
	}
}

func TestPreferenceUpdate(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser()
	token := env.AccessToken(user)

	resp := env.Request(http.MethodPut, "/api/notifications/preferences/new_dive_trips", map[string]any{
		"enable_email": true,
		"frequency":    "weekly_digest",
		"area_filter":  map[string]any{"country": "MT", "radius_km": 25},
	}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var pref services.PreferenceDTO
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &pref)
	require.True(t, pref.Persisted)
	require.True(t, pref.EnableEmail)
	require.Equal(t, models.FrequencyWeeklyDigest, pref.Frequency)
	require.JSONEq(t, `{"country":"MT","radius_km":25}`, string(pref.AreaFilter))

	resp = env.Request(http.MethodPut, "/api/notifications/preferences/new_dive_trips", map[string]any{
		"frequency": "hourly",
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, testutil.DecodeResponse(t, resp).Error.Message, "frequency must be one of")

	resp = env.Request(http.MethodPut, "/api/notifications/preferences/admin_alerts", map[string]any{
		"enable_email": true,
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "UNKNOWN_CATEGORY", testutil.DecodeResponse(t, resp).Error.Code)
}

func TestGlobalOptOutBlocksEnablingEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser()
	token := env.AccessToken(user)

	resp := env.Request(http.MethodPut, "/api/notifications/opt-out", map[string]any{"opted_out": true}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var state struct {
		OptedOut bool `json:"email_notifications_opted_out"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &state)
	require.True(t, state.OptedOut)

	resp = env.Request(http.MethodPut, "/api/notifications/preferences/new_dives", map[string]any{
		"enable_email": true,
	}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "EMAIL_OPTED_OUT", testutil.DecodeResponse(t, resp).Error.Code)

	// Website delivery can still change while opted out.
	resp = env.Request(http.MethodPut, "/api/notifications/preferences/new_dives", map[string]any{
		"enable_website": false,
	}, token)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request(http.MethodPut, "/api/notifications/opt-out", map[string]any{}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, testutil.DecodeResponse(t, resp).Error.Message, "opted out is required")
}
