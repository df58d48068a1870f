package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notifyd/internal/app"
	iauth "github.com/charlesng35/notifyd/internal/auth"
	testutil "github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/services"
)

func newDeps(t *testing.T, cfg *app.Config) Deps {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	prefs, err := services.NewPreferenceService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, prefs, nil)
	require.NoError(t, err)
	tokens, err := services.NewUnsubscribeTokenService(db)
	require.NoError(t, err)
	unsubscribe, err := services.NewUnsubscribeService(db, tokens)
	require.NoError(t, err)
	keys, err := services.NewAPIKeyService(db)
	require.NoError(t, err)

	return Deps{
		Config:        cfg,
		JWT:           jwtSvc,
		APIKeys:       keys,
		Notifications: notifications,
		Preferences:   prefs,
		Unsubscribe:   unsubscribe,
	}
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	deps := newDeps(t, &app.Config{})

	missing := deps
	missing.Config = nil
	_, err := NewRouter(missing)
	require.ErrorContains(t, err, "config")

	missing = deps
	missing.APIKeys = nil
	_, err = NewRouter(missing)
	require.ErrorContains(t, err, "api key")

	missing = deps
	missing.Unsubscribe = nil
	_, err = NewRouter(missing)
	require.ErrorContains(t, err, "unsubscribe")
}

func TestRouterDisabledMonitoring(t *testing.T) {
	router, err := NewRouter(newDeps(t, &app.Config{}))
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics").Code)
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	cfg := &app.Config{
		Server:    app.ServerConfig{FrontendURL: "https://divemap.test/"},
		RateLimit: app.RateLimitConfig{Requests: 100, Window: time.Minute},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "prom"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	router, err := NewRouter(newDeps(t, cfg))
	require.NoError(t, err)

	// Health is served without a monitoring module, as disabled probes.
	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/health/ready").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/prom").Code)

	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/notifications").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/internal/notifications/abc").Code)

	w := serve(router, http.MethodGet, "/unsubscribe?token=nope&category=new_dives")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://divemap.test/unsubscribe?category=new_dives&success=false", w.Header().Get("Location"))
}

func TestRouterRateLimitsUnsubscribe(t *testing.T) {
	cfg := &app.Config{RateLimit: app.RateLimitConfig{Requests: 2, Window: time.Minute}}
	router, err := NewRouter(newDeps(t, cfg))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusFound, serve(router, http.MethodGet, "/unsubscribe/all?token=x").Code)
	}
	w := serve(router, http.MethodGet, "/unsubscribe/all?token=x")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// The worker API is not throttled by the unsubscribe limit.
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/internal/notifications/abc").Code)
}
