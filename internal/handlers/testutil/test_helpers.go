package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notifyd/internal/api"
	"github.com/charlesng35/notifyd/internal/app"
	iauth "github.com/charlesng35/notifyd/internal/auth"
	sharedtestutil "github.com/charlesng35/notifyd/internal/database/testutil"
	"github.com/charlesng35/notifyd/internal/middleware"
	"github.com/charlesng35/notifyd/internal/models"
	"github.com/charlesng35/notifyd/internal/monitoring"
	"github.com/charlesng35/notifyd/internal/services"
	"github.com/charlesng35/notifyd/pkg/response"
)

const (
	// WorkerKey is the legacy shared secret accepted by the test router.
	WorkerKey = "test-worker-shared-secret"
	// FrontendURL is where unsubscribe links redirect in tests.
	FrontendURL = "https://frontend.test"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Tokens        *services.UnsubscribeTokenService
	Notifications *services.NotificationService
	Monitoring    *monitoring.Module
	Queuer        *RecordingQueuer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			BaseURL:     "https://notifyd.test",
			FrontendURL: FrontendURL,
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}

	prefs, err := services.NewPreferenceService(db)
	require.NoError(t, err)
	queuer := &RecordingQueuer{}
	notifications, err := services.NewNotificationService(db, prefs, queuer)
	require.NoError(t, err)
	tokens, err := services.NewUnsubscribeTokenService(db)
	require.NoError(t, err)
	unsubscribe, err := services.NewUnsubscribeService(db, tokens)
	require.NoError(t, err)
	keys, err := services.NewAPIKeyService(db, services.WithLegacyAPIKey(WorkerKey))
	require.NoError(t, err)

	mon, err := monitoring.NewModule(monitoring.Options{ExcludeDefaultGatherer: true})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		Config:        cfg,
		JWT:           jwtSvc,
		APIKeys:       keys,
		Notifications: notifications,
		Preferences:   prefs,
		Unsubscribe:   unsubscribe,
		Monitoring:    mon,
		RateStore:     middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Tokens:        tokens,
		Notifications: notifications,
		Monitoring:    mon,
		Queuer:        queuer,
	}
}

// CreateUser inserts a user with a random username and returns the record.
func (e *Env) CreateUser() *models.User {
	e.T.Helper()
	username := "user-" + uuid.NewString()
	return sharedtestutil.MustCreateUser(e.T, e.DB, username)
}

// AccessToken issues a JWT for the user.
func (e *Env) AccessToken(user *models.User) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Username: user.Username})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return e.request(method, path, body, headers)
}

// WorkerRequest calls the internal API with the worker key.
func (e *Env) WorkerRequest(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, map[string]string{middleware.APIKeyHeader: WorkerKey})
}

func (e *Env) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RecordingQueuer captures notifications handed to the email pipeline.
type RecordingQueuer struct {
	mu      sync.Mutex
	Reject  bool
	Queued  []string
	Formats []services.EmailTemplate
}

// QueueEmailNotification implements services.EmailQueuer.
func (q *RecordingQueuer) QueueEmailNotification(_ context.Context, notification *models.Notification, _ *models.User, template services.EmailTemplate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Queued = append(q.Queued, notification.ID)
	q.Formats = append(q.Formats, template)
	return !q.Reject
}

// Count returns how many notifications were handed over.
func (q *RecordingQueuer) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Queued)
}
